package verification

import (
	"context"

	"qr_attendance_backend/qrpayload"
)

// scan is the single frame-analysis worker. It receives frames only when
// idle, so frames offered while it is busy are dropped by SubmitFrame.
// Undecodable frames and invalid payloads are ignored.
func (m *Machine) scan(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-m.frames:
			raw, ok := m.deps.Decoder.DecodeBarcode(f.img)
			if !ok {
				continue
			}
			p, err := qrpayload.Decode(raw)
			if err != nil {
				continue
			}
			m.post(payloadEvent{attempt: f.attempt, sessionID: p.SessionID, subjectCode: p.SubjectCode})
		}
	}
}
