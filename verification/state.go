package verification

import (
	"encoding/json"
	"image"
	"time"

	"qr_attendance_backend/models"
)

type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseScanningQR          Phase = "scanning_qr"
	PhaseAwaitingFaceCapture Phase = "awaiting_face_capture"
	PhaseVerifying           Phase = "verifying"
	PhaseRecording           Phase = "recording"
	PhaseSuccess             Phase = "success"
	PhaseFailed              Phase = "failed"
)

// Status is a snapshot of a Machine. Reason is set only in PhaseFailed.
type Status struct {
	Phase       Phase
	Attempt     uint64
	Reason      error
	SessionID   string
	SubjectCode string
	StartedAt   time.Time
	Distance    *float64
	Record      *models.AttendanceRecord
}

func (s Status) MarshalJSON() ([]byte, error) {
	out := struct {
		Phase       Phase                    `json:"phase"`
		Attempt     uint64                   `json:"attempt"`
		Reason      string                   `json:"reason,omitempty"`
		Message     string                   `json:"message,omitempty"`
		SessionID   string                   `json:"session_id,omitempty"`
		SubjectCode string                   `json:"subject_code,omitempty"`
		StartedAt   *time.Time               `json:"started_at,omitempty"`
		Distance    *float64                 `json:"distance,omitempty"`
		Record      *models.AttendanceRecord `json:"record,omitempty"`
	}{
		Phase:       s.Phase,
		Attempt:     s.Attempt,
		SessionID:   s.SessionID,
		SubjectCode: s.SubjectCode,
		Distance:    s.Distance,
		Record:      s.Record,
	}
	if s.Reason != nil {
		out.Reason = models.ReasonCode(s.Reason)
		out.Message = s.Reason.Error()
	}
	if !s.StartedAt.IsZero() {
		out.StartedAt = &s.StartedAt
	}
	return json.Marshal(out)
}

type event any

type startEvent struct{ reply chan error }

type abortEvent struct{}

type captureEvent struct {
	img   image.Image
	reply chan error
}

type payloadEvent struct {
	attempt     uint64
	sessionID   string
	subjectCode string
}

type sessionEvent struct {
	attempt     uint64
	subjectCode string
	session     models.Session
	err         error
}

type detectedEvent struct {
	attempt uint64
	regions []image.Rectangle
	err     error
}

type verifiedEvent struct {
	attempt  uint64
	student  models.Student
	distance float64
	compared bool
	matched  bool
	err      error
}

type recordedEvent struct {
	attempt uint64
	record  models.AttendanceRecord
	err     error
}

type resetEvent struct{ attempt uint64 }
