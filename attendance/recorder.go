// Package attendance writes check-in records, at most one per student per
// session.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"qr_attendance_backend/models"
	"qr_attendance_backend/store"
)

type Recorder struct {
	store store.Store
	now   func() time.Time
}

func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st, now: time.Now}
}

// Record stores an attendance record for studentID in sessionID.
//
// The store checks, in order, that the session exists, that it has not ended
// and that no record for the student exists yet. The three checks and the
// write happen as one conditional write, so concurrent calls for the same
// student produce exactly one success.
//
// Failures are ErrSessionNotFound, ErrSessionEnded, ErrAlreadyRecorded or
// ErrStoreUnavailable. A blank studentID names no enrolled student and fails
// with ErrNoEnrollment before the store is touched.
func (r *Recorder) Record(ctx context.Context, sessionID, studentID string, fields models.RecordFields) (models.AttendanceRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return models.AttendanceRecord{}, models.ErrSessionNotFound
	}
	if strings.TrimSpace(studentID) == "" {
		return models.AttendanceRecord{}, fmt.Errorf("%w: missing student id", models.ErrNoEnrollment)
	}

	rec := models.AttendanceRecord{
		SessionID:   sessionID,
		StudentID:   studentID,
		Name:        fields.Name,
		TUPID:       fields.TUPID,
		Section:     fields.Section,
		SubjectCode: fields.SubjectCode,
		Timestamp:   r.now().UTC(),
	}
	if err := r.store.CreateRecord(ctx, rec); err != nil {
		reason := models.Reason(err)
		switch reason {
		case models.ErrAlreadyRecorded, models.ErrSessionEnded, models.ErrSessionNotFound:
			log.Printf("Attendance for student %s in session %s rejected: %v", studentID, sessionID, err)
		default:
			log.Printf("Error recording attendance for student %s in session %s: %v", studentID, sessionID, err)
		}
		if errors.Is(err, reason) {
			return models.AttendanceRecord{}, err
		}
		return models.AttendanceRecord{}, fmt.Errorf("%w: %w", reason, err)
	}
	log.Printf("Recorded attendance for student %s in session %s", studentID, sessionID)
	return rec, nil
}
