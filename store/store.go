// Package store defines the document-store contract the attendance pipeline
// depends on, a subscription engine shared by the implementations, and an
// in-memory implementation.
package store

import (
	"context"
	"time"

	"qr_attendance_backend/models"
)

// Store persists sessions, attendance records and enrolled students.
//
// Implementations return the sentinel errors from models: ErrSessionNotFound,
// ErrSessionEnded, ErrAlreadyRecorded, ErrActiveSessionExists, ErrNoEnrollment,
// and wrap transport failures with ErrStoreUnavailable.
type Store interface {
	Ping(ctx context.Context) error

	// CreateSession fails with ErrActiveSessionExists when the owner already
	// has a session without an end time.
	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, id string) (models.Session, error)
	// EndSession sets the end time if it is not set yet and returns the
	// stored session. An already ended session is returned unchanged.
	EndSession(ctx context.Context, id string, at time.Time) (models.Session, error)
	// ActiveSessions lists the owner's open sessions by start time, then id.
	ActiveSessions(ctx context.Context, ownerID string) ([]models.Session, error)
	// EndedSessions lists the owner's closed sessions, most recently ended first.
	EndedSessions(ctx context.Context, ownerID string, limit int) ([]models.Session, error)

	// CreateRecord is a conditional write: the record is stored only if the
	// session exists, is active and holds no record for the student yet.
	CreateRecord(ctx context.Context, rec models.AttendanceRecord) error
	// Records lists a session's records, most recent first.
	Records(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
	SubscribeRecords(sessionID string, onUpdate func([]models.AttendanceRecord), onError func(error)) (*Subscription, error)

	Student(ctx context.Context, id string) (models.Student, error)
	UpsertStudents(ctx context.Context, students []models.Student) error

	Close() error
}
