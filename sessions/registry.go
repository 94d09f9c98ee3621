// Package sessions manages the lifecycle of attendance sessions owned by
// teachers.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"qr_attendance_backend/models"
	"qr_attendance_backend/store"
)

const DefaultRecentLimit = 20

type Registry struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store: st,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreateSession opens a new session for ownerID. An owner can hold only one
// active session; a second request fails with ErrActiveSessionExists.
func (r *Registry) CreateSession(ctx context.Context, ownerID, subjectCode string) (models.Session, error) {
	ownerID = strings.TrimSpace(ownerID)
	subjectCode = strings.TrimSpace(subjectCode)
	if ownerID == "" || subjectCode == "" {
		return models.Session{}, models.ErrInvalidSession
	}

	session := models.Session{
		ID:          r.newID(),
		OwnerID:     ownerID,
		SubjectCode: subjectCode,
		StartTime:   r.now().UTC(),
	}
	if err := r.store.CreateSession(ctx, session); err != nil {
		if !errors.Is(err, models.ErrActiveSessionExists) {
			log.Printf("Error creating session for owner %s: %v", ownerID, err)
		}
		return models.Session{}, storeError(err)
	}
	log.Printf("Created session %s (%s) for owner %s", session.ID, subjectCode, ownerID)
	return session, nil
}

// EndSession closes the session. Ending an already ended session keeps the
// original end time.
func (r *Registry) EndSession(ctx context.Context, sessionID string) (models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return models.Session{}, models.ErrSessionNotFound
	}
	session, err := r.store.EndSession(ctx, sessionID, r.now().UTC())
	if err != nil {
		return models.Session{}, storeError(err)
	}
	log.Printf("Session %s ended at %s", session.ID, session.EndTime.Format(time.RFC3339))
	return session, nil
}

// FindActiveSession returns the owner's open session. When a store holds more
// than one, the earliest started (then lowest id) wins.
func (r *Registry) FindActiveSession(ctx context.Context, ownerID string) (models.Session, bool, error) {
	active, err := r.store.ActiveSessions(ctx, ownerID)
	if err != nil {
		return models.Session{}, false, storeError(err)
	}
	if len(active) == 0 {
		return models.Session{}, false, nil
	}
	return active[0], true, nil
}

func (r *Registry) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return models.Session{}, models.ErrSessionNotFound
	}
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return models.Session{}, storeError(err)
	}
	return session, nil
}

// RecentSessions lists the owner's ended sessions, most recently ended first.
func (r *Registry) RecentSessions(ctx context.Context, ownerID string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	sessions, err := r.store.EndedSessions(ctx, ownerID, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return sessions, nil
}

func (r *Registry) Records(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := r.store.Records(ctx, sessionID)
	if err != nil {
		return nil, storeError(err)
	}
	return records, nil
}

// SubscribeRecords delivers the complete record list of a session, newest
// first, once immediately and again after every change. Each delivery
// replaces the previous one. onError fires at most once, after which the
// subscription is dead.
func (r *Registry) SubscribeRecords(sessionID string, onUpdate func([]models.AttendanceRecord), onError func(error)) (*store.Subscription, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, models.ErrSessionNotFound
	}
	sub, err := r.store.SubscribeRecords(sessionID, onUpdate, func(err error) {
		log.Printf("Record subscription for session %s failed: %v", sessionID, err)
		if onError != nil {
			onError(storeError(err))
		}
	})
	if err != nil {
		return nil, storeError(err)
	}
	return sub, nil
}

// storeError keeps taxonomy errors and wraps anything else as
// ErrStoreUnavailable.
func storeError(err error) error {
	if models.Reason(err) == models.ErrStoreUnavailable && !errors.Is(err, models.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	return err
}
