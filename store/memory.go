package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"qr_attendance_backend/models"
)

type storedRecord struct {
	rec models.AttendanceRecord
	seq uint64
}

// MemoryStore keeps everything in process memory. It backs tests and the
// "memory" store driver.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	records  map[string]map[string]storedRecord
	students map[string]models.Student
	seq      uint64
	closed   bool

	feed *Feed
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]models.Session),
		records:  make(map[string]map[string]storedRecord),
		students: make(map[string]models.Student),
	}
	s.feed = NewFeed(s.Records)
	return s
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: memory store closed", models.ErrStoreUnavailable)
	}
	return ctx.Err()
}

func (s *MemoryStore) CreateSession(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: duplicate session id %s", models.ErrStoreUnavailable, session.ID)
	}
	if session.EndTime == nil {
		for _, other := range s.sessions {
			if other.OwnerID == session.OwnerID && other.Active() {
				return models.ErrActiveSessionExists
			}
		}
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return models.Session{}, err
	}
	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, models.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) EndSession(ctx context.Context, id string, at time.Time) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return models.Session{}, err
	}
	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, models.ErrSessionNotFound
	}
	if session.EndTime == nil {
		end := at
		session.EndTime = &end
		s.sessions[id] = session
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) ActiveSessions(ctx context.Context, ownerID string) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	var out []models.Session
	for _, session := range s.sessions {
		if session.OwnerID == ownerID && session.Active() {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) EndedSessions(ctx context.Context, ownerID string, limit int) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	var out []models.Session
	for _, session := range s.sessions {
		if session.OwnerID == ownerID && !session.Active() {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndTime.Equal(*out[j].EndTime) {
			return out[i].EndTime.After(*out[j].EndTime)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateRecord(ctx context.Context, rec models.AttendanceRecord) error {
	s.mu.Lock()
	if err := s.usable(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	session, ok := s.sessions[rec.SessionID]
	if !ok {
		s.mu.Unlock()
		return models.ErrSessionNotFound
	}
	if !session.Active() {
		s.mu.Unlock()
		return models.ErrSessionEnded
	}
	byStudent := s.records[rec.SessionID]
	if byStudent == nil {
		byStudent = make(map[string]storedRecord)
		s.records[rec.SessionID] = byStudent
	}
	if _, exists := byStudent[rec.StudentID]; exists {
		s.mu.Unlock()
		return models.ErrAlreadyRecorded
	}
	s.seq++
	byStudent[rec.StudentID] = storedRecord{rec: rec, seq: s.seq}
	s.mu.Unlock()

	s.feed.Publish(rec.SessionID)
	return nil
}

func (s *MemoryStore) Records(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	stored := make([]storedRecord, 0, len(s.records[sessionID]))
	for _, r := range s.records[sessionID] {
		stored = append(stored, r)
	}
	sort.Slice(stored, func(i, j int) bool {
		if !stored[i].rec.Timestamp.Equal(stored[j].rec.Timestamp) {
			return stored[i].rec.Timestamp.After(stored[j].rec.Timestamp)
		}
		return stored[i].seq > stored[j].seq
	})
	out := make([]models.AttendanceRecord, len(stored))
	for i, r := range stored {
		out[i] = r.rec
	}
	return out, nil
}

func (s *MemoryStore) SubscribeRecords(sessionID string, onUpdate func([]models.AttendanceRecord), onError func(error)) (*Subscription, error) {
	return s.feed.Subscribe(sessionID, onUpdate, onError), nil
}

func (s *MemoryStore) Student(ctx context.Context, id string) (models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return models.Student{}, err
	}
	student, ok := s.students[id]
	if !ok {
		return models.Student{}, fmt.Errorf("%w: student %s not found", models.ErrNoEnrollment, id)
	}
	if err := student.Validate(); err != nil {
		return models.Student{}, err
	}
	return cloneStudent(student), nil
}

func (s *MemoryStore) UpsertStudents(ctx context.Context, students []models.Student) error {
	for _, student := range students {
		if err := student.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	for _, student := range students {
		s.students[student.ID] = cloneStudent(student)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.feed.Close(fmt.Errorf("%w: memory store closed", models.ErrStoreUnavailable))
	return nil
}

// usable must be called with s.mu held.
func (s *MemoryStore) usable(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("%w: memory store closed", models.ErrStoreUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	return nil
}

func cloneSession(s models.Session) models.Session {
	if s.EndTime != nil {
		end := *s.EndTime
		s.EndTime = &end
	}
	return s
}

func cloneStudent(s models.Student) models.Student {
	s.FaceEmbedding = append([]float64(nil), s.FaceEmbedding...)
	return s
}
