// Package watcher keeps a teacher-facing view of a session's attendance
// records in sync with the live record subscription.
package watcher

import (
	"log"
	"sync"

	"qr_attendance_backend/models"
	"qr_attendance_backend/store"
)

type Source interface {
	SubscribeRecords(sessionID string, onUpdate func([]models.AttendanceRecord), onError func(error)) (*store.Subscription, error)
}

// Watcher holds the latest record list for one session. Every delivery
// replaces the list; a delivery equal to the current list is ignored.
type Watcher struct {
	sessionID string
	sub       *store.Subscription

	mu      sync.RWMutex
	records []models.AttendanceRecord
	version uint64
	err     error

	updates chan []models.AttendanceRecord
	failed  chan struct{}
	once    sync.Once
}

func Watch(src Source, sessionID string) (*Watcher, error) {
	w := &Watcher{
		sessionID: sessionID,
		updates:   make(chan []models.AttendanceRecord, 1),
		failed:    make(chan struct{}),
	}
	sub, err := src.SubscribeRecords(sessionID, w.apply, w.fail)
	if err != nil {
		return nil, err
	}
	w.sub = sub
	return w, nil
}

func (w *Watcher) apply(records []models.AttendanceRecord) {
	w.mu.Lock()
	if w.version > 0 && sameRecords(w.records, records) {
		w.mu.Unlock()
		return
	}
	w.records = append([]models.AttendanceRecord(nil), records...)
	w.version++
	latest := append([]models.AttendanceRecord(nil), records...)
	w.mu.Unlock()

	// apply is the only sender, so draining first keeps the send from
	// blocking and leaves only the newest list queued.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- latest
}

func (w *Watcher) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	log.Printf("Watcher for session %s stopped: %v", w.sessionID, err)
	close(w.failed)
}

// Updates yields the newest record list after each change. Lists a slow
// reader missed are skipped.
func (w *Watcher) Updates() <-chan []models.AttendanceRecord {
	return w.updates
}

// Failed is closed when the subscription dies; Err then reports why.
func (w *Watcher) Failed() <-chan struct{} {
	return w.failed
}

func (w *Watcher) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Snapshot returns the current list, most recent first, and how many
// distinct lists have been applied.
func (w *Watcher) Snapshot() ([]models.AttendanceRecord, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]models.AttendanceRecord(nil), w.records...), w.version
}

func (w *Watcher) Contains(studentID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, r := range w.records {
		if r.StudentID == studentID {
			return true
		}
	}
	return false
}

func (w *Watcher) SessionID() string {
	return w.sessionID
}

// Close unsubscribes. No update is applied after it returns.
func (w *Watcher) Close() {
	w.once.Do(w.sub.Unsubscribe)
}

func sameRecords(a, b []models.AttendanceRecord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].StudentID != b[i].StudentID || !a[i].Timestamp.Equal(b[i].Timestamp) ||
			a[i].Name != b[i].Name || a[i].TUPID != b[i].TUPID ||
			a[i].Section != b[i].Section || a[i].SubjectCode != b[i].SubjectCode {
			return false
		}
	}
	return true
}
