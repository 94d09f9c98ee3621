package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"qr_attendance_backend/models"
	"qr_attendance_backend/store"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	if err := st.CreateSession(context.Background(), models.Session{ID: "S1", OwnerID: "teacher-1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return st
}

func record(st *store.MemoryStore, t *testing.T, studentID string, at time.Time) {
	t.Helper()
	if err := st.CreateRecord(context.Background(), models.AttendanceRecord{
		SessionID: "S1", StudentID: studentID, Name: studentID, SubjectCode: "CS101", Timestamp: at,
	}); err != nil {
		t.Fatalf("create record: %v", err)
	}
}

func nextUpdate(t *testing.T, w *Watcher) []models.AttendanceRecord {
	t.Helper()
	select {
	case recs := <-w.Updates():
		return recs
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
		return nil
	}
}

func TestWatcher_FollowsRecords(t *testing.T) {
	st := setup(t)
	w, err := Watch(st, "S1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	if recs := nextUpdate(t, w); len(recs) != 0 {
		t.Fatalf("initial list has %d records", len(recs))
	}

	record(st, t, "student-1", t0.Add(time.Minute))
	if recs := nextUpdate(t, w); len(recs) != 1 || recs[0].StudentID != "student-1" {
		t.Fatalf("unexpected list: %+v", recs)
	}
	record(st, t, "student-2", t0.Add(2*time.Minute))
	recs := nextUpdate(t, w)
	if len(recs) != 2 || recs[0].StudentID != "student-2" {
		t.Fatalf("expected newest first, got %+v", recs)
	}
	if !w.Contains("student-1") || w.Contains("student-3") {
		t.Error("Contains disagrees with the snapshot")
	}
}

func TestWatcher_IdenticalDeliveryIsIgnored(t *testing.T) {
	w := &Watcher{updates: make(chan []models.AttendanceRecord, 1), failed: make(chan struct{})}
	list := []models.AttendanceRecord{{SessionID: "S1", StudentID: "a", Timestamp: t0}}

	w.apply(list)
	w.apply(append([]models.AttendanceRecord(nil), list...))
	if _, version := w.Snapshot(); version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	<-w.Updates()
	select {
	case recs := <-w.Updates():
		t.Errorf("duplicate delivery surfaced: %+v", recs)
	default:
	}

	w.apply(nil)
	snap, version := w.Snapshot()
	if version != 2 || len(snap) != 0 {
		t.Errorf("snapshot = %+v (version %d), want empty at version 2", snap, version)
	}
}

func TestWatcher_KeepsOnlyLatestForSlowReader(t *testing.T) {
	w := &Watcher{updates: make(chan []models.AttendanceRecord, 1), failed: make(chan struct{})}
	for i := 1; i <= 3; i++ {
		list := make([]models.AttendanceRecord, i)
		for j := range list {
			list[j] = models.AttendanceRecord{StudentID: string(rune('a' + j)), Timestamp: t0}
		}
		w.apply(list)
	}
	if recs := <-w.Updates(); len(recs) != 3 {
		t.Errorf("queued list has %d records, want 3", len(recs))
	}
}

func TestWatcher_FailureIsReported(t *testing.T) {
	st := setup(t)
	w, err := Watch(st, "S1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()
	nextUpdate(t, w)

	st.Close()
	select {
	case <-w.Failed():
	case <-time.After(2 * time.Second):
		t.Fatal("failure not reported")
	}
	if !errors.Is(w.Err(), models.ErrStoreUnavailable) {
		t.Errorf("Err() = %v", w.Err())
	}
}

func TestWatcher_CloseStopsUpdates(t *testing.T) {
	st := setup(t)
	w, err := Watch(st, "S1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	nextUpdate(t, w)
	w.Close()
	w.Close()

	record(st, t, "student-1", t0.Add(time.Minute))
	select {
	case recs := <-w.Updates():
		t.Fatalf("update after close: %+v", recs)
	case <-time.After(50 * time.Millisecond):
	}
	if _, version := w.Snapshot(); version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
}
