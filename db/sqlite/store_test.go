//go:build cgo

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qr_attendance_backend/models"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "attendance.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func embedding() []float64 {
	v := make([]float64, models.EmbeddingSize)
	for i := range v {
		v[i] = float64(i%13) / 10
	}
	return v
}

func TestStore_SessionLifecycle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateSession(ctx, models.Session{ID: "S2", OwnerID: "t1", SubjectCode: "CS102", StartTime: t0}); !errors.Is(err, models.ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}

	got, err := s.GetSession(ctx, "S1")
	if err != nil || !got.Active() || !got.StartTime.Equal(t0) {
		t.Fatalf("get: %+v, %v", got, err)
	}

	ended, err := s.EndSession(ctx, "S1", t0.Add(time.Hour))
	if err != nil || ended.EndTime == nil || !ended.EndTime.Equal(t0.Add(time.Hour)) {
		t.Fatalf("end: %+v, %v", ended, err)
	}
	again, err := s.EndSession(ctx, "S1", t0.Add(2*time.Hour))
	if err != nil || !again.EndTime.Equal(t0.Add(time.Hour)) {
		t.Errorf("end time changed: %+v, %v", again, err)
	}
	if _, err := s.EndSession(ctx, "nope", t0); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	if err := s.CreateSession(ctx, models.Session{ID: "S2", OwnerID: "t1", SubjectCode: "CS102", StartTime: t0.Add(3 * time.Hour)}); err != nil {
		t.Fatalf("owner should be able to start again: %v", err)
	}
	active, err := s.ActiveSessions(ctx, "t1")
	if err != nil || len(active) != 1 || active[0].ID != "S2" {
		t.Errorf("active: %+v, %v", active, err)
	}
	recent, err := s.EndedSessions(ctx, "t1", 5)
	if err != nil || len(recent) != 1 || recent[0].ID != "S1" {
		t.Errorf("ended: %+v, %v", recent, err)
	}
}

func TestStore_CreateRecordCheckOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatal(err)
	}
	rec := models.AttendanceRecord{SessionID: "S1", StudentID: "st1", Name: "Ana", TUPID: "T1", Section: "A", SubjectCode: "CS101", Timestamp: t0}

	if err := s.CreateRecord(ctx, models.AttendanceRecord{SessionID: "nope", StudentID: "st1", Timestamp: t0}); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := s.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := s.CreateRecord(ctx, rec); !errors.Is(err, models.ErrAlreadyRecorded) {
		t.Errorf("expected ErrAlreadyRecorded, got %v", err)
	}
	if _, err := s.EndSession(ctx, "S1", t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRecord(ctx, rec); !errors.Is(err, models.ErrSessionEnded) {
		t.Errorf("ended session must be reported before duplicate, got %v", err)
	}

	recs, err := s.Records(ctx, "S1")
	if err != nil || len(recs) != 1 || recs[0].TUPID != "T1" || !recs[0].Timestamp.Equal(t0) {
		t.Errorf("records: %+v, %v", recs, err)
	}
}

func TestStore_ConcurrentRecordExactlyOnce(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatal(err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateRecord(ctx, models.AttendanceRecord{SessionID: "S1", StudentID: "st1", Timestamp: t0})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrAlreadyRecorded):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || dupes != 15 {
		t.Errorf("successes=%d dupes=%d", successes, dupes)
	}
}

func TestStore_RecordsNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatal(err)
	}
	for i, id := range []string{"a", "b", "c"} {
		if err := s.CreateRecord(ctx, models.AttendanceRecord{SessionID: "S1", StudentID: id, Timestamp: t0.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.Records(ctx, "S1")
	if err != nil || len(recs) != 3 || recs[0].StudentID != "c" || recs[2].StudentID != "a" {
		t.Errorf("records: %+v, %v", recs, err)
	}
}

func TestStore_Students(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if _, err := s.Student(ctx, "st1"); !errors.Is(err, models.ErrNoEnrollment) {
		t.Fatalf("expected ErrNoEnrollment, got %v", err)
	}
	in := models.Student{ID: "st1", Name: "Ana", TUPID: "T1", Section: "A", FaceEmbedding: embedding()}
	if err := s.UpsertStudents(ctx, []models.Student{in}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	in.Name = "Ana Cruz"
	if err := s.UpsertStudents(ctx, []models.Student{in}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	out, err := s.Student(ctx, "st1")
	if err != nil {
		t.Fatalf("student: %v", err)
	}
	if out.Name != "Ana Cruz" || len(out.FaceEmbedding) != models.EmbeddingSize || out.FaceEmbedding[5] != in.FaceEmbedding[5] {
		t.Errorf("unexpected student: %s (%d values)", out.Name, len(out.FaceEmbedding))
	}
	if err := s.UpsertStudents(ctx, []models.Student{{ID: "bad", FaceEmbedding: []float64{1}}}); !errors.Is(err, models.ErrNoEnrollment) {
		t.Errorf("expected ErrNoEnrollment, got %v", err)
	}
}

func TestStore_SubscriptionSeesWrites(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatal(err)
	}
	updates := make(chan []models.AttendanceRecord, 4)
	sub, err := s.SubscribeRecords("S1", func(r []models.AttendanceRecord) { updates <- r }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	<-updates

	if err := s.CreateRecord(ctx, models.AttendanceRecord{SessionID: "S1", StudentID: "st1", Timestamp: t0}); err != nil {
		t.Fatal(err)
	}
	select {
	case recs := <-updates:
		if len(recs) != 1 {
			t.Errorf("unexpected delivery: %+v", recs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery after write")
	}
}
