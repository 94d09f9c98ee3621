package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qr_attendance_backend/models"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// openTestStore connects to TEST_DATABASE_URL and resets the schema.
func openTestStore(t *testing.T) (*PostgresStore, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := InitSchema(conn); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := conn.Exec(`TRUNCATE attendance_records, sessions, students`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	s := NewPostgresStore(conn)
	t.Cleanup(func() { s.Close() })
	return s, dsn
}

func embedding() []float64 {
	v := make([]float64, models.EmbeddingSize)
	for i := range v {
		v[i] = float64(i) / 1000
	}
	return v
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "app", Password: "p@ss word", DBName: "attendance"}
	want := "postgresql://app:p%40ss%20word@db:5433/attendance?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadStudents(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "students.json")
	if err := os.WriteFile(good, []byte(`[{"id":"s1","name":"Ana","tupid":"T1","section":"A","face_embedding":`+
		zeroArray(models.EmbeddingSize)+`}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	students, err := LoadStudents(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(students) != 1 || students[0].Name != "Ana" || len(students[0].FaceEmbedding) != models.EmbeddingSize {
		t.Errorf("unexpected students: %+v", students)
	}

	short := filepath.Join(dir, "short.json")
	os.WriteFile(short, []byte(`[{"id":"s1","face_embedding":[1,2,3]}]`), 0o600)
	if _, err := LoadStudents(short); !errors.Is(err, models.ErrNoEnrollment) {
		t.Errorf("expected ErrNoEnrollment, got %v", err)
	}
}

func zeroArray(n int) string {
	out := []byte{'['}
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '0')
	}
	return string(append(out, ']'))
}

func TestPostgresStore_SessionLifecycle(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateSession(ctx, models.Session{ID: "S2", OwnerID: "t1", SubjectCode: "CS102", StartTime: t0}); !errors.Is(err, models.ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
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

	recent, err := s.EndedSessions(ctx, "t1", 10)
	if err != nil || len(recent) != 1 || recent[0].ID != "S1" {
		t.Errorf("ended sessions: %+v, %v", recent, err)
	}
	active, err := s.ActiveSessions(ctx, "t1")
	if err != nil || len(active) != 0 {
		t.Errorf("active sessions: %+v, %v", active, err)
	}
}

func TestPostgresStore_CreateRecordExactlyOnce(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatalf("create: %v", err)
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
			err := s.CreateRecord(ctx, models.AttendanceRecord{SessionID: "S1", StudentID: "st1", Name: "Ana", SubjectCode: "CS101", Timestamp: t0})
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
		t.Fatalf("successes=%d dupes=%d", successes, dupes)
	}

	if err := s.CreateRecord(ctx, models.AttendanceRecord{SessionID: "missing", StudentID: "st1", Timestamp: t0}); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := s.EndSession(ctx, "S1", t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRecord(ctx, models.AttendanceRecord{SessionID: "S1", StudentID: "st2", Timestamp: t0}); !errors.Is(err, models.ErrSessionEnded) {
		t.Errorf("expected ErrSessionEnded, got %v", err)
	}
	recs, err := s.Records(ctx, "S1")
	if err != nil || len(recs) != 1 {
		t.Errorf("records: %+v, %v", recs, err)
	}
}

func TestPostgresStore_Students(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Student(ctx, "st1"); !errors.Is(err, models.ErrNoEnrollment) {
		t.Fatalf("expected ErrNoEnrollment, got %v", err)
	}
	in := models.Student{ID: "st1", Name: "Ana", TUPID: "T1", Section: "A", FaceEmbedding: embedding()}
	if err := s.UpsertStudents(ctx, []models.Student{in}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	out, err := s.Student(ctx, "st1")
	if err != nil {
		t.Fatalf("student: %v", err)
	}
	if out.Name != "Ana" || len(out.FaceEmbedding) != models.EmbeddingSize || out.FaceEmbedding[10] != in.FaceEmbedding[10] {
		t.Errorf("unexpected student: %+v", out.Name)
	}
}

func TestListen_DeliversOtherWriters(t *testing.T) {
	s, dsn := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateSession(ctx, models.Session{ID: "S1", OwnerID: "t1", SubjectCode: "CS101", StartTime: t0}); err != nil {
		t.Fatal(err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go Listen(listenCtx, dsn, s.Feed())

	updates := make(chan []models.AttendanceRecord, 8)
	sub, err := s.SubscribeRecords("S1", func(r []models.AttendanceRecord) { updates <- r }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	<-updates

	// a second connection stands in for another server process
	other, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	time.Sleep(200 * time.Millisecond)
	if err := NewPostgresStore(other).CreateRecord(ctx, models.AttendanceRecord{SessionID: "S1", StudentID: "st1", Name: "Ana", Timestamp: t0}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case recs := <-updates:
			if len(recs) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("notification never reached subscriber")
		}
	}
}
