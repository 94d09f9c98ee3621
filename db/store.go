package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"qr_attendance_backend/models"
	"qr_attendance_backend/store"
)

const (
	activeSessionIndex = "sessions_one_active_per_owner"
	uniqueViolation    = "23505"
)

// PostgresStore implements store.Store on the schema in Schema.
type PostgresStore struct {
	db   *sql.DB
	feed *store.Feed
}

var _ store.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	s := &PostgresStore{db: db}
	s.feed = store.NewFeed(s.Records)
	return s
}

// Feed exposes the subscription engine so a Listener can publish changes
// made by other processes.
func (s *PostgresStore) Feed() *store.Feed {
	return s.feed
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, owner_id, subject_code, start_time, end_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.OwnerID, session.SubjectCode, session.StartTime.UTC(), nullTime(session.EndTime))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == activeSessionIndex {
			return models.ErrActiveSessionExists
		}
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, subject_code, start_time, end_time FROM sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, models.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, unavailable(err)
	}
	return session, nil
}

func (s *PostgresStore) EndSession(ctx context.Context, id string, at time.Time) (models.Session, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET end_time = $2 WHERE id = $1 AND end_time IS NULL`, id, at.UTC()); err != nil {
		return models.Session{}, unavailable(err)
	}
	return s.GetSession(ctx, id)
}

func (s *PostgresStore) ActiveSessions(ctx context.Context, ownerID string) ([]models.Session, error) {
	return s.querySessions(ctx,
		`SELECT id, owner_id, subject_code, start_time, end_time FROM sessions
		 WHERE owner_id = $1 AND end_time IS NULL
		 ORDER BY start_time, id`, ownerID)
}

func (s *PostgresStore) EndedSessions(ctx context.Context, ownerID string, limit int) ([]models.Session, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	return s.querySessions(ctx,
		`SELECT id, owner_id, subject_code, start_time, end_time FROM sessions
		 WHERE owner_id = $1 AND end_time IS NOT NULL
		 ORDER BY end_time DESC, id
		 LIMIT $2`, ownerID, lim)
}

// CreateRecord inserts the record only if the session is active and the
// student has no record yet. When nothing is inserted the session is read
// back to tell the three rejections apart.
func (s *PostgresStore) CreateRecord(ctx context.Context, rec models.AttendanceRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_records
		     (session_id, student_id, name, tupid, section, subject_code, recorded_at)
		 SELECT s.id, $2, $3, $4, $5, $6, $7
		 FROM sessions s
		 WHERE s.id = $1 AND s.end_time IS NULL
		 ON CONFLICT (session_id, student_id) DO NOTHING`,
		rec.SessionID, rec.StudentID, rec.Name, rec.TUPID, rec.Section, rec.SubjectCode, rec.Timestamp.UTC())
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 1 {
		s.feed.Publish(rec.SessionID)
		return nil
	}

	session, err := s.GetSession(ctx, rec.SessionID)
	if err != nil {
		return err
	}
	if !session.Active() {
		return models.ErrSessionEnded
	}
	return models.ErrAlreadyRecorded
}

func (s *PostgresStore) Records(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, student_id, name, tupid, section, subject_code, recorded_at
		 FROM attendance_records
		 WHERE session_id = $1
		 ORDER BY recorded_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	records := []models.AttendanceRecord{}
	for rows.Next() {
		var r models.AttendanceRecord
		if err := rows.Scan(&r.SessionID, &r.StudentID, &r.Name, &r.TUPID, &r.Section, &r.SubjectCode, &r.Timestamp); err != nil {
			return nil, unavailable(err)
		}
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

func (s *PostgresStore) SubscribeRecords(sessionID string, onUpdate func([]models.AttendanceRecord), onError func(error)) (*store.Subscription, error) {
	return s.feed.Subscribe(sessionID, onUpdate, onError), nil
}

func (s *PostgresStore) Student(ctx context.Context, id string) (models.Student, error) {
	var (
		student   models.Student
		embedding pq.Float64Array
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tupid, section, face_embedding FROM students WHERE id = $1`, id).
		Scan(&student.ID, &student.Name, &student.TUPID, &student.Section, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Student{}, fmt.Errorf("%w: student %s not found", models.ErrNoEnrollment, id)
	}
	if err != nil {
		return models.Student{}, unavailable(err)
	}
	student.FaceEmbedding = []float64(embedding)
	if err := student.Validate(); err != nil {
		return models.Student{}, err
	}
	return student, nil
}

func (s *PostgresStore) UpsertStudents(ctx context.Context, students []models.Student) error {
	for _, student := range students {
		if err := student.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(fmt.Errorf("error starting transaction: %w", err))
	}
	for _, student := range students {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO students (id, name, tupid, section, face_embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
			     name = EXCLUDED.name,
			     tupid = EXCLUDED.tupid,
			     section = EXCLUDED.section,
			     face_embedding = EXCLUDED.face_embedding`,
			student.ID, student.Name, student.TUPID, student.Section, pq.Float64Array(student.FaceEmbedding))
		if err != nil {
			tx.Rollback()
			return unavailable(fmt.Errorf("error upserting student %s: %w", student.ID, err))
		}
	}
	if err = tx.Commit(); err != nil {
		return unavailable(fmt.Errorf("error committing transaction: %w", err))
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.feed.Close(fmt.Errorf("%w: postgres store closed", models.ErrStoreUnavailable))
	return s.db.Close()
}

func (s *PostgresStore) querySessions(ctx context.Context, query string, args ...interface{}) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (models.Session, error) {
	var (
		session models.Session
		end     sql.NullTime
	)
	if err := row.Scan(&session.ID, &session.OwnerID, &session.SubjectCode, &session.StartTime, &end); err != nil {
		return models.Session{}, err
	}
	session.StartTime = session.StartTime.UTC()
	if end.Valid {
		t := end.Time.UTC()
		session.EndTime = &t
	}
	return session, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}
