// Package sqlite is a single-file store for development and small
// deployments, built on gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"qr_attendance_backend/models"
	"qr_attendance_backend/store"
)

const activeSessionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_owner
    ON sessions (owner_id) WHERE end_time IS NULL`

type Store struct {
	db   *gorm.DB
	feed *store.Feed
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and migrates it. Use
// "file::memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlitedriver.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps in-memory
	// databases alive and shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&sessionRow{}, &recordRow{}, &studentRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error migrating sqlite database: %w", err)
	}
	if err := db.Exec(activeSessionIndex).Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error creating session index: %w", err)
	}
	log.Printf("Opened sqlite store at %s", path)

	s := &Store{db: db}
	s.feed = store.NewFeed(s.Records)
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session models.Session) error {
	row := sessionRow{
		ID:          session.ID,
		OwnerID:     session.OwnerID,
		SubjectCode: session.SubjectCode,
		StartTime:   session.StartTime.UTC(),
	}
	if session.EndTime != nil {
		end := session.EndTime.UTC()
		row.EndTime = &end
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(sqErr.Error(), "owner_id") {
			return models.ErrActiveSessionExists
		}
		return unavailable(err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (models.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Session{}, models.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, unavailable(err)
	}
	return row.toModel(), nil
}

func (s *Store) EndSession(ctx context.Context, id string, at time.Time) (models.Session, error) {
	err := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ? AND end_time IS NULL", id).
		Update("end_time", at.UTC()).Error
	if err != nil {
		return models.Session{}, unavailable(err)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) ActiveSessions(ctx context.Context, ownerID string) ([]models.Session, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND end_time IS NULL", ownerID).
		Order("start_time").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return toSessions(rows), nil
}

func (s *Store) EndedSessions(ctx context.Context, ownerID string, limit int) ([]models.Session, error) {
	q := s.db.WithContext(ctx).
		Where("owner_id = ? AND end_time IS NOT NULL", ownerID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "end_time"}, Desc: true}).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []sessionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, unavailable(err)
	}
	return toSessions(rows), nil
}

// CreateRecord inserts through a guarded INSERT ... SELECT so the active check
// and the uniqueness check happen in the same statement.
func (s *Store) CreateRecord(ctx context.Context, rec models.AttendanceRecord) error {
	res := s.db.WithContext(ctx).Exec(
		`INSERT INTO attendance_records
		     (session_id, student_id, name, tupid, section, subject_code, recorded_at)
		 SELECT id, ?, ?, ?, ?, ?, ?
		 FROM sessions
		 WHERE id = ? AND end_time IS NULL
		 ON CONFLICT (session_id, student_id) DO NOTHING`,
		rec.StudentID, rec.Name, rec.TUPID, rec.Section, rec.SubjectCode, rec.Timestamp.UTC(), rec.SessionID)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 1 {
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

func (s *Store) Records(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	records := make([]models.AttendanceRecord, len(rows))
	for i, r := range rows {
		records[i] = r.toModel()
	}
	return records, nil
}

func (s *Store) SubscribeRecords(sessionID string, onUpdate func([]models.AttendanceRecord), onError func(error)) (*store.Subscription, error) {
	return s.feed.Subscribe(sessionID, onUpdate, onError), nil
}

func (s *Store) Student(ctx context.Context, id string) (models.Student, error) {
	var row studentRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Student{}, fmt.Errorf("%w: student %s not found", models.ErrNoEnrollment, id)
	}
	if err != nil {
		return models.Student{}, unavailable(err)
	}
	student := models.Student{
		ID:            row.ID,
		Name:          row.Name,
		TUPID:         row.TUPID,
		Section:       row.Section,
		FaceEmbedding: row.FaceEmbedding,
	}
	if err := student.Validate(); err != nil {
		return models.Student{}, err
	}
	return student, nil
}

func (s *Store) UpsertStudents(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	rows := make([]studentRow, len(students))
	for i, student := range students {
		if err := student.Validate(); err != nil {
			return err
		}
		rows[i] = studentRow{
			ID:            student.ID,
			Name:          student.Name,
			TUPID:         student.TUPID,
			Section:       student.Section,
			FaceEmbedding: append([]float64(nil), student.FaceEmbedding...),
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Close() error {
	s.feed.Close(fmt.Errorf("%w: sqlite store closed", models.ErrStoreUnavailable))
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toSessions(rows []sessionRow) []models.Session {
	out := make([]models.Session, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}
