package sqlite

import (
	"time"

	"qr_attendance_backend/models"
)

type sessionRow struct {
	ID          string    `gorm:"primaryKey"`
	OwnerID     string    `gorm:"not null;index"`
	SubjectCode string    `gorm:"not null"`
	StartTime   time.Time `gorm:"not null"`
	EndTime     *time.Time
}

func (sessionRow) TableName() string { return "sessions" }

func (r sessionRow) toModel() models.Session {
	s := models.Session{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		SubjectCode: r.SubjectCode,
		StartTime:   r.StartTime.UTC(),
	}
	if r.EndTime != nil {
		end := r.EndTime.UTC()
		s.EndTime = &end
	}
	return s
}

type recordRow struct {
	ID          uint   `gorm:"primaryKey"`
	SessionID   string `gorm:"not null;uniqueIndex:idx_records_session_student"`
	StudentID   string `gorm:"not null;uniqueIndex:idx_records_session_student"`
	Name        string
	TUPID       string `gorm:"column:tupid"`
	Section     string
	SubjectCode string
	RecordedAt  time.Time `gorm:"not null;index"`
}

func (recordRow) TableName() string { return "attendance_records" }

func (r recordRow) toModel() models.AttendanceRecord {
	return models.AttendanceRecord{
		SessionID:   r.SessionID,
		StudentID:   r.StudentID,
		Name:        r.Name,
		TUPID:       r.TUPID,
		Section:     r.Section,
		SubjectCode: r.SubjectCode,
		Timestamp:   r.RecordedAt.UTC(),
	}
}

type studentRow struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	TUPID         string `gorm:"column:tupid"`
	Section       string
	FaceEmbedding []float64 `gorm:"serializer:json;not null"`
}

func (studentRow) TableName() string { return "students" }
