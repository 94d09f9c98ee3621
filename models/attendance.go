package models

import "time"

// AttendanceRecord is written once per student per session.
type AttendanceRecord struct {
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	Name        string    `json:"name"`
	TUPID       string    `json:"tupid"`
	Section     string    `json:"section"`
	SubjectCode string    `json:"subject_code"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecordFields are the profile fields copied into a record at check-in time.
type RecordFields struct {
	Name        string
	TUPID       string
	Section     string
	SubjectCode string
}

type AttendanceListResponse struct {
	SessionID string             `json:"session_id"`
	Count     int                `json:"count"`
	Records   []AttendanceRecord `json:"records"`
}
