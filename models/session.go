package models

import "time"

type Session struct {
	ID          string     `json:"session_id"`
	OwnerID     string     `json:"owner_id"`
	SubjectCode string     `json:"subject_code"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// Active reports whether the session still accepts check-ins.
func (s Session) Active() bool {
	return s.EndTime == nil
}

type CreateSessionRequest struct {
	SubjectCode string `json:"subject_code" binding:"required"`
}

type SessionResponse struct {
	Session
	Active  bool   `json:"active"`
	Payload string `json:"payload"`
}
