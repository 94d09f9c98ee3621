package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// UserProfile describes the authenticated caller. Student profile fields are
// filled from the enrollment record when one exists.
type UserProfile struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	TUPID    string `json:"tupid,omitempty"`
	Section  string `json:"section,omitempty"`
	Enrolled bool   `json:"enrolled"`
}
