package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qr_attendance_backend/models"
)

type StudentDirectory interface {
	Student(ctx context.Context, id string) (models.Student, error)
}

type UserHandler struct {
	students StudentDirectory
}

func NewUserHandler(students StudentDirectory) *UserHandler {
	return &UserHandler{students: students}
}

// GetUserInfo fetches the user's profile information
func (h *UserHandler) GetUserInfo(c *gin.Context) {
	profile := models.UserProfile{
		UserID: c.GetString("userID"),
		Role:   c.GetString("userRole"),
	}
	if profile.Role != models.RoleStudent {
		c.JSON(http.StatusOK, profile)
		return
	}

	student, err := h.students.Student(c.Request.Context(), profile.UserID)
	switch {
	case err == nil:
		profile.Name = student.Name
		profile.TUPID = student.TUPID
		profile.Section = student.Section
		profile.Enrolled = true
	case errors.Is(err, models.ErrNoEnrollment):
		// not enrolled yet; check-in will fail with NoEnrollment
	default:
		log.Printf("Error getting user profile: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user info"})
		return
	}
	c.JSON(http.StatusOK, profile)
}
