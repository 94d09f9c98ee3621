package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qr_attendance_backend/models"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidPayload), errors.Is(err, models.ErrInvalidSession):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrNoEnrollment):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSessionEnded), errors.Is(err, models.ErrAlreadyRecorded),
		errors.Is(err, models.ErrActiveSessionExists):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// respondError writes err with its taxonomy code. Store failures are not
// echoed to the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		msg = "Attendance store is unavailable"
	}
	c.JSON(status, gin.H{"error": msg, "reason": models.ReasonCode(err)})
}
