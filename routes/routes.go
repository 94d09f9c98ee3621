package routes

import (
	"github.com/gin-gonic/gin"

	"qr_attendance_backend/attendance"
	"qr_attendance_backend/handlers"
	"qr_attendance_backend/middleware"
	"qr_attendance_backend/models"
	"qr_attendance_backend/sessions"
	"qr_attendance_backend/store"
	"qr_attendance_backend/verification"
)

// Services are the long-lived dependencies the handlers are built from.
type Services struct {
	Store          store.Store
	Detector       verification.FaceDetector
	Extractor      verification.EmbeddingExtractor
	Decoder        verification.BarcodeDecoder
	Matcher        verification.Matcher
	Checkin        handlers.CheckinOptions
	AllowedOrigins []string
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, svc Services, jwtSecret []byte) {
	registry := sessions.NewRegistry(svc.Store)
	recorder := attendance.NewRecorder(svc.Store)
	upgrader := handlers.NewUpgrader(svc.AllowedOrigins)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(svc.Store)
	userHandler := handlers.NewUserHandler(svc.Store)
	sessionHandler := handlers.NewSessionHandler(registry, upgrader)
	checkinHandler := handlers.NewCheckinHandler(registry, verification.Deps{
		Sessions:  registry,
		Students:  svc.Store,
		Recorder:  recorder,
		Detector:  svc.Detector,
		Extractor: svc.Extractor,
		Decoder:   svc.Decoder,
		Matcher:   svc.Matcher,
	}, svc.Checkin, upgrader)

	// Public routes
	r.GET("/health", healthHandler.HealthCheck)

	// Protected routes
	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware(jwtSecret))

	// User info route
	protected.GET("/userinfo", userHandler.GetUserInfo)

	// Teacher routes
	teacher := protected.Group("/sessions")
	teacher.Use(middleware.RequireRole(models.RoleTeacher))
	{
		teacher.POST("", sessionHandler.CreateSession)
		teacher.GET("/active", sessionHandler.GetActiveSession)
		teacher.GET("/recent", sessionHandler.GetRecentSessions)
		teacher.POST("/:id/end", sessionHandler.EndSession)
		teacher.GET("/:id/qr.png", sessionHandler.GetSessionQR)
		teacher.GET("/:id/records", sessionHandler.GetRecords)
		teacher.GET("/:id/records/ws", sessionHandler.StreamRecords)
	}

	// Student routes
	student := protected.Group("/checkin")
	student.Use(middleware.RequireRole(models.RoleStudent))
	{
		student.POST("/validate", checkinHandler.ValidatePayload)
		student.GET("/ws", checkinHandler.CheckIn)
	}
}
