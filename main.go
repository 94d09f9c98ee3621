package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"qr_attendance_backend/biometric"
	"qr_attendance_backend/config"
	"qr_attendance_backend/db"
	"qr_attendance_backend/db/sqlite"
	"qr_attendance_backend/handlers"
	"qr_attendance_backend/routes"
	"qr_attendance_backend/store"
	"qr_attendance_backend/vision"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found") // Non-fatal in production
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Error opening %s store: %v", cfg.StoreDriver, err)
	}
	defer st.Close()

	if cfg.SeedStudentsFile != "" {
		if err := db.SeedStudents(ctx, st, cfg.SeedStudentsFile); err != nil {
			log.Printf("Warning: Error seeding students: %v", err)
		}
	}

	verifier, err := biometric.NewVerifier(cfg.MatchThreshold)
	if err != nil {
		log.Fatalf("Invalid match threshold: %v", err)
	}
	faces := vision.NewClient(cfg.VisionURL, cfg.VisionTimeout)
	if err := faces.Ping(ctx); err != nil {
		log.Printf("Warning: face inference service at %s is not reachable: %v", cfg.VisionURL, err)
	}

	// Initialize router
	r := gin.Default()

	// Setup CORS - Simplified for mobile app
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true // Allow all origins for mobile app
	}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	}
	corsConfig.AllowMethods = []string{
		"GET",
		"POST",
	}
	r.Use(cors.New(corsConfig))

	// Setup routes
	routes.SetupRoutes(r, routes.Services{
		Store:     st,
		Detector:  faces,
		Extractor: faces,
		Decoder:   vision.NewQRDecoder(),
		Matcher:   verifier,
		Checkin: handlers.CheckinOptions{
			VerifyTimeout: cfg.VerifyTimeout,
			ResultDisplay: cfg.ResultDisplay,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	}, []byte(cfg.JWTSecret))

	// Run server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Listening on :%s (%s store)", cfg.ServerPort, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Println("Warning: using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	default:
		dbCfg := db.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}
		database, err := db.Initialize(dbCfg)
		if err != nil {
			return nil, err
		}
		// Initialize database schema
		if err := db.InitSchema(database); err != nil {
			database.Close()
			return nil, err
		}
		pg := db.NewPostgresStore(database)
		go func() {
			if err := db.Listen(ctx, dbCfg.DSN(), pg.Feed()); err != nil {
				log.Printf("Error listening for record notifications: %v", err)
			}
		}()
		return pg, nil
	}
}
