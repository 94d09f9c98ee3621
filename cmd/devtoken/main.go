// Command devtoken mints access tokens for local testing.
//
//	go run ./cmd/devtoken -user teacher-1 -role teacher
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"qr_attendance_backend/middleware"
	"qr_attendance_backend/models"
)

func main() {
	godotenv.Load()

	user := flag.String("user", "", "user id to put in the token")
	role := flag.String("role", models.RoleStudent, "teacher or student")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *user == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *role != models.RoleTeacher && *role != models.RoleStudent {
		log.Fatalf("unknown role %q", *role)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "your-secret-key"
	}

	token, err := middleware.GenerateToken([]byte(secret), *user, *role, *ttl)
	if err != nil {
		log.Fatalf("Error signing token: %v", err)
	}
	fmt.Println(token)
}
