package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"qr_attendance_backend/models"
)

// StudentWriter stores enrolled students.
type StudentWriter interface {
	UpsertStudents(ctx context.Context, students []models.Student) error
}

// LoadStudents reads enrolled students from a JSON array file.
func LoadStudents(path string) ([]models.Student, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading students file: %w", err)
	}
	var students []models.Student
	if err := json.Unmarshal(data, &students); err != nil {
		return nil, fmt.Errorf("error parsing students file: %w", err)
	}
	for i, s := range students {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("student %d (%s): %w", i, s.ID, err)
		}
	}
	return students, nil
}

// SeedStudents populates the store with the students listed in path.
func SeedStudents(ctx context.Context, w StudentWriter, path string) error {
	students, err := LoadStudents(path)
	if err != nil {
		return err
	}
	if err := w.UpsertStudents(ctx, students); err != nil {
		return fmt.Errorf("error seeding students: %w", err)
	}
	log.Printf("Seeded %d students from %s", len(students), path)
	return nil
}
