package models

import "fmt"

// EmbeddingSize is the length of every face embedding the pipeline accepts.
const EmbeddingSize = 512

// Student is an enrolled profile together with its biometric template.
type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TUPID         string    `json:"tupid"`
	Section       string    `json:"section"`
	FaceEmbedding []float64 `json:"face_embedding"`
}

// Validate checks the template invariant. Stores call it on every read so the
// pipeline never sees a partially enrolled student.
func (s Student) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: student id is empty", ErrNoEnrollment)
	}
	if len(s.FaceEmbedding) == 0 {
		return fmt.Errorf("%w: student %s has no face embedding", ErrNoEnrollment, s.ID)
	}
	if len(s.FaceEmbedding) != EmbeddingSize {
		return fmt.Errorf("%w: student %s embedding has %d values, want %d",
			ErrNoEnrollment, s.ID, len(s.FaceEmbedding), EmbeddingSize)
	}
	return nil
}

// Fields returns the record fields for a check-in against subjectCode.
func (s Student) Fields(subjectCode string) RecordFields {
	return RecordFields{
		Name:        s.Name,
		TUPID:       s.TUPID,
		Section:     s.Section,
		SubjectCode: subjectCode,
	}
}
