package verification

import (
	"context"
	"image"

	"qr_attendance_backend/models"
)

// FaceDetector reports the face regions found in a captured frame.
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// EmbeddingExtractor computes the embedding of the face inside region.
type EmbeddingExtractor interface {
	ExtractEmbedding(ctx context.Context, img image.Image, region image.Rectangle) ([]float64, error)
}

// BarcodeDecoder returns the text of a barcode in img, if any.
type BarcodeDecoder interface {
	DecodeBarcode(img image.Image) (string, bool)
}

type DetectorFunc func(ctx context.Context, img image.Image) ([]image.Rectangle, error)

func (f DetectorFunc) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return f(ctx, img)
}

type ExtractorFunc func(ctx context.Context, img image.Image, region image.Rectangle) ([]float64, error)

func (f ExtractorFunc) ExtractEmbedding(ctx context.Context, img image.Image, region image.Rectangle) ([]float64, error) {
	return f(ctx, img, region)
}

type DecoderFunc func(img image.Image) (string, bool)

func (f DecoderFunc) DecodeBarcode(img image.Image) (string, bool) {
	return f(img)
}

type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
}

type StudentDirectory interface {
	Student(ctx context.Context, studentID string) (models.Student, error)
}

type AttendanceRecorder interface {
	Record(ctx context.Context, sessionID, studentID string, fields models.RecordFields) (models.AttendanceRecord, error)
}

// Matcher compares a live embedding against an enrolled one and returns the
// distance and whether it counts as a match.
type Matcher interface {
	Compare(live, enrolled []float64) (float64, bool)
}

// Deps are the collaborators a Machine drives. All of them are required.
type Deps struct {
	Sessions  SessionLookup
	Students  StudentDirectory
	Recorder  AttendanceRecorder
	Detector  FaceDetector
	Extractor EmbeddingExtractor
	Decoder   BarcodeDecoder
	Matcher   Matcher
}
