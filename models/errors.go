package models

import "errors"

var (
	ErrInvalidPayload        = errors.New("invalid qr payload")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionEnded          = errors.New("session has already ended")
	ErrAlreadyRecorded       = errors.New("attendance already recorded")
	ErrNoFaceDetected        = errors.New("no face detected")
	ErrMultipleFacesDetected = errors.New("multiple faces detected")
	ErrVerificationTimeout   = errors.New("face verification timed out")
	ErrVerificationFailed    = errors.New("face verification failed")
	ErrNoEnrollment          = errors.New("no enrolled face template")
	ErrStoreUnavailable      = errors.New("store unavailable")

	ErrCaptureFailed       = errors.New("face capture failed")
	ErrAborted             = errors.New("attempt aborted")
	ErrActiveSessionExists = errors.New("owner already has an active session")
	ErrInvalidSession      = errors.New("session requires an owner and a subject code")
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidPayload, "InvalidPayload"},
	{ErrSessionNotFound, "SessionNotFound"},
	{ErrSessionEnded, "SessionEnded"},
	{ErrAlreadyRecorded, "AlreadyRecorded"},
	{ErrNoFaceDetected, "NoFaceDetected"},
	{ErrMultipleFacesDetected, "MultipleFacesDetected"},
	{ErrVerificationTimeout, "VerificationTimeout"},
	{ErrVerificationFailed, "VerificationFailed"},
	{ErrNoEnrollment, "NoEnrollment"},
	{ErrStoreUnavailable, "StoreUnavailable"},
	{ErrCaptureFailed, "CaptureFailed"},
	{ErrAborted, "Aborted"},
	{ErrActiveSessionExists, "ActiveSessionExists"},
	{ErrInvalidSession, "InvalidSession"},
}

// ReasonCode returns the stable wire code for err, or "" when err is nil.
// Errors outside the taxonomy are reported as StoreUnavailable.
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "StoreUnavailable"
}

// Reason narrows err to its taxonomy sentinel. Unknown errors become
// ErrStoreUnavailable since every external call in the pipeline is a store
// or collaborator call.
func Reason(err error) error {
	if err == nil {
		return nil
	}
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.err
		}
	}
	return ErrStoreUnavailable
}
