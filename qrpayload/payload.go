// Package qrpayload encodes and decodes the session token shown as a QR code
// on the teacher's screen.
package qrpayload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"qr_attendance_backend/models"
)

const (
	keySessionID   = "sessionId"
	keySubjectCode = "subjectCode"
)

// Payload is the decoded content of a session QR code.
type Payload struct {
	SessionID   string
	SubjectCode string
}

type wirePayload struct {
	SessionID   string `json:"sessionId"`
	SubjectCode string `json:"subjectCode"`
}

// Encode renders the structured (JSON object) form of a payload.
func Encode(sessionID, subjectCode string) string {
	data, err := json.Marshal(wirePayload{SessionID: sessionID, SubjectCode: subjectCode})
	if err != nil {
		// unreachable for two string fields
		return fmt.Sprintf("%s:%s,%s:%s", keySessionID, sessionID, keySubjectCode, subjectCode)
	}
	return string(data)
}

// Decode parses raw as a JSON object first and as the legacy
// "sessionId:abc,subjectCode:CS101" form when raw is not a JSON object.
func Decode(raw string) (Payload, error) {
	if obj, ok := parseObject(raw); ok {
		p := Payload{
			SessionID:   stringField(obj, keySessionID),
			SubjectCode: stringField(obj, keySubjectCode),
		}
		if p.SessionID == "" || p.SubjectCode == "" {
			return Payload{}, fmt.Errorf("%w: missing sessionId or subjectCode", models.ErrInvalidPayload)
		}
		return p, nil
	}

	p := parsePairs(raw)
	if p.SessionID == "" || p.SubjectCode == "" {
		return Payload{}, fmt.Errorf("%w: unrecognised format", models.ErrInvalidPayload)
	}
	return p, nil
}

// IsValid reports whether raw decodes to a complete payload.
func IsValid(raw string) bool {
	_, err := Decode(raw)
	return err == nil
}

func parseObject(raw string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	// trailing garbage means the text was not a JSON object after all
	if dec.More() {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func parsePairs(raw string) Payload {
	var p Payload
	for _, pair := range strings.Split(raw, ",") {
		kv := splitKeyValue(pair)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])
		switch key {
		case strings.ToLower(keySessionID):
			p.SessionID = value
		case strings.ToLower(keySubjectCode):
			p.SubjectCode = value
		}
	}
	return p
}

// splitKeyValue splits on every ':' or '=' and keeps empty parts, so
// "a:b:c" yields three parts and is rejected by the caller.
func splitKeyValue(pair string) []string {
	var parts []string
	var cur bytes.Buffer
	for _, r := range pair {
		if r == ':' || r == '=' {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	return append(parts, cur.String())
}
