package qrpayload

import (
	"errors"
	"testing"

	"qr_attendance_backend/models"
)

func TestDecode_RoundTrip(t *testing.T) {
	p, err := Decode(Encode("S1", "CS101"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SessionID != "S1" || p.SubjectCode != "CS101" {
		t.Errorf("got %+v, want S1/CS101", p)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Payload
		wantErr bool
	}{
		{name: "legacy colon form", raw: "sessionId:abc,subjectCode:CS101", want: Payload{"abc", "CS101"}},
		{name: "legacy equals form", raw: "sessionid=abc, SUBJECTCODE = CS101", want: Payload{"abc", "CS101"}},
		{name: "legacy mixed separators", raw: "SessionID=abc,subjectcode:CS101", want: Payload{"abc", "CS101"}},
		{name: "legacy extra keys ignored", raw: "room:12,sessionId:abc,subjectCode:CS101", want: Payload{"abc", "CS101"}},
		{name: "json numeric session id", raw: `{"sessionId":42,"subjectCode":"CS101"}`, want: Payload{"42", "CS101"}},
		{name: "json with extra fields", raw: `{"sessionId":"abc","subjectCode":"CS101","v":2}`, want: Payload{"abc", "CS101"}},
		{name: "not json", raw: "not json", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "json missing subject", raw: `{"sessionId":"abc"}`, wantErr: true},
		{name: "json blank session", raw: `{"sessionId":"  ","subjectCode":"CS101"}`, wantErr: true},
		{name: "json keys are case sensitive", raw: `{"sessionid":"abc","subjectcode":"CS101"}`, wantErr: true},
		{name: "legacy blank value", raw: "sessionId:,subjectCode:CS101", wantErr: true},
		{name: "legacy too many separators", raw: "sessionId:a:b,subjectCode:CS101", wantErr: true},
		{name: "json array", raw: `["abc","CS101"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidPayload) {
					t.Fatalf("expected ErrInvalidPayload, got %v (payload %+v)", err, got)
				}
				if IsValid(tt.raw) {
					t.Errorf("IsValid(%q) = true, want false", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if !IsValid(tt.raw) {
				t.Errorf("IsValid(%q) = false, want true", tt.raw)
			}
		})
	}
}

func TestPNG_ProducesImage(t *testing.T) {
	data, err := PNG("S1", "CS101", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Errorf("output is not a PNG image")
	}
}
