package types

import (
	"encoding/json"
	"strings"
	"testing"
)

// FUNCTIONAL VALIDATION TEST: class code normalization and shape
func TestClassCodeValidation(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"AB12CD", true},
		{" ab12cd ", true},
		{"ZZZZZZ", true},
		{"AB12C", false},
		{"AB12CDE", false},
		{"AB-2CD", false},
		{"", false},
	}

	for _, tt := range tests {
		got := IsValidClassCode(NormalizeClassCode(tt.input))
		if got != tt.valid {
			t.Errorf("IsValidClassCode(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []StudentStatus{StatusWorking, StatusDone, StatusError} {
		if !IsValidStatus(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []StudentStatus{"", "finished", "WORKING"} {
		if IsValidStatus(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsValidUserID(t *testing.T) {
	if !IsValidUserID("student_1712345678901_ab12cd34e") {
		t.Error("generated-style student id should be valid")
	}
	if IsValidUserID("") {
		t.Error("empty id should be invalid")
	}
	if IsValidUserID("bad id") {
		t.Error("id with space should be invalid")
	}
	if IsValidUserID(strings.Repeat("a", 65)) {
		t.Error("65 character id should be invalid")
	}
}

func TestIsClientEventType(t *testing.T) {
	if !IsClientEventType(EventStudentTextUpdate) {
		t.Error("student_text_update should be a client event")
	}
	if IsClientEventType(EventTextUpdated) {
		t.Error("text_updated is server -> client only")
	}
}

func TestValidateTextAndName(t *testing.T) {
	if err := ValidateText(strings.Repeat("x", MaxTextBytes)); err != nil {
		t.Errorf("text at the limit should pass: %v", err)
	}
	if err := ValidateText(strings.Repeat("x", MaxTextBytes+1)); err != ErrTextTooLarge {
		t.Errorf("expected ErrTextTooLarge, got %v", err)
	}
	if err := ValidateName(strings.Repeat("n", MaxNameLength+1)); err != ErrNameTooLong {
		t.Errorf("expected ErrNameTooLong, got %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: envelope decode of a client event
func TestEvent_Decode(t *testing.T) {
	raw := []byte(`{"type":"student_text_update","data":{"studentId":"s1","classCode":"AB12CD","text":"abc","seq":3}}`)

	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}

	var payload TextUpdatePayload
	if err := event.Decode(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if payload.StudentID != "s1" || payload.ClassCode != "AB12CD" || payload.Text != "abc" || payload.Seq != 3 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestEvent_DecodeMissingData(t *testing.T) {
	event := &Event{Type: EventTeacherJoin}
	var payload TeacherJoinPayload
	if err := event.Decode(&payload); err != ErrInvalidPayload {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

// roster entries flatten the embedded record into one JSON object
func TestRosterEntry_JSONShape(t *testing.T) {
	entry := RosterEntry{
		StudentRecord: StudentRecord{
			ID:        "student_1",
			Name:      "Sam",
			ClassCode: "AB12CD",
			Status:    StatusWorking,
		},
		CurrentText: "",
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"id", "name", "joinTime", "classCode", "status", "currentText"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("expected key %q in roster entry JSON", key)
		}
	}
	if flat["status"] != "working" {
		t.Errorf("expected status working, got %v", flat["status"])
	}
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(EventTextUpdated, TextUpdatedPayload{StudentID: "s1", ClassCode: "AB12CD", Text: "hi"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if event.Type != EventTextUpdated {
		t.Errorf("expected type %s, got %s", EventTextUpdated, event.Type)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	if _, err := NewEvent(EventTextUpdated, map[string]interface{}{"f": func() {}}); err != ErrInvalidPayload {
		t.Errorf("expected ErrInvalidPayload for unmarshalable payload, got %v", err)
	}
}
