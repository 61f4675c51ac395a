package types

import (
	"regexp"
	"strings"
)

const (
	// ClassCodeLength is the number of characters in a class code
	ClassCodeLength = 6
	// MaxNameLength bounds display names
	MaxNameLength = 100
	// MaxTextBytes bounds live text and problem statements
	MaxTextBytes = 256 * 1024
	// MaxEventBytes bounds one client frame. JSON can escape a text byte to
	// six (\u0001), plus room for the envelope and the other fields.
	MaxEventBytes = 6*MaxTextBytes + 64*1024
)

var (
	userIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	classCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// NormalizeClassCode trims and upper-cases a human-typed class code
func NormalizeClassCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidClassCode reports whether code (already normalized) has the class code shape
func IsValidClassCode(code string) bool {
	return classCodeRegex.MatchString(code)
}

// IsValidUserID checks teacher and student identifiers
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidStatus checks the status enum
func IsValidStatus(status StudentStatus) bool {
	switch status {
	case StatusWorking, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

// IsClientEventType reports whether eventType is one a client may send
func IsClientEventType(eventType string) bool {
	switch eventType {
	case EventStudentTextUpdate,
		EventTeacherJoin,
		EventStudentJoin,
		EventProblemUpdated,
		EventStudentStatusUpdate:
		return true
	default:
		return false
	}
}

// ValidateText enforces the size limit on live text and problem statements
func ValidateText(text string) error {
	if len(text) > MaxTextBytes {
		return ErrTextTooLarge
	}
	return nil
}

// ValidateName enforces the display name limit
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}
