// Package identity generates teacher/student identifiers and class codes.
package identity

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"classcast/pkg/types"
)

// Identifier prefixes
const (
	TeacherPrefix = "teacher"
	StudentPrefix = "student"
)

// classCodeAlphabet has 32 symbols so a random byte maps onto it without bias.
// 0/O and 1/I are left out because codes are read aloud and typed by hand.
const classCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const randomSuffixLength = 9

// NewOpaqueID returns prefix_<unix-ms>_<random>. Uniqueness is not checked.
func NewOpaqueID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:randomSuffixLength]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}

// NewTeacherID returns a fresh opaque teacher identifier
func NewTeacherID() string {
	return NewOpaqueID(TeacherPrefix)
}

// NewStudentID returns a fresh opaque student identifier
func NewStudentID() string {
	return NewOpaqueID(StudentPrefix)
}

// NewClassCode draws codes until exists reports the code is free.
// Callers must hold whatever lock makes exists + insert atomic.
func NewClassCode(exists func(code string) bool) string {
	for {
		code := randomCode()
		if exists == nil || !exists(code) {
			return code
		}
	}
}

func randomCode() string {
	buf := make([]byte, types.ClassCodeLength)
	// crypto/rand.Read does not fail on supported platforms
	_, _ = rand.Read(buf)

	code := make([]byte, types.ClassCodeLength)
	for i, b := range buf {
		code[i] = classCodeAlphabet[int(b)%len(classCodeAlphabet)]
	}
	return string(code)
}
