// Package body resolves message body inputs that may be literal text or a
// reference to a file on disk.
package body

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shineum/smtp-send-lite/internal/email"
)

// FilePrefix marks a body value as a path to read the body from.
const FilePrefix = "file://"

// Content kinds.
const (
	KindText = "text/plain"
	KindHTML = "text/html"
)

// ErrFileUnreadable is returned when a file-backed body cannot be read.
var ErrFileUnreadable = errors.New("body file unreadable")

// Resolve returns the literal body for value. Values starting with file://
// are replaced by the verbatim contents of the named file; anything else,
// including the empty string, is returned unchanged.
func Resolve(value string) (string, error) {
	if !strings.HasPrefix(value, FilePrefix) {
		return value, nil
	}

	path := strings.TrimPrefix(value, FilePrefix)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}
	return string(data), nil
}

// ResolveContent resolves value into a body of the given kind.
func ResolveContent(kind, value string) (*email.Body, error) {
	text, err := Resolve(value)
	if err != nil {
		return nil, err
	}
	return &email.Body{Kind: kind, Text: text}, nil
}
