// Package attachment expands comma-separated glob patterns into attachment
// references.
package attachment

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/shineum/smtp-send-lite/internal/email"
)

// ErrGlob is returned when a pattern cannot be expanded, typically because
// it is malformed.
var ErrGlob = errors.New("attachment glob error")

// Resolve expands each comma-separated pattern in patterns against the
// filesystem. Matches are returned in pattern order, then in the glob
// engine's order within a pattern. Overlapping patterns are not
// deduplicated. A pattern that matches nothing contributes nothing.
//
// Patterns prefixed with ! exclude every file they match, wherever they
// appear in the list.
func Resolve(patterns string) ([]email.Attachment, error) {
	attachments := []email.Attachment{}
	if patterns == "" {
		return attachments, nil
	}

	includes, excludes, err := splitPatterns(patterns)
	if err != nil {
		return nil, err
	}

	for _, pattern := range includes {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %w", ErrGlob, pattern, err)
		}

		for _, match := range matches {
			if excluded(match, excludes) {
				continue
			}
			attachments = append(attachments, FromPath(match))
		}
	}

	return attachments, nil
}

// splitPatterns separates include patterns from ! exclusions. Exclusions
// are returned as absolute patterns so they compare against any match.
func splitPatterns(patterns string) (includes, excludes []string, err error) {
	for _, pattern := range strings.Split(patterns, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		negated, ok := strings.CutPrefix(pattern, "!")
		if !ok {
			includes = append(includes, pattern)
			continue
		}
		negated = strings.TrimSpace(negated)
		if negated == "" {
			continue
		}
		if !doublestar.ValidatePathPattern(negated) {
			return nil, nil, fmt.Errorf("%w: pattern %q: %w", ErrGlob, pattern, doublestar.ErrBadPattern)
		}
		abs, err := filepath.Abs(negated)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: pattern %q: %w", ErrGlob, pattern, err)
		}
		excludes = append(excludes, abs)
	}
	return includes, excludes, nil
}

func excluded(path string, excludes []string) bool {
	if len(excludes) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, pattern := range excludes {
		if ok, _ := doublestar.PathMatch(pattern, abs); ok {
			return true
		}
	}
	return false
}

// FromPath builds the attachment reference for a single file.
func FromPath(path string) email.Attachment {
	name := filepath.Base(path)
	return email.Attachment{
		Filename:  name,
		Path:      path,
		ContentID: name,
	}
}
