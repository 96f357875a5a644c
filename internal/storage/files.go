package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	EmailsDir   = "emails"
	InvoicesDir = "invoices"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// Store lays attachments out on disk under a base directory, one subtree
// per category.
type Store struct {
	base string
}

// NewStore creates the base directory and its category subdirectories.
func NewStore(base string) (*Store, error) {
	for _, sub := range []string{EmailsDir, InvoicesDir} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Store{base: base}, nil
}

func (s *Store) Base() string { return s.base }

// AttachmentPath returns the on-disk path for an email's attachment. The
// name is prefixed with the first 8 characters of the email ID so files
// from different emails never collide.
func (s *Store) AttachmentPath(emailID, filename string) string {
	prefix := emailID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return filepath.Join(s.base, InvoicesDir, prefix+"_"+SanitizeFilename(filename))
}

// SaveAttachment writes the attachment content and returns its path.
func (s *Store) SaveAttachment(emailID, filename string, content []byte) (string, error) {
	path := s.AttachmentPath(emailID, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write attachment %s: %w", filename, err)
	}
	return path, nil
}

// Exists reports whether the file at path is present and non-empty.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// SanitizeFilename replaces every character outside [a-zA-Z0-9.-_] with an
// underscore so mail-supplied names are safe as path components.
func SanitizeFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "attachment"
	}
	return unsafeChars.ReplaceAllString(base, "_")
}
