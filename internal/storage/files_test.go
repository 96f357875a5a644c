package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStore_CreatesSubdirs(t *testing.T) {
	base := t.TempDir()
	if _, err := NewStore(base); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, sub := range []string{EmailsDir, InvoicesDir} {
		info, err := os.Stat(filepath.Join(base, sub))
		if err != nil || !info.IsDir() {
			t.Fatalf("subdir %s missing: %v", sub, err)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"invoice 123.pdf", "invoice_123.pdf"},
		{"rate/con#42.pdf", "con_42.pdf"},
		{"../../etc/passwd", "passwd"},
		{"Räkning.pdf", "R_kning.pdf"},
		{"ok-file_v2.PDF", "ok-file_v2.PDF"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSaveAttachment_PrefixesEmailID(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	path, err := s.SaveAttachment("0123456789abcdef", "invoice 1.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	if got := filepath.Base(path); got != "01234567_invoice_1.pdf" {
		t.Fatalf("filename = %s", got)
	}
	if !strings.Contains(path, string(filepath.Separator)+InvoicesDir+string(filepath.Separator)) {
		t.Fatalf("path %s not under %s/", path, InvoicesDir)
	}
	if !s.Exists(path) {
		t.Fatal("Exists should be true for the saved file")
	}
}

func TestExists_FalseForEmptyOrMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if s.Exists(filepath.Join(s.Base(), "nope.pdf")) {
		t.Fatal("missing file should not exist")
	}
	empty := filepath.Join(s.Base(), InvoicesDir, "empty.pdf")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if s.Exists(empty) {
		t.Fatal("empty file should not count as existing")
	}
}
