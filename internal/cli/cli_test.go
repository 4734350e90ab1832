package cli

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWriteImage_DataURI(t *testing.T) {
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	path := filepath.Join(t.TempDir(), "out.png")

	if err := writeImage(path, payload); err != nil {
		t.Fatalf("writeImage: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) != "png-bytes" {
		t.Fatalf("decoded = %q, want png-bytes", raw)
	}
}

func TestWriteImage_BareBase64(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("raw"))
	path := filepath.Join(t.TempDir(), "out.png")

	if err := writeImage(path, payload); err != nil {
		t.Fatalf("writeImage: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "raw" {
		t.Fatalf("decoded = %q, want raw", raw)
	}
}

func TestWriteImage_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	if err := writeImage(path, "not base64!!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestTruncatePrompt(t *testing.T) {
	if got := truncatePrompt("  short  "); got != "short" {
		t.Fatalf("truncatePrompt = %q, want short", got)
	}
	long := strings.Repeat("x", 80)
	got := truncatePrompt(long)
	if len(got) <= 49 || !strings.HasSuffix(got, "…") {
		t.Fatalf("truncatePrompt long = %q", got)
	}
}

func TestTruncatePrompt_Multibyte(t *testing.T) {
	got := truncatePrompt(strings.Repeat("日", 80))
	if !utf8.ValidString(got) {
		t.Fatalf("truncatePrompt produced invalid UTF-8: %q", got)
	}
	if r := []rune(got); len(r) != 50 || r[49] != '…' {
		t.Fatalf("truncatePrompt = %q, want 49 runes plus ellipsis", got)
	}
}
