package pages

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractPreviewEmpty(t *testing.T) {
	if title, excerpt := extractPreview("  "); title != "" || excerpt != "" {
		t.Fatalf("expected empty preview, got %q %q", title, excerpt)
	}
}

func TestTruncateRunes(t *testing.T) {
	s := strings.Repeat("ñ", 300)
	got := truncateRunes(s, 10)
	if utf8.RuneCountInString(got) != 11 || !strings.HasSuffix(got, "…") {
		t.Fatalf("unexpected truncation %q", got)
	}
	if truncateRunes("short", 10) != "short" {
		t.Fatalf("short strings must be kept")
	}
}
