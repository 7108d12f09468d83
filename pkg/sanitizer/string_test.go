package sanitizer

import (
	"strings"
	"testing"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"only whitespace", " \t\n ", ""},
		{"collapses runs", "  Dell   Latitude\t7440  ", "Dell Latitude 7440"},
		{"unicode", "  מחשב   נייד ", "מחשב נייד"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.expected {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFreeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{"strips control chars", "need\x00 it\x07 for lab", 100, "need it for lab"},
		{"truncates by rune", "ééééé", 3, "ééé"},
		{"no limit", "a b", 0, "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFreeText(tt.input, tt.limit); got != tt.expected {
				t.Errorf("SanitizeFreeText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeReason_Capped(t *testing.T) {
	got := SanitizeReason(strings.Repeat("x", MaxReasonLength+50))
	if len([]rune(got)) != MaxReasonLength {
		t.Errorf("len = %d, want %d", len([]rune(got)), MaxReasonLength)
	}
}

func TestSanitizeCategory(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Laptops", "laptops"},
		{"  VR Headsets ", "vr-headsets"},
		{"Cameras & Lenses", "cameras-lenses"},
		{"--", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeCategory(tt.input); got != tt.expected {
				t.Errorf("SanitizeCategory(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizers_Idempotent(t *testing.T) {
	inputs := []string{"  Cameras & Lenses ", "Need\tit  now", "example.com/Images/X.png?utm_source=a&v=2"}
	for _, in := range inputs {
		for name, fn := range map[string]Strategy{
			"category": SanitizeCategory,
			"notes":    SanitizeNotes,
			"url":      SanitizeURL,
		} {
			once := fn(in)
			if twice := fn(once); twice != once {
				t.Errorf("%s not idempotent for %q: %q then %q", name, in, once, twice)
			}
		}
	}
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"Example.COM/Images/X.png", "https://example.com/Images/X.png"},
		{"http://cdn.campus.edu/a/?utm_source=mail&v=2", "https://cdn.campus.edu/a?v=2"},
		{"https://", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeURL(tt.input); got != tt.expected {
				t.Errorf("SanitizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
