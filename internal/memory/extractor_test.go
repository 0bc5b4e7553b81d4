package memory

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sdgteacher/sdgchat/internal/profile"
)

func TestDetectTour(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		response string
		want     bool
	}{
		{"user asks for tour", "Give me a tour of my kitchen", "...", true},
		{"arithmetic", "What's 2+2?", "4", false},
		{"keyword case-insensitive", "Let me SHOW YOU my desk", "ok", true},
		{"response marker", "what's here?", "Here's everything I found on the shelf.", true},
		{"long response", "hi", strings.Repeat("a", 1001), true},
		{"exactly at threshold", "hi", strings.Repeat("a", 1000), false},
		{"non-ASCII counted in characters", "what is this?", strings.Repeat("é", 600), false},
		{"long non-ASCII response", "what is this?", strings.Repeat("é", 1001), true},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectTour(tt.user, tt.response); got != tt.want {
				t.Errorf("DetectTour(%q, ...) = %v, want %v", tt.user, got, tt.want)
			}
		})
	}
}

func TestNew_HandBuiltRules(t *testing.T) {
	e := New(&Rules{Categories: map[string][]string{
		CategoryDevices: {"Laptop"},
	}})

	if got := e.ExtractItems("my laptop is here"); !reflect.DeepEqual(got, []string{"laptop"}) {
		t.Errorf("ExtractItems = %v, want [laptop]", got)
	}
	if e.DetectTour("hi", "ok") {
		t.Error("short reply detected as tour with unset TourLength")
	}
	if !e.DetectTour("hi", strings.Repeat("a", DefaultTourLength+1)) {
		t.Error("long reply not detected as tour")
	}

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "- item")
	}
	if n := len(strings.Split(e.Summarize(strings.Join(lines, "\n")), summarySeparator)); n != DefaultMaxSummaryLines {
		t.Errorf("kept %d lines, want %d", n, DefaultMaxSummaryLines)
	}
}

func TestNew_CopiesRules(t *testing.T) {
	r := &Rules{
		Categories: map[string][]string{CategoryBrands: {"fairphone"}},
		TourLength: 20,
	}
	e := New(r)
	r.TourLength = 5000

	if !e.DetectTour("hi", strings.Repeat("a", 21)) {
		t.Error("extractor picked up a later change to its rules")
	}
	if r.MaxSummaryLines != 0 {
		t.Errorf("caller's rules modified: MaxSummaryLines = %d", r.MaxSummaryLines)
	}
}

func TestSummarize(t *testing.T) {
	response := strings.Join([]string{
		"Sure!",
		"I can see a laptop on the desk.",
		"- a mug",
		"2. a lamp",
		"ok",
		"This line is long enough to count as a substantive observation line.",
		strings.Repeat("x", 200),
	}, "\n")

	got := Summarize(response)
	want := "I can see a laptop on the desk. | - a mug | 2. a lamp | This line is long enough to count as a substantive observation line."
	if got != want {
		t.Errorf("Summarize =\n  %q\nwant\n  %q", got, want)
	}
}

func TestSummarize_CapsLines(t *testing.T) {
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, "- item")
	}

	got := Summarize(strings.Join(lines, "\n"))
	if n := len(strings.Split(got, summarySeparator)); n != 8 {
		t.Errorf("kept %d lines, want 8", n)
	}
}

func TestSummarize_Empty(t *testing.T) {
	if got := Summarize("ok\n\nfine"); got != "" {
		t.Errorf("Summarize = %q, want empty", got)
	}
}

func TestExtractItems(t *testing.T) {
	response := "There's a MacBook next to a Logitech mouse, plus a USB-C cable. Another macbook and a phone charger."

	got := ExtractItems(response)
	want := []string{"macbook", "logitech", "mouse", "usb-c cable", "cable", "phone", "charger"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractItems = %v, want %v", got, want)
	}
}

func TestExtractItems_WordBoundary(t *testing.T) {
	// "hp" inside "shphere" and "tv" inside "tvs" must not match.
	got := ExtractItems("A shphere and several tvs.")
	if len(got) != 0 {
		t.Errorf("ExtractItems = %v, want none", got)
	}
}

func TestExtract(t *testing.T) {
	at := time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC)
	o := New(nil).Extract(profile.TypeVideo, "give me a tour", "I can see an iPad.", at)

	if !o.IsTour {
		t.Error("expected tour")
	}
	if o.Type != profile.TypeVideo || o.Date != "2026-10-16" || o.Time != "14:05" {
		t.Errorf("unexpected observation: %+v", o)
	}
	if !reflect.DeepEqual(o.Items, []string{"ipad"}) {
		t.Errorf("Items = %v", o.Items)
	}
	if o.Summary != "I can see an iPad." {
		t.Errorf("Summary = %q", o.Summary)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `categories:
  brands: [Fairphone, " framework "]
tour_length: 20
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	e := New(rules)

	got := e.ExtractItems("A Fairphone and a Framework laptop, not a Samsung.")
	want := []string{"fairphone", "framework", "laptop"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractItems = %v, want %v", got, want)
	}
	if !e.DetectTour("hi", strings.Repeat("a", 21)) {
		t.Error("tour_length override not applied")
	}
	if rules.MaxSummaryLines != 8 {
		t.Errorf("MaxSummaryLines = %d, want default 8", rules.MaxSummaryLines)
	}
}

func TestLoadRules_Errors(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("categories: [oops"), 0o644)
	if _, err := LoadRules(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
