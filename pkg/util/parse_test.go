package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeFormats(t *testing.T) {
	want := time.Date(2025, 3, 15, 8, 30, 0, 0, time.UTC)

	cases := []string{
		"2025-03-15T08:30:00Z",
		strconv.FormatInt(want.Unix(), 10),
	}
	for _, s := range cases {
		got, ok := ParseTime(s)
		if !ok {
			t.Fatalf("ParseTime(%q): not ok", s)
		}
		if got.Unix() != want.Unix() {
			t.Fatalf("ParseTime(%q) = %v, want %v", s, got, want)
		}
	}

	if _, ok := ParseTime("not-a-time"); ok {
		t.Fatal("expected failure for garbage input")
	}
	if _, ok := ParseTime(""); ok {
		t.Fatal("expected failure for empty input")
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeDefault("", def); !got.Equal(def) {
		t.Fatalf("got %v, want default", got)
	}
	if got := ParseTimeDefault("2025-03-15T08:30:00Z", def); got.Equal(def) {
		t.Fatal("valid input should not return default")
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("250", 10); got != 250 {
		t.Fatalf("got %d, want 250", got)
	}
	if got := ParseIntDefault("", 10); got != 10 {
		t.Fatalf("got %d, want default 10", got)
	}
	if got := ParseIntDefault("abc", 10); got != 10 {
		t.Fatalf("got %d, want default 10", got)
	}
}
