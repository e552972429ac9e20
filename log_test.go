package linesearch

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNewLog(t *testing.T) {
	l := NewLog("banana", "10.0.0.7")
	if l.ID == "" {
		t.Fatal("expected an id")
	}
	if l.Query != "banana" || l.RequestingIP != "10.0.0.7" {
		t.Errorf("unexpected log %+v", l)
	}
	if l.Completed() || l.ExecutionTime != nil || l.Timestamp != nil {
		t.Error("new log must not be completed")
	}
	if other := NewLog("banana", "10.0.0.7"); other.ID == l.ID {
		t.Error("ids must be unique")
	}
}

func TestLogComplete(t *testing.T) {
	l := NewLog("kiwi", "127.0.0.1")
	if err := l.Complete(false, 3*time.Microsecond); err != nil {
		t.Fatal(err)
	}
	if l.Status != StatusNotFound {
		t.Errorf("status = %q, want %q", l.Status, StatusNotFound)
	}
	if l.ExecutionTime == nil || *l.ExecutionTime != 3e-6 {
		t.Errorf("execution time = %v", l.ExecutionTime)
	}
	if l.Timestamp == nil || l.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v", l.Timestamp)
	}

	before := l.Record()
	err := l.Complete(true, time.Second)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Complete: got %v, want ErrInvalidState", err)
	}
	if after := l.Record(); after.Status != before.Status || *after.ExecutionTime != *before.ExecutionTime {
		t.Error("second Complete must not modify the log")
	}
}

func TestTruncateQuery(t *testing.T) {
	ascii := strings.Repeat("a", 2000)
	if got := NewLog(ascii, "").Query; len(got) != MaxQueryBytes {
		t.Errorf("ascii: got %d bytes, want %d", len(got), MaxQueryBytes)
	}

	// 1023 ASCII bytes followed by a 3-byte rune straddling the cap.
	mid := strings.Repeat("a", 1023) + "€" + "tail"
	got := TruncateQuery(mid, MaxQueryBytes)
	if len(got) != 1023 {
		t.Errorf("mid-rune: got %d bytes, want 1023", len(got))
	}
	if !utf8.ValidString(got) {
		t.Error("mid-rune: result is not valid UTF-8")
	}

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abcd", 4, "abcd"},
		{"empty", "", 0, ""},
		{"two-byte boundary", "aé", 2, "a"},
		{"four-byte rune", "😀😀", 5, "😀"},
		{"zero cap", "abc", 0, ""},
		{"dangling lead byte", "ab\xe2\x82c", 4, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateQuery(tt.in, tt.max); got != tt.want {
				t.Errorf("TruncateQuery(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestApplyFields(t *testing.T) {
	base := func() LogRecord {
		return LogRecord{ID: "id-1", Query: "apple", RequestingIP: "1.2.3.4"}
	}

	rec := base()
	ts := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	err := applyFields(&rec, map[string]any{
		FieldQuery:         "cherry",
		FieldExecutionTime: 0.5,
		FieldTimestamp:     ts.Format(time.RFC3339Nano),
		FieldStatus:        "found",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Query != "cherry" || *rec.ExecutionTime != 0.5 || !rec.Timestamp.Equal(ts) || rec.Status != StatusFound {
		t.Errorf("unexpected record %+v", rec)
	}

	if err := applyFields(&rec, map[string]any{FieldExecutionTime: nil, FieldStatus: nil}); err != nil {
		t.Fatal(err)
	}
	if rec.ExecutionTime != nil || rec.Status != StatusUnset {
		t.Error("nil values must clear fields")
	}

	for name, fields := range map[string]map[string]any{
		"immutable id":  {"id": "other"},
		"unknown field": {"colour": "red"},
		"wrong type":    {FieldQuery: 42},
		"bad status":    {FieldStatus: "maybe"},
		"bad timestamp": {FieldTimestamp: "yesterday"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := base()
			if err := applyFields(&rec, fields); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}
