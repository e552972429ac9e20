package linesearch

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxQueryBytes is the hard cap on the encoded size of a stored query.
const MaxQueryBytes = 1024

// Status is the outcome recorded on a completed Log.
type Status string

const (
	// StatusUnset marks a Log that has not been completed yet.
	StatusUnset Status = ""
	// StatusFound means the query matched a corpus line.
	StatusFound Status = "found"
	// StatusNotFound means the query matched no corpus line.
	StatusNotFound Status = "not-found"
	// StatusError only appears on query results, never on persisted records.
	StatusError Status = "error"
)

// Log is the record of one query outcome.
//
// A Log belongs to the single query that constructed it and is never shared
// between goroutines, so it carries no lock of its own.
type Log struct {
	ID            string
	Query         string
	RequestingIP  string
	ExecutionTime *float64 // seconds, set by Complete
	Timestamp     *time.Time
	Status        Status
}

// LogRecord is the persisted, self-describing form of a Log.
type LogRecord struct {
	ID            string     `json:"id"`
	Query         string     `json:"query"`
	RequestingIP  string     `json:"requesting_ip"`
	ExecutionTime *float64   `json:"execution_time"`
	Timestamp     *time.Time `json:"timestamp"`
	Status        Status     `json:"status"`
}

// NewLog creates an uncompleted Log with a fresh ID. The query is truncated
// to MaxQueryBytes on a rune boundary.
func NewLog(query, requestingIP string) *Log {
	return &Log{
		ID:           uuid.NewString(),
		Query:        TruncateQuery(query, MaxQueryBytes),
		RequestingIP: requestingIP,
	}
}

// Complete sets execution time, timestamp and status together. It may be
// called exactly once; later calls return ErrInvalidState.
func (l *Log) Complete(found bool, elapsed time.Duration) error {
	if l.Completed() {
		return fmt.Errorf("%w: log %s already completed", ErrInvalidState, l.ID)
	}
	secs := elapsed.Seconds()
	ts := time.Now().UTC()
	l.ExecutionTime = &secs
	l.Timestamp = &ts
	if found {
		l.Status = StatusFound
	} else {
		l.Status = StatusNotFound
	}
	return nil
}

// Completed reports whether Complete has been called.
func (l *Log) Completed() bool {
	return l.Status != StatusUnset
}

// Record returns the persisted form of l.
func (l *Log) Record() LogRecord {
	return LogRecord{
		ID:            l.ID,
		Query:         l.Query,
		RequestingIP:  l.RequestingIP,
		ExecutionTime: l.ExecutionTime,
		Timestamp:     l.Timestamp,
		Status:        l.Status,
	}
}

// TruncateQuery cuts s to at most maxBytes bytes without splitting a
// multi-byte rune.
func TruncateQuery(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	// Back off continuation bytes until cut sits on a rune start.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	// Invalid input can leave dangling lead bytes at the tail.
	for cut > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:cut])
		if r != utf8.RuneError || size > 1 {
			break
		}
		cut -= size
	}
	return s[:cut]
}

// Field names accepted by Store.Update.
const (
	FieldQuery         = "query"
	FieldRequestingIP  = "requesting_ip"
	FieldExecutionTime = "execution_time"
	FieldTimestamp     = "timestamp"
	FieldStatus        = "status"
)

// applyFields applies generic field updates to rec. The id is immutable.
func applyFields(rec *LogRecord, fields map[string]any) error {
	for k, v := range fields {
		switch k {
		case FieldQuery:
			s, ok := v.(string)
			if !ok {
				return fieldTypeError(k, v)
			}
			rec.Query = TruncateQuery(s, MaxQueryBytes)
		case FieldRequestingIP:
			s, ok := v.(string)
			if !ok {
				return fieldTypeError(k, v)
			}
			rec.RequestingIP = s
		case FieldExecutionTime:
			f, ok, err := floatField(v)
			if err != nil {
				return fieldTypeError(k, v)
			}
			if !ok {
				rec.ExecutionTime = nil
				continue
			}
			rec.ExecutionTime = &f
		case FieldTimestamp:
			ts, ok, err := timeField(v)
			if err != nil {
				return fieldTypeError(k, v)
			}
			if !ok {
				rec.Timestamp = nil
				continue
			}
			rec.Timestamp = &ts
		case FieldStatus:
			st, err := statusField(v)
			if err != nil {
				return fieldTypeError(k, v)
			}
			rec.Status = st
		case "id":
			return fmt.Errorf("%w: id is immutable", ErrInvalidArgument)
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidArgument, k)
		}
	}
	return nil
}

func fieldTypeError(k string, v any) error {
	return fmt.Errorf("%w: field %q: unexpected value %v (%T)", ErrInvalidArgument, k, v, v)
}

func floatField(v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case time.Duration:
		return x.Seconds(), true, nil
	default:
		return 0, false, ErrInvalidArgument
	}
}

func timeField(v any) (time.Time, bool, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return x.UTC(), true, nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, false, err
		}
		return ts.UTC(), true, nil
	default:
		return time.Time{}, false, ErrInvalidArgument
	}
}

func statusField(v any) (Status, error) {
	var s Status
	switch x := v.(type) {
	case nil:
		return StatusUnset, nil
	case Status:
		s = x
	case string:
		s = Status(x)
	case bool:
		if x {
			return StatusFound, nil
		}
		return StatusNotFound, nil
	default:
		return StatusUnset, ErrInvalidArgument
	}
	switch s {
	case StatusUnset, StatusFound, StatusNotFound:
		return s, nil
	default:
		return StatusUnset, ErrInvalidArgument
	}
}
