package linesearch

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

//revive:disable:cyclomatic High complexity acceptable in tests
//revive:disable:cognitive-complexity High complexity acceptable in tests
//revive:disable:function-length Long test functions are acceptable

func TestFileStore_CreatedOnFirstWrite(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "linesearch-filestore-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "nested", "query_logs.jsonl")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("backing file must not exist before the first write, stat: %v", err)
	}

	l := NewLog("apple", "10.0.0.1")
	if err := l.Complete(true, time.Microsecond); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(l.Record()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("backing file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileStore_OneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_logs.jsonl")
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for _, q := range []string{"apple", "banana", "cherry"} {
		l := NewLog(q, "10.0.0.1")
		if err := l.Complete(q != "banana", time.Microsecond); err != nil {
			t.Fatal(err)
		}
		if err := store.Append(l.Record()); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		lines++
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %d is not a JSON object: %v", lines, err)
		}
		for _, k := range []string{"id", "query", "requesting_ip", "execution_time", "timestamp", "status"} {
			if _, ok := m[k]; !ok {
				t.Errorf("line %d lacks key %q", lines, k)
			}
		}
	}
	if lines != 3 {
		t.Errorf("got %d lines, want 3", lines)
	}
}

func TestFileStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_logs.jsonl")

	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	l := NewLog("durian", "10.0.0.2")
	if err := l.Complete(false, 2*time.Microsecond); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(l.Record()); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	recs, err := store.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != l.ID || recs[0].Status != StatusNotFound {
		t.Fatalf("unexpected records after reopen: %+v", recs)
	}
	if !recs[0].Timestamp.Equal(*l.Timestamp) {
		t.Errorf("timestamp = %v, want %v", recs[0].Timestamp, l.Timestamp)
	}
}

func TestFileStore_CorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_logs.jsonl")
	content := `{"id":"a","query":"apple","requesting_ip":"","execution_time":null,"timestamp":null,"status":""}
not json
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.ListAll(); !errors.Is(err, ErrIO) {
		t.Errorf("ListAll: got %v, want ErrIO", err)
	}
	if _, err := store.Delete("a"); !errors.Is(err, ErrIO) {
		t.Errorf("Delete: got %v, want ErrIO", err)
	}
}

func TestFileStore_BlankLinesIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_logs.jsonl")
	content := "\n" + `{"id":"a","query":"apple","requesting_ip":"","execution_time":null,"timestamp":null,"status":""}` + "\n\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	recs, err := store.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Errorf("unexpected records %+v", recs)
	}
}

func TestFileStore_EmptyPath(t *testing.T) {
	if _, err := OpenFileStore(""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}
