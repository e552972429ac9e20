package linesearch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// fileStore implements Store as a JSON-lines file.
// File format: one LogRecord JSON object per line, in append order.
//
//	{"id":"…","query":"apple","requesting_ip":"10.0.0.7","execution_time":0.0000031,"timestamp":"…","status":"found"}
//
// Appends hold mu and an advisory flock for the length of the write and are
// fsynced before returning. Update and Delete read every record, modify the
// slice and rewrite the whole file in place (truncate + write), so a reader
// racing a rewrite may see a partial file.
type fileStore struct {
	path string
	mu   sync.Mutex
	file *os.File // opened on first write
}

// maxRecordLine bounds a single JSON line while scanning the store.
const maxRecordLine = 1 << 20

// OpenFileStore returns a JSON-lines Store backed by path. The file is
// created on first write if it does not exist.
func OpenFileStore(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty store path", ErrInvalidArgument)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, ioError("create directory", err)
	}
	return &fileStore{path: path}, nil
}

// openLocked opens the backing file if needed (caller must hold lock).
func (s *fileStore) openLocked() error {
	if s.file != nil {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return ioError("open log file", err)
	}
	s.file = f
	return nil
}

// Append writes rec as one line at the end of the file.
func (s *fileStore) Append(rec LogRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}

	if err := syscall.Flock(int(s.file.Fd()), syscall.LOCK_EX); err != nil {
		return ioError("lock log file", err)
	}
	defer syscall.Flock(int(s.file.Fd()), syscall.LOCK_UN)

	n, err := s.file.Write(line)
	if err != nil {
		return ioError("write record", err)
	}
	if n != len(line) {
		return ioError("write record", fmt.Errorf("incomplete write: %d of %d bytes", n, len(line)))
	}

	if err := s.file.Sync(); err != nil {
		return ioError("sync log file", err)
	}
	return nil
}

// ListAll scans the current file content without taking the write lock.
func (s *fileStore) ListAll() ([]LogRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogRecord{}, nil
		}
		return nil, ioError("open log file for reading", err)
	}
	defer f.Close()
	return decodeRecords(f)
}

// Update applies fields to the first record whose id matches.
func (s *fileStore) Update(id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAllLocked()
	if err != nil {
		return false, err
	}

	for i := range recs {
		if recs[i].ID != id {
			continue
		}
		if err := applyFields(&recs[i], fields); err != nil {
			return false, err
		}
		return true, s.rewriteLocked(recs)
	}
	return false, nil
}

// Delete removes every record whose id matches.
func (s *fileStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAllLocked()
	if err != nil {
		return false, err
	}

	kept := make([]LogRecord, 0, len(recs))
	for _, r := range recs {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(recs) {
		return false, nil
	}
	return true, s.rewriteLocked(kept)
}

// readAllLocked reads every record (caller must hold lock).
func (s *fileStore) readAllLocked() ([]LogRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, ioError("open log file for reading", err)
	}
	defer f.Close()
	return decodeRecords(f)
}

// rewriteLocked replaces the file content with recs (caller must hold lock).
func (s *fileStore) rewriteLocked(recs []LogRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}

	if err := s.openLocked(); err != nil {
		return err
	}

	if err := syscall.Flock(int(s.file.Fd()), syscall.LOCK_EX); err != nil {
		return ioError("lock log file", err)
	}
	defer syscall.Flock(int(s.file.Fd()), syscall.LOCK_UN)

	if err := s.file.Truncate(0); err != nil {
		return ioError("truncate log file", err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return ioError("seek log file", err)
	}
	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return ioError("rewrite log file", err)
	}
	if err := s.file.Sync(); err != nil {
		return ioError("sync log file", err)
	}
	return nil
}

// Close closes the backing file.
func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return ioError("close log file", err)
	}
	return nil
}

func decodeRecords(r io.Reader) ([]LogRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordLine)

	recs := []LogRecord{}
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec LogRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, ioError(fmt.Sprintf("decode record at line %d", line), err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, ioError("scan log file", err)
	}
	return recs, nil
}
