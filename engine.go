package linesearch

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// maxCorpusLine bounds a single corpus line.
const maxCorpusLine = 1 << 20

// Engine answers exact-line membership queries against a corpus loaded from
// a file. Load and Prepare must run before Search. Prepare swaps the lookup
// structure under the engine's write lock, so concurrent searches see either
// the old or the new structure, never a partial one.
type Engine struct {
	mu     sync.RWMutex
	path   string
	lines  []string
	loaded bool
	index  Index
}

// NewEngine returns an empty Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Load reads path line by line into the corpus, trimming line terminators.
// A missing file yields ErrNotFound and leaves the engine unchanged. A
// successful load discards any prepared structure.
func (e *Engine) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: corpus %s", ErrNotFound, path)
		}
		return ioError("open corpus", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxCorpusLine)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return ioError("read corpus "+path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = path
	e.lines = lines
	e.loaded = true
	e.index = nil
	return nil
}

// LoadLines installs an in-memory corpus. The slice is copied.
func (e *Engine) LoadLines(lines []string) {
	cp := make([]string, len(lines))
	copy(cp, lines)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = ""
	e.lines = cp
	e.loaded = true
	e.index = nil
}

// Prepare builds the lookup structure for mode over the loaded corpus.
func (e *Engine) Prepare(mode Mode) error {
	e.mu.RLock()
	loaded, lines := e.loaded, e.lines
	e.mu.RUnlock()
	if !loaded {
		return fmt.Errorf("%w: prepare %s before load", ErrInvalidState, mode)
	}

	// Built outside the lock; lines is never mutated after Load.
	ix, err := newIndex(mode, lines)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.index = ix
	return nil
}

// Search reports whether target equals a corpus line and how long the
// lookup alone took.
func (e *Engine) Search(target string) (bool, time.Duration, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.index == nil {
		return false, 0, fmt.Errorf("%w: search before prepare", ErrInvalidState)
	}
	start := time.Now()
	found := e.index.Contains(target)
	return found, time.Since(start), nil
}

// Mode returns the prepared mode, or "" if nothing is prepared.
func (e *Engine) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.index == nil {
		return ""
	}
	return e.index.Mode()
}

// Index returns the prepared structure, or nil.
func (e *Engine) Index() Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}

// Path returns the path of the last successful Load.
func (e *Engine) Path() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path
}

// Len returns the number of corpus lines.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.lines)
}

// Lines returns a copy of the corpus in file order.
func (e *Engine) Lines() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.lines...)
}

// Loaded reports whether a corpus is loaded.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}
