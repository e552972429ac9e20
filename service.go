package linesearch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ServiceConfig is the static configuration of a Service.
type ServiceConfig struct {
	CorpusPath    string // absolute path of the corpus file
	RereadOnQuery bool   // reload and re-prepare before every query
	DefaultMode   Mode   // used when a request names no algorithm
	BatchWorkers  int    // ExecuteBatch pool size, runtime.NumCPU() when <= 0
}

// QueryRequest is one membership query.
type QueryRequest struct {
	RequestingIP string
	Query        string
	Algo         string
	// CorpusPath, when set, searches that file with a throwaway engine
	// instead of the configured corpus.
	CorpusPath string
}

// QueryResult is the outcome of ExecuteQuery. A failed query has Status
// StatusError with Error and Code filled in, and is not persisted.
type QueryResult struct {
	Record LogRecord
	Mode   Mode
	Status Status
	Error  string
	Code   string
}

// Found reports whether the query matched a corpus line.
func (r QueryResult) Found() bool { return r.Status == StatusFound }

// Failed reports whether the query ended in an error.
func (r QueryResult) Failed() bool { return r.Status == StatusError }

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// Service runs queries against the search engine and records their
// outcomes in the store.
type Service struct {
	store   Store
	engine  *Engine
	cfg     ServiceConfig
	logger  *slog.Logger
	metrics *Metrics

	// rereadMu serializes reload, prepare and search on engine when
	// RereadOnQuery is set.
	rereadMu sync.Mutex

	mu      sync.Mutex
	engines map[Mode]*Engine // prepared engines, one per mode
}

// NewService validates cfg and returns a Service. engine, if non-nil, is
// used for the default mode (and for every query in reread mode).
func NewService(store Store, engine *Engine, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidArgument)
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeTrie
	}
	mode, err := ParseMode(string(cfg.DefaultMode))
	if err != nil {
		return nil, err
	}
	cfg.DefaultMode = mode
	if engine == nil {
		engine = NewEngine()
	}
	s := &Service{
		store:   store,
		engine:  engine,
		cfg:     cfg,
		logger:  slog.Default(),
		engines: make(map[Mode]*Engine),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.ValidateCorpusPath(); err != nil {
		return nil, err
	}
	return s, nil
}

// ValidateCorpusPath requires an absolute corpus path. A path that does not
// exist yet is only logged; loading happens on the first query.
func (s *Service) ValidateCorpusPath() error {
	p := s.cfg.CorpusPath
	if !filepath.IsAbs(p) {
		return fmt.Errorf("%w: corpus path %q is not absolute", ErrInvalidArgument, p)
	}
	if _, err := os.Stat(p); err != nil {
		s.logger.Warn("corpus path not accessible, will retry on first query", "path", p, "error", err)
	}
	return nil
}

// ExecuteQuery searches for req.Query, completes a Log with the outcome and
// appends it to the store. Load, prepare and search failures come back as
// an error-tagged result; only store failures are returned as errors.
func (s *Service) ExecuteQuery(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}

	mode := s.cfg.DefaultMode
	if req.Algo != "" {
		m, err := ParseMode(req.Algo)
		if err != nil {
			return s.failed(req, "", err), nil
		}
		mode = m
	}

	found, elapsed, err := s.search(mode, req)
	if err != nil {
		return s.failed(req, mode, err), nil
	}

	l := NewLog(req.Query, req.RequestingIP)
	if err := l.Complete(found, elapsed); err != nil {
		return s.failed(req, mode, err), nil
	}
	rec := l.Record()
	if err := s.store.Append(rec); err != nil {
		s.logger.Error("append log failed", "id", rec.ID, "error", err)
		return QueryResult{}, fmt.Errorf("append log %s: %w", rec.ID, err)
	}

	s.metrics.observeQuery(mode, rec.Status, elapsed)
	s.logger.Debug("query executed", "id", rec.ID, "mode", mode, "status", rec.Status, "remote", req.RequestingIP)
	return QueryResult{Record: rec, Mode: mode, Status: rec.Status}, nil
}

func (s *Service) failed(req QueryRequest, mode Mode, err error) QueryResult {
	s.metrics.observeQuery(mode, StatusError, 0)
	s.logger.Warn("query failed", "mode", mode, "remote", req.RequestingIP, "error", err)
	return QueryResult{
		Record: LogRecord{
			Query:        TruncateQuery(req.Query, MaxQueryBytes),
			RequestingIP: req.RequestingIP,
			Status:       StatusError,
		},
		Mode:   mode,
		Status: StatusError,
		Error:  err.Error(),
		Code:   ErrorCode(err),
	}
}

func (s *Service) search(mode Mode, req QueryRequest) (bool, time.Duration, error) {
	switch {
	case req.CorpusPath != "":
		e := NewEngine()
		if err := loadAndPrepare(e, req.CorpusPath, mode); err != nil {
			return false, 0, err
		}
		return e.Search(req.Query)

	case s.cfg.RereadOnQuery:
		s.rereadMu.Lock()
		defer s.rereadMu.Unlock()
		if err := loadAndPrepare(s.engine, s.cfg.CorpusPath, mode); err != nil {
			return false, 0, err
		}
		return s.engine.Search(req.Query)

	default:
		e, err := s.engineFor(mode)
		if err != nil {
			return false, 0, err
		}
		return e.Search(req.Query)
	}
}

// engineFor returns the prepared engine for mode, building it on first use.
// Failed builds are not cached.
func (s *Service) engineFor(mode Mode) (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines[mode]; ok {
		return e, nil
	}

	e := NewEngine()
	if mode == s.cfg.DefaultMode {
		e = s.engine
	}
	if e.Mode() != mode {
		if err := loadAndPrepare(e, s.cfg.CorpusPath, mode); err != nil {
			return nil, err
		}
	}
	s.engines[mode] = e
	return e, nil
}

func loadAndPrepare(e *Engine, path string, mode Mode) error {
	if err := e.Load(path); err != nil {
		return err
	}
	return e.Prepare(mode)
}

// ReadAllLogs returns every stored record in append order.
func (s *Service) ReadAllLogs() ([]LogRecord, error) {
	recs, err := s.store.ListAll()
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}
	return recs, nil
}

// UpdateLog applies fields to the record with the given id.
func (s *Service) UpdateLog(id string, fields map[string]any) (bool, error) {
	ok, err := s.store.Update(id, fields)
	if err != nil {
		return false, fmt.Errorf("update log %s: %w", id, err)
	}
	return ok, nil
}

// DeleteLog removes the record with the given id.
func (s *Service) DeleteLog(id string) (bool, error) {
	ok, err := s.store.Delete(id)
	if err != nil {
		return false, fmt.Errorf("delete log %s: %w", id, err)
	}
	return ok, nil
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}
