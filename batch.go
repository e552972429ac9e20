package linesearch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// ExecuteBatch runs every request through ExecuteQuery on a bounded worker
// pool. results[i] answers reqs[i]. A request that fails, panics or never
// starts because ctx was cancelled gets an error result at its index; its
// siblings are unaffected.
func (s *Service) ExecuteBatch(ctx context.Context, reqs []QueryRequest) []QueryResult {
	results := make([]QueryResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	s.metrics.batch(len(reqs))

	workers := s.cfg.BatchWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		s.logger.Error("batch worker panic", "error", v)
	}))
	if err != nil {
		s.logger.Warn("batch pool unavailable, running sequentially", "error", err)
		for i := range reqs {
			results[i] = s.runOne(ctx, reqs[i])
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = s.runOne(ctx, reqs[i])
		}); err != nil {
			wg.Done()
			results[i] = s.failed(reqs[i], "", fmt.Errorf("submit batch request: %w", err))
		}
	}
	wg.Wait()
	return results
}

// runOne converts a returned error or a panic into an error result.
func (s *Service) runOne(ctx context.Context, req QueryRequest) (res QueryResult) {
	defer func() {
		if v := recover(); v != nil {
			res = s.failed(req, "", fmt.Errorf("panic: %v", v))
		}
	}()
	r, err := s.ExecuteQuery(ctx, req)
	if err != nil {
		return s.failed(req, r.Mode, err)
	}
	return r
}
