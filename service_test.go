package linesearch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceExecuteQuery(t *testing.T) {
	svc, store := newTestService(t, ServiceConfig{DefaultMode: ModeTrie}, "apple", "banana", "cherry")
	ctx := context.Background()

	res, err := svc.ExecuteQuery(ctx, QueryRequest{Query: "banana", RequestingIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Equal(t, ModeTrie, res.Mode)
	assert.Equal(t, StatusFound, res.Record.Status)
	require.NotNil(t, res.Record.ExecutionTime)
	assert.GreaterOrEqual(t, *res.Record.ExecutionTime, 0.0)
	require.NotNil(t, res.Record.Timestamp)

	res, err = svc.ExecuteQuery(ctx, QueryRequest{Query: "kiwi", RequestingIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, StatusNotFound, res.Status)

	recs, err := store.ListAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "banana", recs[0].Query)
	assert.Equal(t, StatusFound, recs[0].Status)
	assert.Equal(t, "kiwi", recs[1].Query)
	assert.Equal(t, StatusNotFound, recs[1].Status)
	assert.Equal(t, "10.0.0.1", recs[1].RequestingIP)
}

func TestServiceEveryMode(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{}, "apple", "banana", "cherry")
	for _, m := range Modes() {
		res, err := svc.ExecuteQuery(context.Background(), QueryRequest{Query: "cherry", Algo: string(m)})
		require.NoError(t, err, m)
		assert.True(t, res.Found(), m)
		assert.Equal(t, m, res.Mode)

		res, err = svc.ExecuteQuery(context.Background(), QueryRequest{Query: "cherr", Algo: string(m)})
		require.NoError(t, err, m)
		assert.False(t, res.Found(), m)
	}
}

func TestServiceCachesPreparedEngine(t *testing.T) {
	path := writeCorpus(t, "apple")
	svc, _ := newTestService(t, ServiceConfig{CorpusPath: path})

	res, err := svc.ExecuteQuery(context.Background(), QueryRequest{Query: "apple"})
	require.NoError(t, err)
	require.True(t, res.Found())

	// Without reread the corpus is not consulted again.
	require.NoError(t, os.WriteFile(path, []byte("banana\n"), 0600))
	res, err = svc.ExecuteQuery(context.Background(), QueryRequest{Query: "apple"})
	require.NoError(t, err)
	assert.True(t, res.Found())
}

func TestServiceRereadOnQuery(t *testing.T) {
	path := writeCorpus(t, "apple")
	svc, _ := newTestService(t, ServiceConfig{CorpusPath: path, RereadOnQuery: true})

	res, err := svc.ExecuteQuery(context.Background(), QueryRequest{Query: "banana"})
	require.NoError(t, err)
	assert.False(t, res.Found())

	require.NoError(t, os.WriteFile(path, []byte("apple\nbanana\n"), 0600))
	res, err = svc.ExecuteQuery(context.Background(), QueryRequest{Query: "banana", Algo: "binary"})
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Equal(t, ModeBinary, res.Mode)
}

func TestServiceInvalidAlgo(t *testing.T) {
	svc, store := newTestService(t, ServiceConfig{}, "apple")

	res, err := svc.ExecuteQuery(context.Background(), QueryRequest{Query: "apple", Algo: "bogosort"})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, CodeInvalidArgument, res.Code)
	assert.Contains(t, res.Error, "bogosort")

	recs, err := store.ListAll()
	require.NoError(t, err)
	assert.Empty(t, recs, "failed queries are not persisted")
}

func TestServiceMissingCorpusRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.txt")
	svc, _ := newTestService(t, ServiceConfig{CorpusPath: path})

	res, err := svc.ExecuteQuery(context.Background(), QueryRequest{Query: "apple"})
	require.NoError(t, err)
	require.True(t, res.Failed())
	assert.Equal(t, CodeNotFound, res.Code)

	require.NoError(t, os.WriteFile(path, []byte("apple\n"), 0600))
	res, err = svc.ExecuteQuery(context.Background(), QueryRequest{Query: "apple"})
	require.NoError(t, err)
	assert.True(t, res.Found(), "a failed load must not be cached")
}

func TestServiceTruncatesQuery(t *testing.T) {
	svc, store := newTestService(t, ServiceConfig{}, "apple")
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'q'
	}
	_, err := svc.ExecuteQuery(context.Background(), QueryRequest{Query: string(long)})
	require.NoError(t, err)
	recs, err := store.ListAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Query, MaxQueryBytes)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(NewMemoryStore(), nil, ServiceConfig{CorpusPath: "relative/corpus.txt"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewService(NewMemoryStore(), nil, ServiceConfig{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewService(nil, nil, ServiceConfig{CorpusPath: "/tmp/c.txt"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewService(NewMemoryStore(), nil, ServiceConfig{CorpusPath: "/tmp/c.txt", DefaultMode: "bloom"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// A missing absolute path is accepted.
	svc, err := NewService(NewMemoryStore(), nil, ServiceConfig{
		CorpusPath:  filepath.Join(t.TempDir(), "missing.txt"),
		DefaultMode: "Hash Set",
	}, WithLogger(NoopLogger()))
	require.NoError(t, err)
	assert.Equal(t, ModeSet, svc.cfg.DefaultMode)
}

func TestServiceCanceledContext(t *testing.T) {
	svc, store := newTestService(t, ServiceConfig{}, "apple")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ExecuteQuery(ctx, QueryRequest{Query: "apple"})
	assert.ErrorIs(t, err, context.Canceled)

	results := svc.ExecuteBatch(ctx, []QueryRequest{{Query: "apple"}, {Query: "kiwi"}})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Failed())
		assert.Equal(t, CodeCanceled, r.Code)
	}
	recs, _ := store.ListAll()
	assert.Empty(t, recs)
}

// failingStore rejects appends and optionally panics.
type failingStore struct {
	Store
	panicOn string
}

func (s *failingStore) Append(rec LogRecord) error {
	if s.panicOn != "" && rec.Query == s.panicOn {
		panic("store exploded")
	}
	if s.panicOn != "" {
		return s.Store.Append(rec)
	}
	return fmt.Errorf("%w: disk full", ErrIO)
}

func TestServiceAppendFailure(t *testing.T) {
	svc, err := NewService(&failingStore{Store: NewMemoryStore()}, nil,
		ServiceConfig{CorpusPath: writeCorpus(t, "apple")}, WithLogger(NoopLogger()))
	require.NoError(t, err)

	_, err = svc.ExecuteQuery(context.Background(), QueryRequest{Query: "apple"})
	assert.ErrorIs(t, err, ErrIO)

	results := svc.ExecuteBatch(context.Background(), []QueryRequest{{Query: "apple"}})
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.Equal(t, CodeIO, results[0].Code)
}

func TestExecuteBatchOrderAndIsolation(t *testing.T) {
	svc, store := newTestService(t, ServiceConfig{BatchWorkers: 4}, "apple", "banana", "cherry")
	missing := filepath.Join(t.TempDir(), "missing.txt")

	reqs := make([]QueryRequest, 50)
	bad := make(map[int]bool)
	for i := range reqs {
		reqs[i] = QueryRequest{Query: fmt.Sprintf("q%d", i), RequestingIP: "10.1.1.1"}
		if i%5 == 0 {
			reqs[i].CorpusPath = missing
			bad[i] = true
		}
		if i%7 == 0 {
			reqs[i].Query = "banana"
		}
	}
	require.Len(t, bad, 10)

	results := svc.ExecuteBatch(context.Background(), reqs)
	require.Len(t, results, 50)
	for i, r := range results {
		assert.Equal(t, reqs[i].Query, r.Record.Query, "result %d out of order", i)
		if bad[i] {
			assert.True(t, r.Failed(), "result %d", i)
			assert.Equal(t, CodeNotFound, r.Code)
			continue
		}
		require.False(t, r.Failed(), "result %d: %s", i, r.Error)
		assert.Equal(t, reqs[i].Query == "banana", r.Found(), "result %d", i)
	}

	recs, err := store.ListAll()
	require.NoError(t, err)
	assert.Len(t, recs, 40)
}

func TestExecuteBatchCorpusOverride(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{}, "apple")
	other := writeCorpus(t, "durian")

	results := svc.ExecuteBatch(context.Background(), []QueryRequest{
		{Query: "durian"},
		{Query: "durian", CorpusPath: other},
		{Query: "apple", CorpusPath: other, Algo: "naive"},
	})
	require.Len(t, results, 3)
	assert.False(t, results[0].Found())
	assert.True(t, results[1].Found())
	assert.False(t, results[2].Found())
	assert.Equal(t, ModeNaive, results[2].Mode)
}

func TestExecuteBatchPanicIsolated(t *testing.T) {
	store := &failingStore{Store: NewMemoryStore(), panicOn: "boom"}
	svc, err := NewService(store, nil, ServiceConfig{CorpusPath: writeCorpus(t, "apple")}, WithLogger(NoopLogger()))
	require.NoError(t, err)

	results := svc.ExecuteBatch(context.Background(), []QueryRequest{
		{Query: "apple"}, {Query: "boom"}, {Query: "kiwi"},
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].Found())
	assert.True(t, results[1].Failed())
	assert.Equal(t, CodeInternal, results[1].Code)
	assert.Contains(t, results[1].Error, "store exploded")
	assert.Equal(t, StatusNotFound, results[2].Status)
}

func TestExecuteBatchEmpty(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{}, "apple")
	assert.Empty(t, svc.ExecuteBatch(context.Background(), nil))
}

func TestServiceLogMaintenance(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{}, "apple")
	res, err := svc.ExecuteQuery(context.Background(), QueryRequest{Query: "apple"})
	require.NoError(t, err)
	id := res.Record.ID

	ok, err := svc.UpdateLog(id, map[string]any{FieldStatus: string(StatusNotFound)})
	require.NoError(t, err)
	assert.True(t, ok)

	recs, err := svc.ReadAllLogs()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, StatusNotFound, recs[0].Status)

	_, err = svc.UpdateLog(id, map[string]any{"id": "other"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	ok, err = svc.DeleteLog(id)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.DeleteLog(id)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, svc.Close())
}
