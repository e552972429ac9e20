package linesearch

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readWords(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func TestGenerateDataset(t *testing.T) {
	dir := t.TempDir()
	ds, err := GenerateDataset(dir, 2000, []int{1, 10, 31}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data2k.txt"), ds.Path)
	words := readWords(t, ds.Path)
	require.Len(t, words, 2000)
	corpus := make(map[string]bool, len(words))
	for _, w := range words {
		assert.Len(t, w, datasetWordLen)
		assert.False(t, corpus[w], "duplicate word %q", w)
		corpus[w] = true
	}

	for _, size := range []int{1, 10, 31} {
		p := ds.QueryFiles[size]
		require.NotEmpty(t, p, "query file for %d", size)
		queries := readWords(t, p)
		require.Len(t, queries, size)
		in := 0
		for _, q := range queries {
			if corpus[q] {
				in++
			}
		}
		assert.Equal(t, size/2, in, "query file %d", size)
	}
}

func TestGenerateDatasetDeterministic(t *testing.T) {
	a, err := GenerateDataset(t.TempDir(), 150, []int{4}, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	b, err := GenerateDataset(t.TempDir(), 150, []int{4}, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	assert.Equal(t, "data150.txt", filepath.Base(a.Path))
	assert.Equal(t, readWords(t, a.Path), readWords(t, b.Path))
	assert.Equal(t, readWords(t, a.QueryFiles[4]), readWords(t, b.QueryFiles[4]))
}

func TestGenerateDatasetInvalidRows(t *testing.T) {
	_, err := GenerateDataset(t.TempDir(), 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGenerateDatasets(t *testing.T) {
	dir := t.TempDir()
	sets, err := GenerateDatasets(context.Background(), dir, []int{1000, 3000}, []int{10}, 42)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, 1000, sets[0].Rows)
	assert.Equal(t, filepath.Join(dir, "data3k.txt"), sets[1].Path)
	assert.FileExists(t, filepath.Join(dir, "data1k_queries10.txt"))

	// Generated files feed straight into the engine.
	e := NewEngine()
	require.NoError(t, e.Load(sets[0].Path))
	assert.Equal(t, 1000, e.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = GenerateDatasets(ctx, t.TempDir(), []int{10}, nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
