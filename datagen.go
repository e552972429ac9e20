package linesearch

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// DefaultQuerySizes are the query file sizes written per dataset.
var DefaultQuerySizes = []int{1, 10, 30, 50, 100}

const datasetWordLen = 8

// Dataset describes the files written by GenerateDataset.
type Dataset struct {
	Path       string
	Rows       int
	QueryFiles map[int]string // query count -> path
}

// GenerateDataset writes rows unique random lowercase words to
// dir/data<N>k.txt (data<N>.txt when rows is not a multiple of 1000), plus one query file per entry of querySizes.
// Each query file holds size/2 words drawn from the dataset and the rest
// freshly generated words guaranteed absent from it, shuffled.
func GenerateDataset(dir string, rows int, querySizes []int, rng *rand.Rand) (Dataset, error) {
	if rows <= 0 {
		return Dataset{}, fmt.Errorf("%w: rows must be positive, got %d", ErrInvalidArgument, rows)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Dataset{}, ioError("create dataset dir", err)
	}

	name := fmt.Sprintf("data%d", rows)
	if rows%1000 == 0 {
		name = fmt.Sprintf("data%dk", rows/1000)
	}
	ds := Dataset{
		Path:       filepath.Join(dir, name+".txt"),
		Rows:       rows,
		QueryFiles: make(map[int]string, len(querySizes)),
	}
	seen := make(map[string]struct{}, rows)
	words := uniqueWords(rng, rows, seen)
	if err := writeLines(ds.Path, words); err != nil {
		return Dataset{}, err
	}

	for _, q := range querySizes {
		in := min(q/2, len(words))
		queries := make([]string, 0, q)
		picked := make(map[int]struct{}, in)
		for len(picked) < in {
			i := rng.IntN(len(words))
			if _, dup := picked[i]; dup {
				continue
			}
			picked[i] = struct{}{}
			queries = append(queries, words[i])
		}
		queries = append(queries, uniqueWords(rng, q-in, seen)...)
		rng.Shuffle(len(queries), func(i, j int) { queries[i], queries[j] = queries[j], queries[i] })

		p := filepath.Join(dir, fmt.Sprintf("%s_queries%d.txt", name, q))
		if err := writeLines(p, queries); err != nil {
			return Dataset{}, err
		}
		ds.QueryFiles[q] = p
	}
	return ds, nil
}

// GenerateDatasets runs GenerateDataset for every row count concurrently.
func GenerateDatasets(ctx context.Context, dir string, rowCounts, querySizes []int, seed uint64) ([]Dataset, error) {
	out := make([]Dataset, len(rowCounts))
	g, ctx := errgroup.WithContext(ctx)
	for i, rows := range rowCounts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ds, err := GenerateDataset(dir, rows, querySizes, rand.New(rand.NewPCG(seed, uint64(i))))
			if err != nil {
				return fmt.Errorf("dataset %d rows: %w", rows, err)
			}
			out[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// uniqueWords returns n words not in seen and adds them to it.
func uniqueWords(rng *rand.Rand, n int, seen map[string]struct{}) []string {
	out := make([]string, 0, n)
	buf := make([]byte, datasetWordLen)
	for len(out) < n {
		for i := range buf {
			buf[i] = byte('a' + rng.IntN(26))
		}
		w := string(buf)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return ioError("create "+path, err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			_ = f.Close()
			return ioError("write "+path, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return ioError("flush "+path, err)
	}
	if err := f.Close(); err != nil {
		return ioError("close "+path, err)
	}
	return nil
}
