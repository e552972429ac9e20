// Command linesearchd runs the line search server and its admin tasks.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/karasz/linesearch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "linesearchd:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a YAML, TOML or JSON config file",
		EnvVars: []string{"LINESEARCH_CONFIG"},
	}

	return &cli.App{
		Name:  "linesearchd",
		Usage: "TLS line membership search server",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the server until interrupted",
				Action: serveCommand,
			},
			{
				Name:      "batch",
				Usage:     "Run every query in a file through the batch path and print the results",
				ArgsUsage: "QUERY_FILE",
				Action:    batchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "algo", Usage: "Search mode (server default when empty)"},
				},
			},
			{
				Name:  "logs",
				Usage: "Inspect and edit the query log store",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "Print every record as JSON lines",
						Action: logsListCommand,
					},
					{
						Name:      "update",
						Usage:     "Update fields of a record",
						ArgsUsage: "ID",
						Action:    logsUpdateCommand,
						Flags: []cli.Flag{
							&cli.StringSliceFlag{
								Name:     "set",
								Usage:    "field=value, repeatable (value null clears a field)",
								Required: true,
							},
						},
					},
					{
						Name:      "delete",
						Usage:     "Delete a record",
						ArgsUsage: "ID",
						Action:    logsDeleteCommand,
					},
					{
						Name:   "verify",
						Usage:  "Check every record for duplicate ids and partial completion",
						Action: logsVerifyCommand,
					},
				},
			},
			{
				Name:   "gen-data",
				Usage:  "Generate test corpora and query files",
				Action: genDataCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "Output directory", Value: "data/test_data"},
					&cli.IntSliceFlag{Name: "rows", Usage: "Dataset sizes", Value: cli.NewIntSlice(10_000, 250_000, 1_000_000)},
					&cli.IntSliceFlag{Name: "queries", Usage: "Query file sizes", Value: cli.NewIntSlice(linesearch.DefaultQuerySizes...)},
					&cli.Uint64Flag{Name: "seed", Usage: "Random seed (random when 0)"},
				},
			},
		},
	}
}

type runtimeDeps struct {
	cfg    linesearch.Config
	logger *slog.Logger
}

func setup(c *cli.Context) (runtimeDeps, error) {
	cfg, err := linesearch.LoadConfig(c.String("config"))
	if err != nil {
		return runtimeDeps{}, err
	}
	logger := linesearch.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return runtimeDeps{cfg: cfg, logger: logger}, nil
}

func openService(d runtimeDeps, opts ...linesearch.ServiceOption) (*linesearch.Service, error) {
	store, err := linesearch.OpenStore(d.cfg.Store.Backend, d.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	opts = append([]linesearch.ServiceOption{linesearch.WithLogger(d.logger)}, opts...)
	svc, err := linesearch.NewService(store, nil, d.cfg.ServiceConfig(), opts...)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return svc, nil
}

func serveCommand(c *cli.Context) error {
	d, err := setup(c)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := linesearch.NewMetrics(reg)

	svc, err := openService(d, linesearch.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer svc.Close()

	srv, err := linesearch.NewServer(svc, d.cfg.ServerConfig(),
		linesearch.WithServerLogger(d.logger),
		linesearch.WithServerMetrics(metrics))
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Close()

	var metricsSrv *http.Server
	if d.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: d.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error("metrics server failed", "error", err)
			}
		}()
		d.logger.Info("metrics listening", "addr", d.cfg.Metrics.Addr)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	d.logger.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func batchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("batch needs exactly one QUERY_FILE", 2)
	}
	d, err := setup(c)
	if err != nil {
		return err
	}
	queries, err := readLines(c.Args().First())
	if err != nil {
		return err
	}
	svc, err := openService(d)
	if err != nil {
		return err
	}
	defer svc.Close()

	reqs := make([]linesearch.QueryRequest, len(queries))
	for i, q := range queries {
		reqs[i] = linesearch.QueryRequest{RequestingIP: "local", Query: q, Algo: c.String("algo")}
	}
	enc := json.NewEncoder(c.App.Writer)
	for _, res := range svc.ExecuteBatch(c.Context, reqs) {
		out := map[string]any{"query": res.Record.Query, "mode": res.Mode, "status": res.Status}
		if res.Failed() {
			out["error"] = res.Error
		} else {
			out["id"] = res.Record.ID
			out["execution_time"] = res.Record.ExecutionTime
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func openStore(c *cli.Context) (linesearch.Store, error) {
	d, err := setup(c)
	if err != nil {
		return nil, err
	}
	return linesearch.OpenStore(d.cfg.Store.Backend, d.cfg.Store.Path)
}

func logsListCommand(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListAll()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func logsUpdateCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("update needs exactly one ID", 2)
	}
	fields, err := parseFieldUpdates(c.StringSlice("set"))
	if err != nil {
		return err
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	id := c.Args().First()
	ok, err := store.Update(id, fields)
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit(fmt.Sprintf("no record with id %s", id), 1)
	}
	fmt.Fprintln(c.App.Writer, "updated", id)
	return nil
}

func logsDeleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("delete needs exactly one ID", 2)
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	id := c.Args().First()
	ok, err := store.Delete(id)
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit(fmt.Sprintf("no record with id %s", id), 1)
	}
	fmt.Fprintln(c.App.Writer, "deleted", id)
	return nil
}

func logsVerifyCommand(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListAll()
	if err != nil {
		return err
	}
	problems := linesearch.VerifyRecords(recs)
	for _, p := range problems {
		fmt.Fprintln(c.App.ErrWriter, p)
	}
	if len(problems) > 0 {
		return cli.Exit(fmt.Sprintf("%d problems in %d records", len(problems), len(recs)), 1)
	}
	fmt.Fprintf(c.App.Writer, "%d records ok\n", len(recs))
	return nil
}

// parseFieldUpdates turns field=value pairs into typed updates.
func parseFieldUpdates(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: expected field=value, got %q", linesearch.ErrInvalidArgument, p)
		}
		if v == "null" {
			fields[k] = nil
			continue
		}
		if k == linesearch.FieldExecutionTime {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", linesearch.ErrInvalidArgument, k, err)
			}
			fields[k] = f
			continue
		}
		fields[k] = v
	}
	return fields, nil
}

func genDataCommand(c *cli.Context) error {
	seed := c.Uint64("seed")
	if seed == 0 {
		seed = rand.Uint64()
	}
	sets, err := linesearch.GenerateDatasets(c.Context, c.String("dir"), c.IntSlice("rows"), c.IntSlice("queries"), seed)
	if err != nil {
		return err
	}
	for _, ds := range sets {
		fmt.Fprintf(c.App.Writer, "%s (%d rows, %d query files)\n", ds.Path, ds.Rows, len(ds.QueryFiles))
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}
