// Command linesearch is a client for linesearchd.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/karasz/linesearch"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "linesearch:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "linesearch",
		Usage: "Query a linesearchd server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Server address", Value: "127.0.0.1:44445", EnvVars: []string{"LINESEARCH_SERVER_ADDR"}},
			&cli.StringFlag{Name: "cert", Usage: "PEM certificate", Required: true, EnvVars: []string{"LINESEARCH_TLS_CERT_FILE"}},
			&cli.StringFlag{Name: "key", Usage: "PEM private key", Required: true, EnvVars: []string{"LINESEARCH_TLS_KEY_FILE"}},
			&cli.StringFlag{Name: "codec", Usage: "Frame codec (json, proto)", Value: "json"},
			&cli.DurationFlag{Name: "timeout", Usage: "Per request timeout", Value: 10 * time.Second},
		},
		Commands: []*cli.Command{
			{
				Name:      "query",
				Usage:     "Ask whether a string is a line of the corpus",
				ArgsUsage: "STRING",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "algo", Usage: "Search mode (server default when empty)"},
				},
			},
			{
				Name:   "logs",
				Usage:  "Print every stored query log",
				Action: logsCommand,
			},
			{
				Name:      "bench",
				Usage:     "Send every line of a query file concurrently, one connection per query",
				ArgsUsage: "QUERY_FILE",
				Action:    benchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "algo", Usage: "Search mode (server default when empty)"},
					&cli.IntFlag{Name: "concurrency", Aliases: []string{"n"}, Usage: "Queries in flight", Value: 10},
				},
			},
		},
	}
}

func clientConfig(c *cli.Context) (linesearch.ClientConfig, error) {
	codec, err := linesearch.ParseCodec(c.String("codec"))
	if err != nil {
		return linesearch.ClientConfig{}, err
	}
	return linesearch.ClientConfig{
		CertFile: c.String("cert"),
		KeyFile:  c.String("key"),
		Codec:    codec,
		Timeout:  c.Duration("timeout"),
	}, nil
}

func dial(c *cli.Context) (*linesearch.Client, error) {
	cfg, err := clientConfig(c)
	if err != nil {
		return nil, err
	}
	return linesearch.Dial(c.Context, c.String("addr"), cfg)
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("query needs exactly one STRING", 2)
	}
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	resp, err := cl.CreateLog(c.Args().First(), c.String("algo"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, resp.Message)
	if resp.Log != nil && resp.Log.ExecutionTime != nil {
		fmt.Fprintf(c.App.Writer, "id=%s execution_time=%.9fs\n", resp.Log.ID, *resp.Log.ExecutionTime)
	}
	return nil
}

func logsCommand(c *cli.Context) error {
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	recs, err := cl.ReadLogs()
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

func benchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("bench needs exactly one QUERY_FILE", 2)
	}
	queries, err := readLines(c.Args().First())
	if err != nil {
		return err
	}
	cfg, err := clientConfig(c)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := linesearch.RunConcurrent(c.Context, c.String("addr"), cfg, queries, c.String("algo"), c.Int("concurrency"))
	if err != nil {
		return err
	}
	wall := time.Since(start)

	var found, failed int
	lat := make([]time.Duration, 0, len(results))
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(c.App.ErrWriter, "%q: %v\n", r.Query, r.Err)
			continue
		case r.Found:
			found++
		}
		lat = append(lat, r.Duration)
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })

	fmt.Fprintf(c.App.Writer, "queries=%d found=%d not_found=%d failed=%d wall=%s\n",
		len(results), found, len(results)-found-failed, failed, wall)
	if len(lat) > 0 {
		fmt.Fprintf(c.App.Writer, "latency p50=%s p99=%s max=%s\n",
			lat[len(lat)/2], lat[len(lat)*99/100], lat[len(lat)-1])
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
