package linesearch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	CertFile       string
	KeyFile        string
	Codec          Codec         // CodecJSON when 0
	Timeout        time.Duration // per request round trip, none when 0
	MaxPayloadSize int           // bytes per response body, 64 MiB when 0
}

// Client is a connection to a Server. Requests on one Client are
// serialized.
type Client struct {
	cfg  ClientConfig
	mu   sync.Mutex
	conn *tls.Conn
}

const defaultMaxResponseSize = 64 << 20

// Dial connects to addr and completes the TLS handshake.
func Dial(ctx context.Context, addr string, cfg ClientConfig) (*Client, error) {
	if cfg.Codec == 0 {
		cfg.Codec = CodecJSON
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = defaultMaxResponseSize
	}

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn, err := SecureContext(ctx, raw, cfg.CertFile, cfg.KeyFile, false)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Client{cfg: cfg, conn: conn}, nil
}

// CreateLog asks the server whether query is in the corpus, searching with
// algo (the server default when empty). A query-level failure is returned
// as an error carrying the server's message.
func (c *Client) CreateLog(query, algo string) (Response, error) {
	resp, err := c.Do(Request{Action: ActionCreateLog, Query: query, Algo: algo})
	if err != nil {
		return resp, err
	}
	if resp.Status != ResponseOK {
		return resp, &ResponseError{Code: resp.Code, Message: resp.Error}
	}
	return resp, nil
}

// ReadLogs returns every record stored by the server.
func (c *Client) ReadLogs() ([]LogRecord, error) {
	resp, err := c.Do(Request{Action: ActionReadLogs})
	if err != nil {
		return nil, err
	}
	if resp.Status != ResponseOK {
		return nil, &ResponseError{Code: resp.Code, Message: resp.Error}
	}
	if resp.Logs == nil {
		return []LogRecord{}, nil
	}
	return resp.Logs, nil
}

// Do sends req and waits for its response. Error frames are returned as a
// Response, not as an error.
func (c *Client) Do(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return Response{}, fmt.Errorf("%w: client closed", ErrInvalidState)
	}

	if c.cfg.Timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
		defer c.conn.SetDeadline(time.Time{})
	}

	data, err := encodePayload(c.cfg.Codec, req)
	if err != nil {
		return Response{}, err
	}
	if err := writeFrame(c.conn, c.cfg.Codec, data); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	codec, payload, err := readFrame(c.conn, c.cfg.MaxPayloadSize)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := decodePayload(codec, payload, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ResponseError is an error frame returned by the server.
type ResponseError struct {
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Code == "" {
		return "server error: " + e.Message
	}
	return fmt.Sprintf("server error (%s): %s", e.Code, e.Message)
}

// BenchResult is the outcome of one query issued by RunConcurrent.
type BenchResult struct {
	Query    string
	Found    bool
	Err      error
	Duration time.Duration // full round trip, including connection setup
}

// RunConcurrent issues one create_log per query against addr, each on its
// own connection, with at most concurrency in flight. results[i] answers
// queries[i]. Per-query failures are recorded in the result; the returned
// error is only ctx's.
func RunConcurrent(ctx context.Context, addr string, cfg ClientConfig, queries []string, algo string, concurrency int) ([]BenchResult, error) {
	results := make([]BenchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, q := range queries {
		g.Go(func() error {
			start := time.Now()
			found, err := queryOnce(gctx, addr, cfg, q, algo)
			results[i] = BenchResult{Query: q, Found: found, Err: err, Duration: time.Since(start)}
			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func queryOnce(ctx context.Context, addr string, cfg ClientConfig, query, algo string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c, err := Dial(ctx, addr, cfg)
	if err != nil {
		return false, err
	}
	defer c.Close()

	resp, err := c.CreateLog(query, algo)
	if err != nil {
		return false, err
	}
	return resp.Message == MessageExists, nil
}
