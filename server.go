package linesearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr             string
	CertFile         string
	KeyFile          string
	MaxPayloadSize   int           // bytes per inbound frame body, DefaultMaxPayloadSize when 0
	MaxConnections   int           // concurrent connections, unlimited when 0
	ReadTimeout      time.Duration // idle limit between frames, none when 0
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration // 10s when 0
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServerMetrics sets the metrics sink.
func WithServerMetrics(m *Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// Server accepts TLS connections and answers framed requests, one
// goroutine per connection. Requests on one connection are handled strictly
// in order.
type Server struct {
	svc     *Service
	cfg     ServerConfig
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	listener net.Listener
	running  bool
	connPool *ants.Pool // bounds concurrent handlers, nil = unlimited

	connMu      sync.Mutex
	connections map[net.Conn]struct{}

	wg sync.WaitGroup
}

// NewServer returns a Server dispatching to svc.
func NewServer(svc *Service, cfg ServerConfig, opts ...ServerOption) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: nil service", ErrInvalidArgument)
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.MaxPayloadSize < 0 {
		return nil, fmt.Errorf("%w: negative max payload size %d", ErrInvalidArgument, cfg.MaxPayloadSize)
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	s := &Server{
		svc:         svc,
		cfg:         cfg,
		logger:      slog.Default(),
		connections: make(map[net.Conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln in the background until Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("%w: server already running", ErrInvalidState)
	}

	if s.cfg.MaxConnections > 0 {
		pool, err := ants.NewPool(s.cfg.MaxConnections,
			ants.WithNonblocking(true),
			ants.WithPanicHandler(func(v any) {
				s.logger.Error("connection handler panic", "error", v)
			}))
		if err != nil {
			return fmt.Errorf("create connection pool: %w", err)
		}
		s.connPool = pool
	}

	s.listener = ln
	s.running = true
	s.logger.Info("server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, closes live connections and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	err := s.listener.Close()
	s.mu.Unlock()

	s.connMu.Lock()
	for c := range s.connections {
		_ = c.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	if s.connPool != nil {
		_ = s.connPool.ReleaseTimeout(3 * time.Second)
		s.connPool = nil
	}
	s.logger.Info("server stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.isRunning() {
				return
			}
			s.logger.Error("accept failed", "error", err)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		if s.connPool != nil {
			if err := s.connPool.Submit(func() {
				defer s.wg.Done()
				s.handleConn(conn)
			}); err != nil {
				s.wg.Done()
				s.untrack(conn)
				_ = conn.Close()
				s.metrics.frameRejected("capacity")
				s.logger.Warn("connection refused", "remote", conn.RemoteAddr().String(), "error", err)
			}
			continue
		}
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) track(c net.Conn) {
	s.connMu.Lock()
	s.connections[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.connMu.Lock()
	delete(s.connections, c)
	s.connMu.Unlock()
}

// handleConn runs Accepted -> SecurityNegotiated -> (ReadingFrame ->
// Dispatching -> Responding)* -> Closed for one raw connection.
func (s *Server) handleConn(raw net.Conn) {
	remote := raw.RemoteAddr().String()
	log := s.logger.With("remote", remote)

	s.metrics.connOpened()
	defer func() {
		if v := recover(); v != nil {
			log.Error("connection handler panic", "error", v)
		}
		_ = raw.Close()
		s.untrack(raw)
		s.metrics.connClosed()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	conn, err := SecureContext(ctx, raw, s.cfg.CertFile, s.cfg.KeyFile, true)
	cancel()
	if err != nil {
		log.Warn("tls setup failed", "error", err)
		return
	}
	defer conn.Close()
	log.Debug("connection secured")

	ip := remoteIP(raw.RemoteAddr())
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		codec, payload, err := readFrame(conn, s.cfg.MaxPayloadSize)
		if err != nil {
			var fe *frameError
			if !errors.As(err, &fe) {
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					log.Debug("connection closed", "error", err)
				}
				return
			}
			s.metrics.frameRejected(ErrorCode(err))
			log.Warn("frame rejected", "error", err)
			if err := s.respond(conn, CodecJSON, errorResponse("", err)); err != nil {
				log.Debug("write failed", "error", err)
				return
			}
			continue
		}

		resp, replyCodec := s.dispatch(ip, codec, payload, log)
		if err := s.respond(conn, replyCodec, resp); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
	}
}

// dispatch decodes one request and runs it. Undecodable requests are
// answered in JSON.
func (s *Server) dispatch(ip string, codec Codec, payload []byte, log *slog.Logger) (Response, Codec) {
	var req Request
	if err := decodePayload(codec, payload, &req); err != nil {
		s.metrics.frameRejected(ErrorCode(err))
		log.Warn("malformed request", "codec", codec.String(), "error", err)
		return errorResponse("", err), CodecJSON
	}
	log.Debug("request", "action", req.Action)

	switch req.Action {
	case ActionCreateLog:
		res, err := s.svc.ExecuteQuery(context.Background(), QueryRequest{
			RequestingIP: ip,
			Query:        req.Query,
			Algo:         req.Algo,
		})
		if err != nil {
			return errorResponse(req.Action, err), codec
		}
		return createLogResponse(res), codec

	case ActionReadLogs:
		recs, err := s.svc.ReadAllLogs()
		if err != nil {
			return errorResponse(req.Action, err), codec
		}
		return Response{Action: req.Action, Status: ResponseOK, Logs: recs}, codec

	default:
		s.metrics.frameRejected("invalid_action")
		return Response{
			Action: req.Action,
			Status: ResponseError,
			Error:  "invalid action",
			Code:   CodeInvalidArgument,
		}, codec
	}
}

func createLogResponse(res QueryResult) Response {
	if res.Failed() {
		return Response{
			Action: ActionCreateLog,
			Status: ResponseError,
			Error:  res.Error,
			Code:   res.Code,
		}
	}
	msg := MessageNotFound
	if res.Found() {
		msg = MessageExists
	}
	rec := res.Record
	return Response{
		Action:  ActionCreateLog,
		Status:  ResponseOK,
		Message: msg,
		Log:     &rec,
	}
}

func (s *Server) respond(conn net.Conn, codec Codec, resp Response) error {
	data, err := encodePayload(codec, resp)
	if err != nil {
		s.logger.Error("encode response failed", "error", err)
		codec = CodecJSON
		if data, err = encodePayload(codec, errorResponse(resp.Action, err)); err != nil {
			return err
		}
	}
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return writeFrame(conn, codec, data)
}

func remoteIP(a net.Addr) string {
	if a == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}
