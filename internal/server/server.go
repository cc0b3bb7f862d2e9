// Package server hosts the gateway's HTTP surface: the /ws training
// endpoint plus health and metrics endpoints, all on one port.
//
// Each accepted WebSocket gets its own [session.Session]; the connection's
// read loop and the session's run loop are tied together with an errgroup so
// either side failing tears both down.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pitchlab-ai/pitchlab/internal/health"
	"github.com/pitchlab-ai/pitchlab/internal/observe"
	"github.com/pitchlab-ai/pitchlab/internal/session"
	"github.com/pitchlab-ai/pitchlab/internal/wire"
)

const (
	readLimit       = 1 << 20 // generous for base64 PCM frames
	shutdownTimeout = 10 * time.Second
)

// Config wires the server to its collaborators.
type Config struct {
	// Addr is the listen address, e.g. ":3001".
	Addr string

	// Session is the template configuration handed to every new session.
	Session session.Config

	// Metrics instruments the HTTP layer and session lifecycle. Required.
	Metrics *observe.Metrics

	// Probes are the readiness checks exposed on /readyz.
	Probes map[string]health.Probe

	Logger *slog.Logger
}

// Server is the gateway's HTTP front end.
type Server struct {
	cfg  Config
	log  *slog.Logger
	http *http.Server
}

// New builds the server and its route table.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, log: cfg.Logger}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full route table, instrumented. Exposed for tests.
func (s *Server) Handler() http.Handler {
	hh := health.New(s.cfg.Probes)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", hh.Healthz)
	mux.HandleFunc("/readyz", hh.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	return observe.Middleware(s.cfg.Metrics)(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.log.Info("listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// wsSender adapts a WebSocket connection to the session's Sender. Frames are
// JSON text messages.
type wsSender struct {
	conn *websocket.Conn
}

func (w *wsSender) Send(ctx context.Context, msg any) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

var _ session.Sender = (*wsSender)(nil)

// handleWS upgrades the connection and runs one session over it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The browser client is served from a different origin in development.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveSessions.Add(ctx, 1)
		defer s.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	}

	sess := session.New(s.cfg.Session, &wsSender{conn: conn})
	s.log.Info("websocket connected", "session_id", sess.ID(), "remote", r.RemoteAddr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(ctx)
	})
	g.Go(func() error {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				// Normal closure and context cancellation both end the
				// session; only report the unexpected.
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
					websocket.CloseStatus(err) == websocket.StatusGoingAway ||
					ctx.Err() != nil {
					return context.Canceled
				}
				return fmt.Errorf("server: websocket read: %w", err)
			}
			sess.Deliver(ctx, data)
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("session terminated", "session_id", sess.ID(), "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	s.log.Info("websocket closed", "session_id", sess.ID())
}
