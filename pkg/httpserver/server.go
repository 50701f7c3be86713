// Package httpserver runs an http.Handler until the context ends or the
// process receives SIGINT or SIGTERM, then drains in-flight work.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kathanp/emailbot/pkg/logger"
)

// DrainFunc finishes background work after the listener has stopped.
type DrainFunc func(ctx context.Context) error

type config struct {
	addr     string
	timeouts Timeouts
	server   *http.Server
	logger   *slog.Logger
	drains   []namedDrain
}

type namedDrain struct {
	name string
	fn   DrainFunc
}

func defaultConfig() *config {
	return &config{
		addr:     ":8080",
		timeouts: Timeouts{Shutdown: 5 * time.Second},
	}
}

type Server struct {
	cfg  *config
	once sync.Once

	mu  sync.Mutex
	srv *http.Server
}

func New(opts ...Option) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Discard()
	}
	return &Server{cfg: cfg}
}

// Run serves handler and blocks until shutdown completes.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, errors.New("server already running"))
	}
	srv := s.cfg.server
	if srv == nil {
		srv = &http.Server{}
	}
	if srv.Addr == "" {
		srv.Addr = s.cfg.addr
	}
	t := Timeouts{Read: srv.ReadTimeout, Write: srv.WriteTimeout, Idle: srv.IdleTimeout}.over(s.cfg.timeouts)
	srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout = t.Read, t.Write, t.Idle
	srv.Handler = handler
	srv.ErrorLog = slog.NewLogLogger(s.cfg.logger.Handler(), slog.LevelWarn)
	s.srv = srv
	s.mu.Unlock()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.cfg.logger.Info("http server started", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	var runErr error
	select {
	case <-ctx.Done():
		s.cfg.logger.Info("shutting down http server")
		runErr = s.Shutdown(context.WithoutCancel(ctx))
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			runErr = errors.Join(runErr, ErrStart, serveErr)
		}
	case serveErr := <-errCh:
		if !errors.Is(serveErr, http.ErrServerClosed) {
			return errors.Join(ErrStart, serveErr)
		}
	}
	return runErr
}

// Shutdown stops accepting requests, waits for in-flight ones, then runs the
// drain functions in registration order. The whole sequence shares one
// shutdown timeout. Repeated calls are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()
		if srv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, s.cfg.timeouts.Shutdown)
		defer cancel()

		if serr := srv.Shutdown(ctx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			err = errors.Join(ErrShutdown, serr)
		}
		for _, d := range s.cfg.drains {
			if derr := d.fn(ctx); derr != nil {
				s.cfg.logger.Error("drain failed", slog.String("drain", d.name), logger.Error(derr))
				err = errors.Join(err, ErrShutdown, derr)
			}
		}
		s.cfg.logger.Info("http server stopped")
	})
	return err
}
