package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/usgs/vdx/internal/dispatch"
	"github.com/usgs/vdx/internal/observability"
	"github.com/usgs/vdx/internal/source"
	"golang.org/x/sync/errgroup"
)

// Server accepts VDX connections and hands each one to its own session.
type Server struct {
	cfg        Config
	registry   *source.Registry
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
	started    time.Time

	nextID atomic.Uint64
	ready  atomic.Bool

	mu    sync.Mutex
	conns map[uint64]net.Conn
	wg    sync.WaitGroup

	router *gin.Engine
}

func New(cfg Config, registry *source.Registry, dispatcher *dispatch.Dispatcher) *Server {
	s := &Server{
		cfg:        cfg.WithDefaults(),
		registry:   registry,
		dispatcher: dispatcher,
		logger:     observability.Component("server"),
		started:    time.Now(),
		conns:      make(map[uint64]net.Conn),
	}
	s.router = s.newRouter()
	return s
}

// Router exposes the admin HTTP handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Ready reports whether the protocol listener is accepting.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Run listens on the configured addresses and blocks until ctx is done or
// a listener fails. Every constructed source is disconnected on return.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(s.cfg.Addr))
	if err != nil {
		return err
	}
	defer s.disconnectSources()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		admin := &http.Server{
			Addr:              addr,
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info().Str("addr", addr).Msg("admin listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// Serve runs the accept loop on ln until ctx is done. On return no session
// is left running.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.logger.Info().Str("addr", ln.Addr().String()).Int("sources", s.registry.Len()).Msg("listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.ready.Store(true)
	defer s.ready.Store(false)
	defer s.drain()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn().Err(err).Msg("accept timeout")
				continue
			}
			return err
		}
		id := s.nextID.Add(1)
		s.track(id, conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(id)
			newSession(id, conn, s.cfg, s.dispatcher, s.logger).run(ctx)
		}()
	}
}

func (s *Server) track(id uint64, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = conn
}

func (s *Server) untrack(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// ActiveSessions returns the number of open sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// drain wakes idle sessions by expiring their reads, lets in-flight commands
// finish, and force-closes whatever is left after ShutdownTimeout.
func (s *Server) drain() {
	s.mu.Lock()
	for _, conn := range s.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(s.cfg.ShutdownTimeout):
	}

	s.mu.Lock()
	remaining := len(s.conns)
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.logger.Warn().Int("sessions", remaining).Msg("shutdown timeout, closed remaining sessions")
	<-done
}

func (s *Server) disconnectSources() {
	if err := s.registry.DisconnectAll(); err != nil {
		s.logger.Warn().Err(err).Msg("source disconnect failed")
		return
	}
	s.logger.Info().Msg("sources disconnected")
}
