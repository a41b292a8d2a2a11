package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/tablekeeper/internal/adapters/wire"
	"github.com/dkeye/tablekeeper/internal/app"
	"github.com/dkeye/tablekeeper/internal/core"
	"github.com/dkeye/tablekeeper/internal/domain"
)

// Handler answers one decoded request.
type Handler interface {
	Handle(ctx context.Context, req app.Request) app.Response
}

// Server accepts framed connections and serves each on its own goroutine.
// Connections never talk to each other; they only share the store behind Handler.
type Server struct {
	Handler     Handler
	Registry    *app.Registry
	MaxFrame    uint32
	ReadTimeout time.Duration

	wg    conc.WaitGroup
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(h Handler, reg *app.Registry, maxFrame uint32, readTimeout time.Duration) *Server {
	return &Server{
		Handler:     h,
		Registry:    reg,
		MaxFrame:    maxFrame,
		ReadTimeout: readTimeout,
		conns:       make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve blocks until ctx is done or the listener fails, then closes every
// open connection and waits for the handlers to return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	log.Info().Str("module", "adapters.tcp").Str("addr", l.Addr().String()).Msg("socket server listening")

	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var err error
	for {
		conn, aerr := l.Accept()
		if aerr != nil {
			if ctx.Err() == nil && !errors.Is(aerr, net.ErrClosed) {
				err = aerr
			}
			break
		}
		s.track(conn)
		s.wg.Go(func() {
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		})
	}

	s.closeAll()
	if r := s.wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "adapters.tcp").Str("panic", r.String()).Msg("connection handler panicked")
	}
	log.Info().Str("module", "adapters.tcp").Msg("socket server stopped")
	return err
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	sid := core.NewSessionID()
	remote := conn.RemoteAddr().String()
	logger := log.With().Str("module", "adapters.tcp").Str("sid", string(sid)).Str("remote", remote).Logger()
	ctx = logger.WithContext(ctx)

	if s.Registry != nil {
		s.Registry.Open(sid, "tcp", remote)
		defer s.Registry.Close(sid)
	}
	defer conn.Close()

	r := wire.NewReader(conn, s.MaxFrame)
	w := wire.NewWriter(conn)
	for {
		if s.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		var req app.Request
		err := r.Read(&req)
		var resp app.Response
		switch {
		case err == nil:
			if s.Registry != nil {
				s.Registry.Observe(sid, req)
			}
			resp = s.Handler.Handle(ctx, req)
		case errors.Is(err, domain.ErrMalformedRequest):
			logger.Warn().Err(err).Msg("undecodable request")
			resp = app.MalformedResponse(err)
		default:
			logConnEnd(logger, err)
			return
		}
		if err := w.Write(resp); err != nil {
			logConnEnd(logger, err)
			return
		}
	}
}

func logConnEnd(logger zerolog.Logger, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		logger.Info().Msg("connection closed")
		return
	}
	logger.Warn().Err(err).Msg("connection dropped")
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
