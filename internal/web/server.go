package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jaminalder/hotseat-tictactoe/internal/app"
)

const defaultHeartbeat = 15 * time.Second

type options struct {
	log       zerolog.Logger
	heartbeat time.Duration
}

// Option configures the HTTP layer.
type Option func(*options)

// WithLogger sets the request and handler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.heartbeat = d
		}
	}
}

// NewServer wires routes and returns an http.Handler. It also installs the
// board renderer on s so subscribers receive ready-to-swap fragments.
func NewServer(s *app.Service, opts ...Option) http.Handler {
	o := options{log: zerolog.Nop(), heartbeat: defaultHeartbeat}
	for _, opt := range opts {
		opt(&o)
	}
	h := &handlers{svc: s, tpl: loadTemplates(), log: o.log, heartbeat: o.heartbeat}
	s.SetRenderer(func(gs app.GameState) []byte { return h.renderBoard(gs, "") })

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(o.log))
	r.Use(middleware.Recoverer)

	r.Get("/", h.index)
	r.Get("/health", h.health)
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/play", h.play)
		r.Post("/reset", h.reset)
		r.Get("/events", h.events)
	})
	r.Route("/api/games", func(r chi.Router) {
		r.Post("/", h.apiCreate)
		r.Get("/{id}", h.state)
		r.Post("/{id}/play", h.apiPlay)
		r.Post("/{id}/reset", h.apiReset)
	})
	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Server runs the HTTP handler and evicts idle games in the background.
type Server struct {
	srv     *http.Server
	svc     *app.Service
	log     zerolog.Logger
	gameTTL time.Duration
}

// New builds a Server listening on addr. A zero gameTTL disables eviction.
func New(addr string, svc *app.Service, gameTTL time.Duration, opts ...Option) *Server {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewServer(svc, opts...),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		svc:     svc,
		log:     o.log,
		gameTTL: gameTTL,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.gameTTL > 0 {
		go s.sweep(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("starting HTTP server")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down HTTP server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	interval := s.gameTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.svc.Sweep(s.gameTTL)
		}
	}
}
