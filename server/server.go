// Package server exposes graph sessions over HTTP: create a graph for a
// root resource, expand and collapse its nodes, pin nodes, tune forces,
// stream changes and export SVG.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TFMV/ontograph/config"
	"github.com/TFMV/ontograph/explore"
	"github.com/TFMV/ontograph/export"
	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/metrics"
	"github.com/TFMV/ontograph/physics"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

// sweepInterval is how often idle sessions are collected.
const sweepInterval = time.Minute

// Server owns the graph sessions and their HTTP surface.
type Server struct {
	cfg      *config.Config
	service  explore.ResourceService
	sessions *Store
	exporter *export.Exporter
	metrics  *metrics.Collector
	logger   *zap.Logger
	validate *validator.Validate

	mu        sync.RWMutex
	theme     string
	threshold int
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records HTTP, expansion and simulation metrics and serves them
// when metrics are enabled in the configuration.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server answering graph requests from service.
func New(cfg *config.Config, service explore.ResourceService, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, apperrors.NewValidation("a resource service is required")
	}
	css, err := cfg.CSS()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		service:   service,
		logger:    zap.NewNop(),
		validate:  validator.New(),
		theme:     css,
		threshold: cfg.Graph.Threshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exporter, err = export.New(css, s.logger); err != nil {
		return nil, err
	}
	s.sessions = NewStore(cfg.Server.MaxSessions, cfg.Server.SessionTTL, func(sess *Session) {
		if s.metrics != nil {
			s.metrics.GraphClosed()
		}
		s.logger.Info("graph closed", zap.String("graph_id", sess.ID))
	})
	return s, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.logger, s.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/export", s.handleExportDocument)

		r.Route("/graphs", func(r chi.Router) {
			r.Get("/", s.handleListGraphs)
			r.Post("/", s.handleCreateGraph)

			r.Route("/{graphID}", func(r chi.Router) {
				r.Get("/", s.handleGetGraph)
				r.Delete("/", s.handleDeleteGraph)
				r.Put("/forces", s.handleSetForces)
				r.Get("/svg", s.handleSVG)
				r.Get("/render", s.handleRender)
				r.Get("/export", s.handleExportGraph)
				r.Get("/events", s.handleEvents)

				r.Route("/nodes/{nodeID}", func(r chi.Router) {
					r.Post("/expand", s.handleExpand)
					r.Post("/collapse", s.handleCollapse)
					r.Post("/toggle", s.handleToggle)
					r.Put("/pin", s.handlePin)
					r.Delete("/pin", s.handleUnpin)
				})
			})
		})
	})

	return r
}

// Start serves until ctx is done, then shuts down gracefully and closes all
// sessions.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go s.sweep(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.sessions.CloseAll()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down server")
	err := srv.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops every session.
func (s *Server) Close() {
	s.sessions.CloseAll()
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.Sweep(now); n > 0 {
				s.logger.Info("idle graphs closed", zap.Int("count", n))
			}
		}
	}
}

// ApplyConfig takes over the hot-reloadable settings: theme and expansion
// threshold. The threshold also applies to open graphs.
func (s *Server) ApplyConfig(cfg *config.Config) {
	css, err := cfg.CSS()
	if err == nil {
		err = s.exporter.SetStylesheet(css)
	}
	if err != nil {
		s.logger.Error("keeping previous theme", zap.Error(err))
	} else {
		s.mu.Lock()
		s.theme = css
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.threshold = cfg.Graph.Threshold
	s.mu.Unlock()
	for _, sess := range s.sessions.List() {
		if sess.Kind == explore.KindData {
			sess.Explorer.SetThreshold(cfg.Graph.Threshold)
		}
	}
}

func (s *Server) currentTheme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *Server) currentThreshold() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// createSession builds and populates a graph, then starts its simulation.
func (s *Server) createSession(ctx context.Context, req *CreateGraphRequest) (*Session, error) {
	kind, err := explore.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	width, height := req.Width, req.Height
	if width <= 0 {
		width = s.cfg.Graph.Width
	}
	if height <= 0 {
		height = s.cfg.Graph.Height
	}

	sim := physics.NewSimulation(
		physics.WithInterval(s.cfg.Graph.TickInterval),
		physics.WithVelocityDecay(s.cfg.Graph.VelocityDecay),
	)
	if s.metrics != nil {
		sim.OnTick(s.metrics.Tick)
	}
	g := graph.New(sim, s.cfg.Graph.Forces, s.logger)
	g.InitSimulation(graph.SimulationOptions{Width: width, Height: height})

	opts := explore.Options{
		Threshold:    s.currentThreshold(),
		HideLiterals: s.cfg.Graph.HideLiterals,
		Concurrency:  s.cfg.Graph.Concurrency,
		Logger:       s.logger,
	}
	if s.metrics != nil {
		opts.Observer = s.metrics
	}
	exp, err := explore.New(kind, g, s.service, opts)
	if err != nil {
		return nil, err
	}
	root, err := exp.Populate(ctx, req.Root)
	if err != nil {
		return nil, err
	}
	if req.Depth > 1 && root != nil && g.Dynamic() {
		if err := exp.ExpandDepth(ctx, root, req.Depth); err != nil {
			return nil, err
		}
	}
	if req.Settle > 0 {
		g.Settle(req.Settle)
	}

	sess := newSession(uuid.NewString(), exp)
	if err := s.sessions.Add(sess); err != nil {
		return nil, err
	}
	sess.start(g.Run, func(err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("simulation stopped", zap.String("graph_id", sess.ID), zap.Error(err))
		}
	})
	if s.metrics != nil {
		s.metrics.GraphOpened()
	}
	nodes, links := g.Len()
	s.logger.Info("graph created",
		zap.String("graph_id", sess.ID),
		zap.String("kind", string(kind)),
		zap.String("root", req.Root.String()),
		zap.Int("nodes", nodes),
		zap.Int("links", links))
	return sess, nil
}
