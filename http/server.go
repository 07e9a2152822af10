// Package http exposes the prediction service, the history store and the
// report generator as a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cancersense/db"
	"cancersense/ml"
	"cancersense/monitoring"
	"cancersense/report"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// PredictionService is the part of ml.Predictor used by the handlers.
type PredictionService interface {
	Predict(m ml.Measurements) (ml.Prediction, error)
	Radar(m ml.Measurements) (ml.RadarChart, error)
	FeatureSpecs() []ml.FeatureSpec
	ModelName() string
	Reference() (ml.Prediction, bool)
}

// UserResolver maps a session username to its account id.
type UserResolver interface {
	ResolveUserID(ctx context.Context, username string) (int64, bool, error)
}

// Store is the part of db.Store used by the handlers.
type Store interface {
	UserResolver
	Ping(ctx context.Context) error
	Register(ctx context.Context, username, email, password string) error
	Authenticate(ctx context.Context, username, password string) (*db.User, error)
	SavePrediction(ctx context.Context, userID int64, prediction ml.Prediction, measurements ml.Measurements, note string) (*db.HistoryRecord, error)
	History(ctx context.Context, userID int64) ([]db.HistoryRecord, error)
	HistoryBetween(ctx context.Context, userID int64, from, to time.Time) ([]db.HistoryRecord, error)
	HistoryRecord(ctx context.Context, userID, id int64) (*db.HistoryRecord, error)
	TrainingLog(ctx context.Context) ([]db.TrainingEntry, error)
}

// API holds the handler dependencies.
type API struct {
	predictor PredictionService
	store     Store
	sessions  *SessionManager
	renderer  *report.Renderer
	metrics   *monitoring.ServiceMetrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewAPI(predictor PredictionService, store Store, sessions *SessionManager, renderer *report.Renderer, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := monitoring.NewServiceMetrics()
	metrics.SetModel(predictor.ModelName())
	return &API{
		predictor: predictor,
		store:     store,
		sessions:  sessions,
		renderer:  renderer,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Routes returns the API router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(a.metrics))
	r.Use(chimiddleware.Compress(5, "application/json"))

	r.Get("/api/health", a.handleHealth)
	r.Get("/api/metrics", a.handleMetrics)
	r.Get("/api/features", a.handleFeatures)
	r.Get("/api/model", a.handleModel)

	r.Group(func(r chi.Router) {
		r.Use(RequestSizeMiddleware(maxBodySize))
		r.Post("/api/auth/register", a.handleRegister)
		r.Post("/api/auth/login", a.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(a.sessions, a.store, a.logger))
		r.Use(RequestSizeMiddleware(maxBodySize))

		r.Post("/api/predict", a.handlePredict)
		r.Get("/api/dashboard", a.handleDashboard)
		r.Get("/api/report", a.handleBatchReport)

		r.Route("/api/history", func(r chi.Router) {
			r.Get("/", a.handleHistory)
			r.Post("/", a.handleSavePrediction)
			r.Get("/export", a.handleExport)
			r.Get("/{id}/report", a.handleSingleReport)
		})
	})
	return r
}

// Server wraps http.Server with the middleware chain.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

func NewServer(config ServerConfig, api *API, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
	)

	writeTimeout := config.Timeout
	if writeTimeout > 0 {
		// leave room for the timeout response itself
		writeTimeout += 5 * time.Second
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           chain(api.Routes()),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.Timeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
