package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/davidespo/rules-engine/internal/core/api"
	"github.com/davidespo/rules-engine/internal/core/config"
	"github.com/davidespo/rules-engine/internal/core/metrics"
	"github.com/davidespo/rules-engine/internal/logging"
	"github.com/davidespo/rules-engine/internal/types"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = types.MaxRuleDocumentSize

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPServer serves the JSON API, health check and Prometheus metrics.
type HTTPServer struct {
	router  *chi.Mux
	server  *http.Server
	svc     *api.Service
	metrics *metrics.EvaluationMetrics
	config  *config.ServiceConfig
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServer builds the router. m may be nil, in which case /metrics is not served.
func NewHTTPServer(cfg *config.ServiceConfig, svc *api.Service, m *metrics.EvaluationMetrics, logger *zap.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, errors.New("cfg cannot be nil")
	}
	if svc == nil {
		return nil, errors.New("service cannot be nil")
	}
	logger = logging.OrNop(logger)

	s := &HTTPServer{
		router:  chi.NewRouter(),
		svc:     svc,
		metrics: m,
		config:  cfg,
		logger:  logger,
	}
	s.configureRoutes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

// configureRoutes registers the middleware stack and endpoints.
func (s *HTTPServer) configureRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		if s.config.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.config.RequestTimeout))
		}

		r.Get("/rules", s.handleListRules)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/rules/{ruleID}/insight", s.handleInsight)
	})
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler { return s.router }

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{
		"status": "ok",
		"rules":  s.svc.RuleSet().Len(),
	})
}

func (s *HTTPServer) handleListRules(w http.ResponseWriter, r *http.Request) {
	rs, err := s.svc.ListRules(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	render.JSON(w, r, api.RulesPayload(rs))
}

// handleEvaluate processes POST /api/v1/evaluate with body {"records": [...]}.
func (s *HTTPServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	raw, ok := body["records"]
	if !ok {
		s.renderError(w, r, fmt.Errorf("%w: records required", api.ErrInvalidRequest))
		return
	}
	records, err := api.DecodeRecords(raw)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	matches, err := s.svc.Evaluate(r.Context(), metrics.SurfaceHTTP, records)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	render.JSON(w, r, api.MatchesPayload(matches))
}

// handleInsight processes POST /api/v1/rules/{ruleID}/insight with body {"record": {...}}.
func (s *HTTPServer) handleInsight(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	body, err := decodeBody(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	record, err := api.DecodeRecord(body["record"])
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	insight, found, err := s.svc.Insight(r.Context(), ruleID, record)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if !found {
		s.renderError(w, r, fmt.Errorf("%w: %s", types.ErrRuleNotFound, ruleID))
		return
	}
	render.JSON(w, r, api.InsightPayload(insight, true))
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBody), &body); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON payload: %v", api.ErrInvalidRequest, err)
	}
	return body, nil
}

func (s *HTTPServer) renderError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := api.HTTPStatus(err)
	if statusCode >= http.StatusInternalServerError {
		s.logger.Error("http request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{
		Code:    api.Code(err).String(),
		Message: err.Error(),
	})
}

// requestLogger logs method, path, status and latency with zap.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start binds the configured address and serves HTTP until Shutdown.
func (s *HTTPServer) Start() error {
	addr := s.config.HTTPAddr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves HTTP on an existing listener. After Shutdown it closes
// listener and returns nil at once.
func (s *HTTPServer) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or nil before Start/Serve.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully stops the server within ctx. A later Serve returns
// immediately.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
