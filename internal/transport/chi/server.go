package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/docstore/internal/logger"
	"github.com/kailas-cloud/docstore/internal/metrics"
	gen "github.com/kailas-cloud/docstore/internal/transport/generated"
	healthuc "github.com/kailas-cloud/docstore/internal/usecase/health"
)

// Server implements generated.ServerInterface and also serves /metrics.
type Server struct {
	health  *healthuc.Service
	apiKeys []string
	logger  *zap.Logger
}

var _ gen.ServerInterface = (*Server)(nil)

// NewServer creates the ops HTTP server. apiKeys guard /metrics; empty disables auth.
func NewServer(health *healthuc.Service, apiKeys []string, logger *zap.Logger) *Server {
	return &Server{health: health, apiKeys: apiKeys, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(middleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(s.apiKeys))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, gen.ErrorResponseCodeNotFound, "route not found")
	})
	gen.HandlerWithOptions(s, gen.ChiServerOptions{
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, _ *http.Request, err error) {
			writeError(w, http.StatusBadRequest, gen.ErrorResponseCodeBadRequest, err.Error())
		},
	})
	return r
}

// HealthCheck handles GET /api/health. Degraded still answers 200 because
// reads fall through to the datastore. verbose=false drops the checks.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request, params gen.HealthCheckParams) {
	report := s.health.Check(r.Context())
	log := logpkg.FromContext(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		log.Warn("health check failed", zap.Any("checks", checks))
		httpStatus = http.StatusServiceUnavailable
	}
	resp := gen.HealthResponse{Status: gen.HealthResponseStatus(report.Status)}
	if params.Verbose == nil || *params.Verbose {
		resp.Checks = &checks
	}
	writeJSON(w, httpStatus, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code gen.ErrorResponseCode, message string) {
	writeJSON(w, status, gen.ErrorResponse{Code: code, Message: message})
}
