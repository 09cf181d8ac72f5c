package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// HealthServer provides the /healthz and /metrics endpoints.
type HealthServer struct {
	addr      string
	client    *blackboard.Client
	scheduler *Scheduler
	logger    *zap.Logger

	server   *http.Server
	listener net.Listener
}

// NewHealthServer creates a health server for s. client may be nil when
// Redis is not used.
func NewHealthServer(addr string, client *blackboard.Client, s *Scheduler, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthServer{addr: addr, client: client, scheduler: s, logger: logger}
}

// Handler returns the server's routes.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start binds the address and serves in the background.
func (h *HealthServer) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	h.server = &http.Server{
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Health server error", zap.Error(err))
		}
	}()

	h.logger.Info("Health server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (h *HealthServer) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible or not configured, 503 Service Unavailable otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status: "healthy",
		Redis:  "disabled",
	}
	if h.scheduler != nil {
		response.Agents = len(h.scheduler.Agents())
		response.Frames = h.scheduler.Frames()
		response.Errors = h.scheduler.Errors()
	}

	status := http.StatusOK
	if h.client != nil {
		// Check Redis connectivity with timeout
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.client.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
	Agents int    `json:"agents"`
	Frames uint64 `json:"frames"`
	Errors uint64 `json:"errors"`
}
