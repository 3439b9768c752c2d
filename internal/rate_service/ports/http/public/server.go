package public

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/langowen/metalrates/deploy/config"
	"github.com/langowen/metalrates/internal/entities"
	mwLogger "github.com/langowen/metalrates/internal/rate_service/ports/http/public/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Server  *http.Server
	cfg     *config.Config
	service Service
}

func NewServer(server *http.Server, cfg *config.Config, service Service) *Server {
	return &Server{
		Server:  server,
		cfg:     cfg,
		service: service,
	}
}

// RatesResponse is the envelope the client rate store consumes.
type RatesResponse struct {
	Success  bool                   `json:"success"`
	Data     *entities.RateSnapshot `json:"data,omitempty"`
	Cached   bool                   `json:"cached,omitempty"`
	Fallback bool                   `json:"fallback,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func NewRouter(service Service) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mwLogger.New())
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", Healthz)
	r.Get("/rates", GetRates(service))

	return r
}

func StartServer(ctx context.Context, service Service, cfg *config.Config) <-chan struct{} {
	r := NewRouter(service)

	serverConfig := &http.Server{
		Addr:         ":" + cfg.HTTPServer.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	server := NewServer(serverConfig, cfg, service)

	doneChan := make(chan struct{})

	go func() {
		if err := server.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to stop server", "error", err)
		}

		close(doneChan)
	}()

	return doneChan
}

// GetRates serves the current snapshot. Fallback data still counts as a
// success; only the total absence of data is a server error.
func GetRates(service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		result, err := service.GetRates(ctx)
		if err != nil {
			slog.Error("Failed to serve rates", "error", err)
			RespondWithJSON(w, http.StatusInternalServerError, RatesResponse{
				Success: false,
				Error:   "Unable to fetch rates",
			})
			return
		}

		RespondWithJSON(w, http.StatusOK, RatesResponse{
			Success:  true,
			Data:     result.Snapshot,
			Cached:   result.Cached,
			Fallback: result.Fallback,
		})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func RespondWithJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
