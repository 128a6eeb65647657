package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityfood/discovery-engine/internal/cooldown"
	"github.com/communityfood/discovery-engine/internal/discovery"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP discovery API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initDiscovery(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Runner, env.Cooldown, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type runner interface {
	Run(ctx context.Context, req discovery.RunRequest) (*discovery.RunReport, error)
}

type eligibilityChecker interface {
	CheckEligibility(ctx context.Context, locationHash string) (cooldown.Eligibility, error)
}

// newRouter mounts the discovery API. Discovery runs synchronously within
// the request.
func newRouter(rn runner, checker eligibilityChecker, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/eligibility", func(w http.ResponseWriter, r *http.Request) {
		area, err := parseArea(r.URL.Query().Get("city"), r.URL.Query().Get("state"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		elig, err := checker.CheckEligibility(r.Context(), area.LocationHash())
		if err != nil {
			zap.L().Error("eligibility check failed", zap.String("area", area.String()), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "eligibility check failed")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			LocationHash string `json:"location_hash"`
			cooldown.Eligibility
		}{area.LocationHash(), elig})
	})

	r.Post("/discover", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			City   string `json:"city"`
			State  string `json:"state"`
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		area, err := parseArea(req.City, req.State)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		runReq := discovery.RunRequest{Area: area}
		if req.UserID != "" {
			runReq.UserID = &req.UserID
		}

		report, err := rn.Run(r.Context(), runReq)
		if err != nil {
			status, msg := discoverErrorStatus(err)
			zap.L().Error("discovery failed", zap.String("area", area.String()), zap.Error(err))
			writeError(w, status, msg)
			return
		}
		if report.Blocked {
			writeJSON(w, http.StatusConflict, report)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

// discoverErrorStatus maps a run failure to an HTTP status and a message
// safe to return to clients.
func discoverErrorStatus(err error) (int, string) {
	var ce *discovery.ConfigError
	var pe *discovery.ProviderError
	switch {
	case errors.As(err, &ce):
		return http.StatusServiceUnavailable, ce.Error()
	case errors.As(err, &pe):
		return http.StatusBadGateway, fmt.Sprintf("search provider %s unavailable", pe.Provider)
	default:
		return http.StatusInternalServerError, "discovery failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
