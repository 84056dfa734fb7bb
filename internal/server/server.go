package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/middleware"
	"media-catalog/internal/registry"
)

// Server serves the status API and the metrics endpoint.
type Server struct {
	store    catalog.Store
	registry *registry.Registry
	systemID string
	version  string

	addr        string
	metricsAddr string
}

// New creates a server. metricsAddr may be empty to disable the separate
// metrics listener.
func New(store catalog.Store, reg *registry.Registry, systemID, version, addr, metricsAddr string) *Server {
	return &Server{
		store:       store,
		registry:    reg,
		systemID:    systemID,
		version:     version,
		addr:        addr,
		metricsAddr: metricsAddr,
	}
}

// Router builds the API route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/resolve/{device}/{path:.*}", s.handleResolve).Methods(http.MethodGet)

	return r
}

// Run serves until the context is canceled, then shuts both listeners down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	apiServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if s.metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              s.metricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	errChan := make(chan error, 2)
	go func() {
		logging.Info("HTTP server listening on %s", s.addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	if metricsServer != nil {
		go func() {
			logging.Info("Metrics server listening on %s", s.metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
