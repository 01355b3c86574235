// Package server exposes the inventory service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/saylee206/AWS-API/internal/awsx"
	"github.com/saylee206/AWS-API/internal/config"
	"github.com/saylee206/AWS-API/internal/export"
	"github.com/saylee206/AWS-API/internal/inventory"
)

// Inventory is the slice of the inventory service the HTTP layer uses.
type Inventory interface {
	Instances(ctx context.Context) (*inventory.InstanceList, error)
	HardwareReport(ctx context.Context, instanceID string) (*inventory.HardwareReport, error)
	SoftwareReport(ctx context.Context, instanceID string) *inventory.SoftwareReport
	ExportHardware(ctx context.Context) (*inventory.HardwareExport, error)
	ExportSoftware(ctx context.Context) (*inventory.SoftwareExport, error)
	ExportAll(ctx context.Context) (*inventory.CombinedExport, error)
}

// ExportLister lists export files already on disk.
type ExportLister interface {
	List() ([]export.File, error)
}

// endpoints advertised by the home route.
var endpoints = []string{
	"/instances",
	"/hardware/{instance_id}",
	"/software/{instance_id}",
	"/export_hardware",
	"/export_software",
	"/export_all",
	"/exports",
	"/health",
	"/metrics",
}

// Server serves the connector's HTTP API.
type Server struct {
	cfg       *config.Config
	inv       Inventory
	lister    ExportLister
	exportDir string
	stats     *Stats
	logger    *zap.Logger
	http      *http.Server
}

// New creates the HTTP server. exportDir is the directory whose free
// space the health endpoint reports.
func New(cfg *config.Config, inv Inventory, lister ExportLister, exportDir string, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		inv:       inv,
		lister:    lister,
		exportDir: exportDir,
		stats:     NewStats(),
		logger:    logger,
	}
}

// Handler builds the route table wrapped in the logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /{$}", s.handleHome)
	s.route(mux, "GET /instances", s.handleInstances)
	s.route(mux, "GET /hardware/{instance_id}", s.handleHardware)
	s.route(mux, "GET /software/{instance_id}", s.handleSoftware)
	s.route(mux, "GET /export_hardware", s.handleExportHardware)
	s.route(mux, "GET /export_software", s.handleExportSoftware)
	s.route(mux, "GET /export_all", s.handleExportAll)
	s.route(mux, "GET /exports", s.handleExports)
	s.route(mux, "GET /health", s.handleHealth)
	s.route(mux, "GET /metrics", s.handleMetrics)
	return s.loggingMiddleware(mux)
}

// route registers a handler and counts requests under its pattern.
func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.stats.RecordRoute(pattern)
		handler(w, r)
	})
}

// Start begins serving in the background. A listener failure is reported
// once on the returned channel.
func (s *Server) Start() <-chan error {
	s.http = &http.Server{
		Addr:           s.cfg.ListenAddr,
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 16, // 64KB max header size
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.stats.RecordStatus(rec.status)
		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Could not encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":   "AWS Asset Inventory Connector",
		"endpoints": endpoints,
	})
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	list, err := s.inv.Instances(r.Context())
	if err != nil {
		s.logger.Error("Could not list instances", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	instanceID := r.PathValue("instance_id")
	report, err := s.inv.HardwareReport(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, awsx.ErrInstanceNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("Instance %s not found", instanceID))
			return
		}
		s.logger.Error("Could not build hardware report",
			zap.String("instance_id", instanceID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleSoftware always answers 200: lookup problems are carried in the
// report status, not the HTTP status.
func (s *Server) handleSoftware(w http.ResponseWriter, r *http.Request) {
	report := s.inv.SoftwareReport(r.Context(), r.PathValue("instance_id"))
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExportHardware(w http.ResponseWriter, r *http.Request) {
	result, err := s.inv.ExportHardware(r.Context())
	if err != nil {
		s.logger.Error("Hardware export failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportSoftware(w http.ResponseWriter, r *http.Request) {
	result, err := s.inv.ExportSoftware(r.Context())
	if err != nil {
		s.logger.Error("Software export failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.inv.ExportAll(r.Context())
	if err != nil {
		s.logger.Error("Combined export failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	files, err := s.lister.List()
	if err != nil {
		s.logger.Error("Could not list export files", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"exports": files,
		"count":   len(files),
	})
}
