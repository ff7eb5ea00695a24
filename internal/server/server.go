// Package server exposes the activator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"activator/internal/metrics"
	"activator/internal/models"
)

const statusViewLogLines = 5

// Activator is the set of operations the HTTP surface needs.
type Activator interface {
	AllStatuses() map[models.TargetKey]models.Status
	CurrentDownServices() []models.TargetKey
	RestartLogs() []string
	NextScheduledRestart() time.Time
	RefreshServiceStatuses(ctx context.Context)
	UpdateServiceStatus(ctx context.Context, app, env, server, service string) (models.Status, bool)
	TriggerManual() string
}

// Server wraps HTTP serving of the activator API.
type Server struct {
	httpServer *http.Server
	activator  Activator
	log        *zap.SugaredLogger
	logPush    time.Duration
}

// New creates a configured HTTP server.
func New(addr string, activator Activator, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		activator:  activator,
		log:        log,
		logPush:    logPushInterval,
	}
	s.registerRoutes(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/statuses", s.handleStatuses)
	mux.HandleFunc("GET /api/statuses/summary", s.handleSummary)
	mux.HandleFunc("POST /api/statuses/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/statuses/{app}/{env}/{server}/{service}/refresh", s.handleRefreshOne)
	mux.HandleFunc("GET /api/activator/down-services", s.handleDownServices)
	mux.HandleFunc("GET /api/activator/logs", s.handleLogs)
	mux.HandleFunc("GET /api/activator/logs/ws", s.handleLogsWS)
	mux.HandleFunc("GET /api/activator/next-schedule", s.handleNextSchedule)
	mux.HandleFunc("GET /api/activator/status", s.handleStatus)
	mux.HandleFunc("POST /api/activator/trigger-manual", s.handleTrigger)
}

func (s *Server) handleStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.activator.AllStatuses())
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Summarize(s.activator.AllStatuses()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.activator.RefreshServiceStatuses(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "Service statuses refreshed"})
}

func (s *Server) handleRefreshOne(w http.ResponseWriter, r *http.Request) {
	app, env := r.PathValue("app"), r.PathValue("env")
	srv, svc := r.PathValue("server"), r.PathValue("service")
	status, ok := s.activator.UpdateServiceStatus(r.Context(), app, env, srv, svc)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown target " + string(models.MakeKey(app, env, srv, svc)),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"key":    string(models.MakeKey(app, env, srv, svc)),
		"status": string(status),
	})
}

func (s *Server) handleDownServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.activator.CurrentDownServices()))
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.activator.RestartLogs()))
}

func (s *Server) handleNextSchedule(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]time.Time{"next_scheduled_restart": s.activator.NextScheduledRestart()})
}

type statusView struct {
	DownServicesCount int                `json:"down_services_count"`
	DownServices      []models.TargetKey `json:"down_services"`
	NextScheduled     time.Time          `json:"next_scheduled_restart"`
	RecentLogs        []string           `json:"recent_logs"`
	TotalLogs         int                `json:"total_logs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	down := nonNil(s.activator.CurrentDownServices())
	logs := nonNil(s.activator.RestartLogs())
	recent := logs
	if len(recent) > statusViewLogLines {
		recent = recent[len(recent)-statusViewLogLines:]
	}
	writeJSON(w, http.StatusOK, statusView{
		DownServicesCount: len(down),
		DownServices:      down,
		NextScheduled:     s.activator.NextScheduledRestart(),
		RecentLogs:        recent,
		TotalLogs:         len(logs),
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": s.activator.TriggerManual()})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := strings.ToLower(strings.TrimSpace(r.Host))
	origin = strings.ToLower(strings.TrimSpace(origin))
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	return host == origin
}
