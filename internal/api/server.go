package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/alerter"
	"github.com/sentryhome/sentryhome/internal/ingest"
	"github.com/sentryhome/sentryhome/internal/types"
	"github.com/sentryhome/sentryhome/internal/version"
	"github.com/sentryhome/sentryhome/internal/webui"
	"github.com/sentryhome/sentryhome/internal/websocket"
)

const (
	maxBodyBytes   = 64 << 10
	publishTimeout = time.Second
)

// LevelController reads and switches the security level.
type LevelController interface {
	Current() types.SecurityLevel
	SetLevel(level types.SecurityLevel) (bool, error)
}

// Options encapsulates the dependencies of a Server. Hub, Storm, LogBuffer
// and Gatherer are optional.
type Options struct {
	Engine    *alerter.Engine
	Levels    LevelController
	Storm     *alerter.StormDetector
	Hub       *websocket.Hub
	LogBuffer *webui.LogBuffer
	Gatherer  prometheus.Gatherer
	Logger    zerolog.Logger
	Port      int
}

// Server provides the HTTP API for display clients and producers
type Server struct {
	engine     *alerter.Engine
	levels     LevelController
	storm      *alerter.StormDetector
	hub        *websocket.Hub
	logBuffer  *webui.LogBuffer
	logger     zerolog.Logger
	router     *mux.Router
	httpServer *http.Server
	startTime  time.Time
	now        func() time.Time
}

// NewServer creates a new API server and registers its routes
func NewServer(opts Options) *Server {
	s := &Server{
		engine:    opts.Engine,
		levels:    opts.Levels,
		storm:     opts.Storm,
		hub:       opts.Hub,
		logBuffer: opts.LogBuffer,
		logger:    opts.Logger.With().Str("component", "api").Logger(),
		router:    mux.NewRouter(),
		startTime: time.Now(),
		now:       time.Now,
	}
	s.routes(opts.Gatherer)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.router.Use(Recovery(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	}
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Full paths on the root router, so a wrong method gets 405.
	s.apiRoute("/api/alerts", s.handleAlerts, http.MethodGet)
	s.apiRoute("/api/alerts/{signature}/ack", s.handleAcknowledge, http.MethodPost)
	s.apiRoute("/api/alarms", s.handleSubmitAlarm, http.MethodPost)
	s.apiRoute("/api/security-level", s.handleGetSecurityLevel, http.MethodGet)
	s.apiRoute("/api/security-level", s.handleSetSecurityLevel, http.MethodPut)
	s.apiRoute("/api/logs", s.handleLogsAPI, http.MethodGet)
}

// apiRoute registers a request-logged handler.
func (s *Server) apiRoute(path string, h http.HandlerFunc, method string) {
	s.router.Handle(path, RequestLogger(s.logger)(h)).Methods(method)
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// handleHealth returns service health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns current state summary
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	alerts := s.engine.ActiveAlerts()

	var top *types.Summary
	if alert := alerter.SelectTopAlert(alerter.Unacknowledged(alerts)); alert != nil {
		summary := alert.Summary()
		top = &summary
	}

	status := map[string]interface{}{
		"active_alerts":  len(alerts),
		"top_alert":      top,
		"security_level": s.levels.Current(),
		"alarm_storm":    s.storm.InStorm(),
		"time":           s.now().UTC().Format(time.RFC3339),
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
		"build":          version.Get(),
	}
	if s.hub != nil {
		status["ws_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleAlerts returns active alerts in display order
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	summaries := summarize(s.engine.ActiveAlerts())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": summaries,
		"count":  len(summaries),
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	signature := mux.Vars(r)["signature"]
	if !s.engine.Acknowledge(signature) {
		writeError(w, http.StatusNotFound, "no alert with signature "+signature)
		return
	}

	alert, ok := s.engine.Get(signature)
	if !ok {
		// swept between the two calls
		writeJSON(w, http.StatusOK, map[string]string{"signature": signature})
		return
	}
	summary := alert.Summary()
	s.publish(r.Context(), websocket.TypeAlertAcknowledged, summary)
	writeJSON(w, http.StatusOK, summary)
}

// handleSubmitAlarm accepts an alarm from a producer without an MQTT
// connection.
func (s *Server) handleSubmitAlarm(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alarm, err := ingest.DecodeAlarm(body, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert, isNew, err := s.engine.AddAlarm(alarm)
	switch {
	case errors.Is(err, alerter.ErrRejectedAlarm):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case alert == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    "filtered",
			"signature": alarm.Signature(),
		})
	case isNew:
		writeJSON(w, http.StatusCreated, alert.Summary())
	default:
		writeJSON(w, http.StatusOK, alert.Summary())
	}
}

func (s *Server) handleGetSecurityLevel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"level": s.levels.Current()})
}

func (s *Server) handleSetSecurityLevel(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, err := ingest.DecodeSecurityLevel(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changed, err := s.levels.SetLevel(level)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"level":   level,
		"changed": changed,
	})
}

// handleLogsAPI returns recent log entries as JSON
func (s *Server) handleLogsAPI(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := []webui.LogEntry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.GetRecentEntries(limit, r.URL.Query().Get("level"))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(s.hub, w, r, s.logger, func() *websocket.Message {
		return &websocket.Message{
			Type:    websocket.TypeAlertsSnapshot,
			Payload: summarize(s.engine.ActiveAlerts()),
		}
	})
}

func (s *Server) publish(ctx context.Context, msgType string, payload interface{}) {
	if s.hub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.hub.Publish(ctx, msgType, payload); err != nil {
		s.logger.Debug().Err(err).Str("type", msgType).Msg("WebSocket publish skipped")
	}
}

func summarize(alerts []*types.Alert) []types.Summary {
	summaries := make([]types.Summary, len(alerts))
	for i, alert := range alerts {
		summaries[i] = alert.Summary()
	}
	return summaries
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
