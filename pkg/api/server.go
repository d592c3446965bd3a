package api

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamhub/pkg/addon"
	"streamhub/pkg/auth"
	"streamhub/pkg/config"
	"streamhub/pkg/engine"
	"streamhub/pkg/logger"
)

// Server exposes the engine to the UI over HTTP and WebSocket
type Server struct {
	config   *config.Config
	configMu sync.Mutex
	engine   *engine.Engine
	gatherer prometheus.Gatherer

	// WebSocket Client Registry
	clients   map[*Client]bool
	clientsMu sync.Mutex
	logCh     chan string
}

// NewServer creates a new API server. gatherer backs /metrics; nil uses the
// default registry.
func NewServer(cfg *config.Config, eng *engine.Engine, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		config:   cfg,
		engine:   eng,
		gatherer: gatherer,
		clients:  make(map[*Client]bool),
		logCh:    make(chan string, 100),
	}

	// Start log broadcaster
	logger.SetBroadcast(s.logCh)
	go s.broadcastLogs()

	// Every registry change reaches connected clients, whichever surface made it
	eng.Registry().Subscribe(func(*addon.Snapshot) { s.broadcastAddons() })

	return s
}

func (s *Server) broadcastAddons() {
	addons := s.listAddons()
	s.clientsMu.Lock()
	for client := range s.clients {
		client.push("addons", addons)
	}
	s.clientsMu.Unlock()
}

func (s *Server) broadcastLogs() {
	for line := range s.logCh {
		s.clientsMu.Lock()
		for client := range s.clients {
			client.push("log_entry", line)
		}
		s.clientsMu.Unlock()
	}
}

// AddClient registers a new websocket client
func (s *Server) AddClient(client *Client) {
	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
}

// RemoveClient unregisters a websocket client
func (s *Server) RemoveClient(client *Client) {
	s.clientsMu.Lock()
	delete(s.clients, client)
	s.clientsMu.Unlock()
}

// Close detaches the log broadcaster
func (s *Server) Close() {
	logger.SetBroadcast(nil)
}

func (s *Server) securityToken() string {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	return s.config.SecurityToken
}

// Handler returns the HTTP handler for the API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/addons", s.handleListAddons)
	mux.HandleFunc("POST /api/addons", s.handleInstallAddon)
	mux.HandleFunc("POST /api/addons/refresh", s.handleRefreshAddons)
	mux.HandleFunc("DELETE /api/addons/{id}", s.handleRemoveAddon)
	mux.HandleFunc("POST /api/addons/{id}/up", s.handleMoveAddon(true))
	mux.HandleFunc("POST /api/addons/{id}/down", s.handleMoveAddon(false))
	mux.HandleFunc("GET /api/addons/{id}/configure", s.handleConfigureURL)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleSaveSettings)
	mux.HandleFunc("GET /api/settings/overrides", s.handleSettingsOverrides)
	mux.HandleFunc("GET /api/streams", s.handleQueryStreams)
	mux.HandleFunc("POST /api/play", s.handlePlay)
	mux.HandleFunc("POST /api/progress", s.handleSaveProgress)

	mux.HandleFunc("/api/ws", s.handleWebSocket)

	var h http.Handler = mux
	h = auth.Middleware(s.securityToken, "/health", "/metrics")(h)
	h = rateLimitMiddleware(s.config.APIRateLimitRPS, s.config.APIRateLimitBurst, h)
	h = metricsMiddleware(h)
	h = recoverMiddleware(h)
	return h
}
