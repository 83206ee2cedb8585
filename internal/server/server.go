// Package server wires the host HTTP surface: document lifecycle
// endpoints, the sandbox bridge websocket, health, and metrics.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/midiview/midiview/internal/bridge"
	"github.com/midiview/midiview/internal/config"
	"github.com/midiview/midiview/internal/document"
	"github.com/midiview/midiview/internal/host"
	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/monitoring"
	"github.com/midiview/midiview/internal/settings"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The sandbox webview connects from an opaque origin.
		return true
	},
}

// Server hosts the bridge and its supporting endpoints.
type Server struct {
	log     *logging.Logger
	cfg     *config.Config
	router  *gin.Engine
	http    *http.Server
	docs    *document.Registry
	store   *settings.Store
	metrics *monitoring.Metrics
}

// New builds a server from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	store, err := settings.NewStore(cfg.Storage.Path, log.Named("settings"))
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	s := &Server{
		log:     log,
		cfg:     cfg,
		router:  router,
		docs:    document.NewRegistry(),
		store:   store,
		metrics: metrics,
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.POST("/documents", s.openDocument)
	router.DELETE("/documents", s.closeDocument)
	router.GET("/bridge", s.bridgeConnection)

	s.http = &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	return s, nil
}

// Run serves until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	s.log.Info("host server starting", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("host server shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"documents": s.docs.Count(),
	})
}

type openRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) openDocument(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := document.OpenFile(req.Path)
	if err != nil {
		s.log.Error("failed to open document", zap.String("path", req.Path), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	s.docs.Open(doc)
	s.metrics.DocumentsOpen.Set(float64(s.docs.Count()))
	s.log.Info("document opened", zap.String("uri", doc.URI()), zap.Int("bytes", doc.Size()))

	c.JSON(http.StatusOK, gin.H{
		"uri":  doc.URI(),
		"name": doc.Name(),
		"size": doc.Size(),
	})
}

func (s *Server) closeDocument(c *gin.Context) {
	uri := c.Query("uri")
	if uri == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uri query parameter required"})
		return
	}
	if !s.docs.Close(uri) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not open"})
		return
	}
	s.metrics.DocumentsOpen.Set(float64(s.docs.Count()))
	c.JSON(http.StatusOK, gin.H{"closed": uri})
}

// bridgeConnection upgrades a sandbox connection and serves its message
// loop until the sandbox goes away.
func (s *Server) bridgeConnection(c *gin.Context) {
	uri := c.Query("doc")
	doc, ok := s.docs.Get(uri)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not open"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := bridge.NewConn(wsConn, s.cfg.Bridge.ReadLimitBytes)
	defer conn.Close()

	s.metrics.BridgeConnections.Inc()
	defer s.metrics.BridgeConnections.Dec()

	router := host.NewRouter(host.Config{
		Document: doc,
		Channel:  conn,
		Store:    s.store,
		Notifier: host.LogNotifier{Log: s.log.Named("notify")},
		Metrics:  s.metrics,
		Log:      s.log.Named("router"),
	})

	s.log.Info("sandbox connected", zap.String("uri", doc.URI()))
	if err := router.Serve(c.Request.Context()); err != nil {
		s.log.Warn("bridge connection ended", zap.String("uri", doc.URI()), zap.Error(err))
		return
	}
	s.log.Info("sandbox disconnected", zap.String("uri", doc.URI()))
}
