// Package api implements the Control API (A2): a local Gin HTTP/JSON surface
// exposing the core's upward control surface (§6) to an out-of-scope
// GUI/tray, plus a Prometheus /metrics endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latchwood/mcaccel/internal/directory"
	"github.com/latchwood/mcaccel/internal/httpfetch"
	"github.com/latchwood/mcaccel/internal/metrics"
	"github.com/latchwood/mcaccel/internal/proxy"
	"github.com/latchwood/mcaccel/internal/scheduler"
)

// Server is the Control API's HTTP server.
type Server struct {
	router *gin.Engine
	httpSv *http.Server

	dir       *directory.Directory
	listener  *proxy.Listener
	scheduler *scheduler.Scheduler
	fetcher   directory.Fetcher
}

// New wires a Control API Server against the core components it drives.
// addr is a loopback address such as "127.0.0.1:9090".
func New(addr string, dir *directory.Directory, listener *proxy.Listener, sched *scheduler.Scheduler) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		dir:       dir,
		listener:  listener,
		scheduler: sched,
		fetcher:   httpfetch.New(10 * time.Second),
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	s.httpSv = &http.Server{Addr: addr, Handler: s.router}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	grp := s.router.Group("/api")
	{
		grp.POST("/proxy/start", s.startProxy)
		grp.POST("/proxy/stop", s.stopProxy)
		grp.GET("/proxy/status", s.proxyStatus)

		grp.POST("/nodes/refresh", s.refreshNodes)
		grp.POST("/nodes/probe", s.probeNodes)
		grp.GET("/nodes", s.listNodes)
		grp.POST("/nodes/select", s.selectNode)
		grp.POST("/nodes/clear-manual", s.clearManual)
		grp.GET("/nodes/current", s.currentNode)
	}
}

// Start begins serving. Blocks until Stop is called or the server errors.
func (s *Server) Start() error {
	if err := s.httpSv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve %s: %w", s.httpSv.Addr, err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSv.Shutdown(ctx)
}

func (s *Server) startProxy(c *gin.Context) {
	if err := s.listener.Start(); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) stopProxy(c *gin.Context) {
	s.listener.Stop()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) proxyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.listener.Snapshot())
}

type refreshRequest struct {
	URL string `json:"url"`
}

func (s *Server) refreshNodes(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "url is required"})
		return
	}
	nodes, err := s.dir.RefreshFromRemote(c.Request.Context(), s.fetcher, req.URL)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(nodes)})
}

type probeRequest struct {
	AutoSwitch bool `json:"auto_switch"`
}

func (s *Server) probeNodes(c *gin.Context) {
	var req probeRequest
	_ = c.ShouldBindJSON(&req) // missing body means auto_switch=false
	s.scheduler.ProbeAll(req.AutoSwitch)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) listNodes(c *gin.Context) {
	c.JSON(http.StatusOK, s.dir.List())
}

type selectRequest struct {
	Hostname string `json:"hostname"`
}

func (s *Server) selectNode(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "hostname is required"})
		return
	}
	// A SelectionError is soft by design: an unknown hostname is a no-op,
	// reported as ok=false, never an HTTP 4xx.
	ok := s.dir.ManualSelect(req.Hostname)
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

func (s *Server) clearManual(c *gin.Context) {
	s.dir.ClearManual()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) currentNode(c *gin.Context) {
	node, ok := s.dir.GetCurrent()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "no current node"})
		return
	}
	c.JSON(http.StatusOK, node)
}
