package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ptdang/stackboot/internal/health"
	"github.com/ptdang/stackboot/internal/metrics"
	"github.com/ptdang/stackboot/internal/process"
	"github.com/ptdang/stackboot/internal/supervisor"
)

// StackView is the minimal supervisor surface the HTTP API reads from.
type StackView interface {
	Phase() supervisor.Phase
	Statuses() []process.Status
	HealthReport() health.Report
}

// Router provides embeddable HTTP handlers for observing and stopping the
// stack. Endpoints:
//
//	GET  {basePath}/status    phase, per-process status, readiness report
//	GET  {basePath}/status?name=X  one process
//	GET  {basePath}/healthz   200 while running, 503 otherwise
//	POST {basePath}/shutdown  request an ordered shutdown
//	GET  {basePath}/metrics   Prometheus exposition (when enabled)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	view          StackView
	requestStop   func()
	basePath      string
	enableMetrics bool
}

func NewRouter(view StackView, requestStop func(), basePath string, enableMetrics bool) *Router {
	return &Router{
		view:          view,
		requestStop:   requestStop,
		basePath:      sanitizeBase(basePath),
		enableMetrics: enableMetrics,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.POST("/shutdown", r.handleShutdown)
	if r.enableMetrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The caller shuts it down via http.Server's Shutdown or Close.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Phase     string           `json:"phase"`
	Processes []process.Status `json:"processes"`
	Health    health.Report    `json:"health"`
}

func (r *Router) handleStatus(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		for _, st := range r.view.Statuses() {
			if st.Name == name {
				c.JSON(http.StatusOK, st)
				return
			}
		}
		c.JSON(http.StatusNotFound, errorResp{Error: "unknown process: " + name})
		return
	}
	c.JSON(http.StatusOK, statusResp{
		Phase:     string(r.view.Phase()),
		Processes: r.view.Statuses(),
		Health:    r.view.HealthReport(),
	})
}

func (r *Router) handleHealthz(c *gin.Context) {
	phase := r.view.Phase()
	if phase != supervisor.PhaseRunning {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "phase: " + string(phase)})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleShutdown(c *gin.Context) {
	if r.requestStop == nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "shutdown not wired"})
		return
	}
	r.requestStop()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
