package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nuko-mc/nuko/internal/events"
	"github.com/nuko-mc/nuko/internal/history"
	"github.com/nuko-mc/nuko/internal/instance"
	"github.com/nuko-mc/nuko/internal/metrics"
	"github.com/nuko-mc/nuko/internal/schedule"
	"github.com/nuko-mc/nuko/internal/supervisor"
)

// Router provides embeddable HTTP handlers for managing instances.
// Endpoints, relative to basePath:
//
//	GET  /instances                  list with running flag
//	POST /instances                  create, body: instance.CreateRequest
//	GET  /instances/:id              one instance with running flag
//	POST /instances/:id/start        also stop, kill, restart
//	POST /instances/:id/command      body: {"command": "..."}
//	GET  /instances/:id/status       {"id", "running"}
//	GET  /instances/:id/logs         query: since=<offset>, run=<generation>
//	GET  /instances/:id/metrics      cpu and memory sample
//	GET  /instances/:id/history      query: limit=<n>
//	GET  /schedules                  registered schedule entries
//	GET  /events                     websocket, query: instance=<id>
//	GET  /metrics                    prometheus, when enabled
type Router struct {
	sup       *supervisor.Supervisor
	store     *instance.Store
	bus       *events.Bus
	history   history.Querier
	schedules Schedules
	basePath  string
	metrics   bool
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// Schedules lists scheduled actions.
type Schedules interface {
	Entries() []schedule.Scheduled
}

// Options configures a Router. Supervisor and Instances are required.
type Options struct {
	Supervisor *supervisor.Supervisor
	Instances  *instance.Store
	Bus        *events.Bus
	History    history.Querier
	Schedules  Schedules
	BasePath   string
	Metrics    bool
	Logger     *slog.Logger

	// AllowedOrigins restricts websocket origins; empty allows any.
	AllowedOrigins []string
}

// NewRouter constructs a new Router.
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		sup:       opts.Supervisor,
		store:     opts.Instances,
		bus:       opts.Bus,
		history:   opts.History,
		schedules: opts.Schedules,
		basePath:  sanitizeBase(opts.BasePath),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		upgrader:  buildUpgrader(opts.AllowedOrigins),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.requestLog())
	group := g.Group(r.basePath)
	group.GET("/instances", r.handleList)
	group.POST("/instances", r.handleCreate)
	inst := group.Group("/instances/:id", r.checkID)
	inst.GET("", r.handleInfo)
	inst.POST("/start", r.handleStart)
	inst.POST("/stop", r.handleStop)
	inst.POST("/kill", r.handleKill)
	inst.POST("/restart", r.handleRestart)
	inst.POST("/command", r.handleCommand)
	inst.GET("/status", r.handleStatus)
	inst.GET("/logs", r.handleLogs)
	inst.GET("/metrics", r.handleMetrics)
	inst.GET("/history", r.handleHistory)
	group.GET("/schedules", r.handleSchedules)
	group.GET("/events", r.handleEvents)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer wraps h in an http.Server with conservative timeouts.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	ID      string `json:"id"`
	Running bool   `json:"running"`
}

type logsResp struct {
	Lines []string `json:"lines"`
	Next  int      `json:"next"`
	Run   uint64   `json:"run"`
}

type commandReq struct {
	Command string `json:"command"`
}

func (r *Router) fail(c *gin.Context, err error) {
	kind := supervisor.Kind(err)
	writeJSON(c, statusFor(kind), ErrorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: "bad_request"})
}

func (r *Router) checkID(c *gin.Context) {
	if !isSafeID(c.Param("id")) {
		badRequest(c, "invalid instance id: allowed [A-Za-z0-9._-] and no '..'")
		c.Abort()
		return
	}
	c.Next()
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (r *Router) handleList(c *gin.Context) {
	infos, err := r.sup.ListRunning(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, infos)
}

func (r *Router) handleCreate(c *gin.Context) {
	var req instance.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if !isSafeAbsPath(req.CustomJarPath) {
		badRequest(c, "invalid custom_jar_path: must be absolute path without traversal")
		return
	}
	if !isSafeAbsPath(req.JavaPath) {
		badRequest(c, "invalid java_path: must be absolute path without traversal")
		return
	}
	if !isSafeAbsPath(req.IconPath) {
		badRequest(c, "invalid icon_path: must be absolute path without traversal")
		return
	}
	inst, err := r.store.Create(req)
	if err != nil {
		r.fail(c, err)
		return
	}
	r.bus.Publish(events.StateChanged())
	writeJSON(c, http.StatusCreated, inst)
}

func (r *Router) handleInfo(c *gin.Context) {
	info, err := r.sup.Info(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleStart(c *gin.Context) {
	r.lifecycle(c, r.sup.Start(c.Request.Context(), c.Param("id")))
}

func (r *Router) handleStop(c *gin.Context) {
	r.lifecycle(c, r.sup.Stop(c.Request.Context(), c.Param("id")))
}

func (r *Router) handleKill(c *gin.Context) {
	r.lifecycle(c, r.sup.Kill(c.Request.Context(), c.Param("id")))
}

func (r *Router) handleRestart(c *gin.Context) {
	r.lifecycle(c, r.sup.Restart(c.Request.Context(), c.Param("id")))
}

func (r *Router) lifecycle(c *gin.Context, err error) {
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if req.Command == "" {
		badRequest(c, "command required")
		return
	}
	if err := r.sup.Send(c.Param("id"), req.Command); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	id := c.Param("id")
	running, err := r.sup.Status(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, statusResp{ID: id, Running: running})
}

func (r *Router) handleLogs(c *gin.Context) {
	since := 0
	if s := c.Query("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(c, "since must be a non-negative integer")
			return
		}
		since = n
	}
	var run uint64
	if s := c.Query("run"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			badRequest(c, "run must be a non-negative integer")
			return
		}
		run = n
	}
	lines, next, gen, err := r.sup.LogsSince(c.Param("id"), run, since)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, logsResp{Lines: lines, Next: next, Run: gen})
}

func (r *Router) handleMetrics(c *gin.Context) {
	sample, err := r.sup.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sample)
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.history == nil {
		writeJSON(c, http.StatusNotImplemented, ErrorResponse{Error: "history is not enabled", Kind: "unsupported"})
		return
	}
	id := c.Param("id")
	if _, err := r.store.Resolve(id); err != nil {
		r.fail(c, err)
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			badRequest(c, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	evs, err := r.history.Recent(c.Request.Context(), id, limit)
	if err != nil {
		r.fail(c, errors.Join(supervisor.ErrIO, err))
		return
	}
	writeJSON(c, http.StatusOK, evs)
}

func (r *Router) handleSchedules(c *gin.Context) {
	if r.schedules == nil {
		writeJSON(c, http.StatusOK, []schedule.Scheduled{})
		return
	}
	writeJSON(c, http.StatusOK, r.schedules.Entries())
}
