package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/capturr/internal/coordinator"
	"github.com/loykin/capturr/internal/notify"
	"github.com/loykin/capturr/internal/schedule"
)

// Router provides embeddable HTTP handlers for observing and controlling
// the capture coordinator.
// Endpoints:
//
//	GET  {basePath}/status       list in-flight recordings
//	GET  {basePath}/sources      configured sources with their next window
//	POST {basePath}/stop         query: source=...&window=<unix seconds> (window optional)
//	POST {basePath}/notify/test  send a test notification
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	coord    *coordinator.Coordinator
	notifier notify.Notifier
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/stop, ...
func NewRouter(coord *coordinator.Coordinator, notifier notify.Notifier, basePath string) *Router {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Router{coord: coord, notifier: notifier, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/sources", r.handleSources)
	group.POST("/stop", r.handleStop)
	group.POST("/notify/test", r.handleNotifyTest)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, coord *coordinator.Coordinator, notifier notify.Notifier) (*http.Server, error) {
	r := NewRouter(coord, notifier, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type sourceResp struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Windows    []schedule.Window `json:"windows"`
	NextWindow *time.Time        `json:"next_window,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.coord.Snapshot())
}

func (r *Router) handleSources(c *gin.Context) {
	now := time.Now()
	sources := r.coord.Sources()
	out := make([]sourceResp, 0, len(sources))
	for _, src := range sources {
		resp := sourceResp{Name: src.Name, URL: src.URL, Windows: src.Windows}
		if next, _, ok := schedule.NextWindow(now, src); ok {
			resp.NextWindow = &next
		}
		out = append(out, resp)
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleStop(c *gin.Context) {
	source := c.Query("source")
	if source == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "source required"})
		return
	}
	if !isSafeName(source) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid source: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	var windowStart time.Time
	if w := c.Query("window"); w != "" {
		secs, err := strconv.ParseInt(w, 10, 64)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid window: want unix seconds"})
			return
		}
		windowStart = time.Unix(secs, 0)
	}
	if err := r.coord.StopRecording(source, windowStart); err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleNotifyTest(c *gin.Context) {
	if err := r.notifier.Send(c.Request.Context(), notify.Test()); err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
