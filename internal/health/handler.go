package health

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lv-margintrade/internal/httputil"
)

type Handler struct {
	pool        *pgxpool.Pool
	startedAt   time.Time
	gatewayMode string
	httpAddr    string
	internalTok string
}

func NewHandler(pool *pgxpool.Pool, startedAt time.Time, gatewayMode, httpAddr, internalToken string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		pool:        pool,
		startedAt:   start,
		gatewayMode: strings.TrimSpace(gatewayMode),
		httpAddr:    strings.TrimSpace(httpAddr),
		internalTok: strings.TrimSpace(internalToken),
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type databaseStat struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at"`
}

type readinessResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	UptimeSec int64        `json:"uptime_sec"`
	Uptime    string       `json:"uptime"`
	Database  databaseStat `json:"database"`
}

type fullResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	UptimeSec int64        `json:"uptime_sec"`
	Uptime    string       `json:"uptime"`
	App       appStats     `json:"app"`
	Runtime   runtimeStats `json:"runtime"`
	Database  databaseStat `json:"database"`
}

type appStats struct {
	HTTPAddr    string `json:"http_addr"`
	GatewayMode string `json:"gateway_mode"`
	PID         int    `json:"pid"`
	Hostname    string `json:"hostname"`
}

type runtimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	GoMaxProcs int    `json:"gomaxprocs"`
	NumGC      uint32 `json:"num_gc"`
	AllocBytes uint64 `json:"alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func secureTokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) requireInternalToken(w http.ResponseWriter, r *http.Request) bool {
	if h.internalTok == "" {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "internal token is not configured"})
		return false
	}
	provided := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
	if !secureTokenEqual(provided, h.internalTok) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
		return false
	}
	return true
}

func (h *Handler) collectDB(ctx context.Context) databaseStat {
	checkedAt := time.Now().UTC()
	out := databaseStat{CheckedAt: checkedAt.Format(time.RFC3339)}
	if h.pool == nil {
		out.Error = "pool is not configured"
		return out
	}
	pingStart := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	pingErr := h.pool.Ping(pingCtx)
	cancel()
	out.PingMs = time.Since(pingStart).Milliseconds()
	out.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	if pingErr != nil {
		out.Error = pingErr.Error()
	} else {
		out.Reachable = true
	}
	return out
}

// Live is a lightweight liveness endpoint and does not check database reachability.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready checks the primary dependency (database) and returns 503 when it's not reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.collectDB(r.Context())
	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		Database:  db,
	})
}

// Full returns full diagnostics and is protected by X-Internal-Token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.collectDB(r.Context())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	host := ""
	if name, err := os.Hostname(); err == nil {
		host = name
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, httpStatus, fullResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		App: appStats{
			HTTPAddr:    h.httpAddr,
			GatewayMode: h.gatewayMode,
			PID:         os.Getpid(),
			Hostname:    host,
		},
		Runtime: runtimeStats{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			GoMaxProcs: runtime.GOMAXPROCS(0),
			NumGC:      mem.NumGC,
			AllocBytes: mem.Alloc,
			SysBytes:   mem.Sys,
		},
		Database: db,
	})
}

// Metrics returns basic Prometheus-compatible metrics and is protected by X-Internal-Token.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.collectDB(r.Context())
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	dbUp := 0
	if db.Reachable {
		dbUp = 1
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "# HELP lvmargin_up Service process is running.\n")
	_, _ = fmt.Fprintf(w, "# TYPE lvmargin_up gauge\n")
	_, _ = fmt.Fprintf(w, "lvmargin_up 1\n")

	_, _ = fmt.Fprintf(w, "# HELP lvmargin_uptime_seconds Service uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE lvmargin_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "lvmargin_uptime_seconds %d\n", int64(uptime.Seconds()))

	_, _ = fmt.Fprintf(w, "# HELP lvmargin_db_up Database ping status (1=ok,0=down).\n")
	_, _ = fmt.Fprintf(w, "# TYPE lvmargin_db_up gauge\n")
	_, _ = fmt.Fprintf(w, "lvmargin_db_up %d\n", dbUp)
	_, _ = fmt.Fprintf(w, "lvmargin_db_ping_milliseconds %d\n", db.PingMs)

	_, _ = fmt.Fprintf(w, "# HELP lvmargin_go_goroutines Number of goroutines.\n")
	_, _ = fmt.Fprintf(w, "# TYPE lvmargin_go_goroutines gauge\n")
	_, _ = fmt.Fprintf(w, "lvmargin_go_goroutines %d\n", runtime.NumGoroutine())
	_, _ = fmt.Fprintf(w, "lvmargin_go_mem_alloc_bytes %d\n", mem.Alloc)
	_, _ = fmt.Fprintf(w, "lvmargin_go_mem_sys_bytes %d\n", mem.Sys)
	_, _ = fmt.Fprintf(w, "lvmargin_go_gc_count %d\n", mem.NumGC)
}
