package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradepulse/internal/model"
)

// Metrics holds all Prometheus metrics for the analysis engine.
type Metrics struct {
	TicksTotal        prometheus.Counter
	StaleTicksTotal   prometheus.Counter
	PipelinePanics    prometheus.Counter
	CandlesTotal      *prometheus.CounterVec // labels: tf
	TransitionsTotal  prometheus.Counter
	DebouncedTotal    prometheus.Counter
	BackfillsTotal    *prometheus.CounterVec // labels: status=ok|cold
	ConvictionScore   *prometheus.GaugeVec   // labels: instrument
	InstrumentsActive prometheus.Gauge

	// Publication path
	RedisPublishDur          prometheus.Histogram
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedPublishes   prometheus.Counter

	// Market session state
	MarketState        prometheus.Gauge       // 0=closed, 1=open
	SessionTransitions *prometheus.CounterVec // labels: type=open|close|feed_disconnect

	// Gateway
	GatewayClients    prometheus.Gauge
	GatewayBroadcasts prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_ticks_total",
			Help: "Total ticks accepted into the pipeline",
		}),
		StaleTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_stale_ticks_total",
			Help: "Ticks dropped for exceeding the staleness threshold",
		}),
		PipelinePanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_pipeline_panics_total",
			Help: "Recovered panics inside the per-instrument tick chain",
		}),
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_candles_total",
			Help: "Closed candles by timeframe",
		}, []string{"tf"}),
		TransitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_signal_transitions_total",
			Help: "Primary-signal transitions that passed the debounce gate",
		}),
		DebouncedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_signal_debounced_total",
			Help: "Primary-signal transitions suppressed by debounce",
		}),
		BackfillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_backfills_total",
			Help: "Per-instrument historical backfill completions by status",
		}, []string{"status"}),
		ConvictionScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analysis_conviction_score",
			Help: "Current conviction score per instrument",
		}, []string{"instrument"}),
		InstrumentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_instruments_active",
			Help: "Instruments with live analysis state",
		}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_redis_buffered_publishes_total",
			Help: "Publishes buffered locally while the circuit breaker was open",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_session_transitions_total",
			Help: "Market session transitions (open, close, feed_disconnect)",
		}, []string{"type"}),

		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_gateway_clients",
			Help: "Connected websocket gateway clients",
		}),
		GatewayBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_gateway_broadcasts_total",
			Help: "Messages broadcast to gateway clients",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.StaleTicksTotal,
		m.PipelinePanics,
		m.CandlesTotal,
		m.TransitionsTotal,
		m.DebouncedTotal,
		m.BackfillsTotal,
		m.ConvictionScore,
		m.InstrumentsActive,
		m.RedisPublishDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedPublishes,
		m.MarketState,
		m.SessionTransitions,
		m.GatewayClients,
		m.GatewayBroadcasts,
	)

	return m
}

// The methods below satisfy the engine's instrumentation interface.

func (m *Metrics) TickProcessed() { m.TicksTotal.Inc() }
func (m *Metrics) TickStale()     { m.StaleTicksTotal.Inc() }
func (m *Metrics) TickPanic()     { m.PipelinePanics.Inc() }

func (m *Metrics) CandleClosed(tf int) {
	m.CandlesTotal.WithLabelValues(model.Itoa(tf)).Inc()
}

func (m *Metrics) Transition()          { m.TransitionsTotal.Inc() }
func (m *Metrics) TransitionDebounced() { m.DebouncedTotal.Inc() }

func (m *Metrics) BackfillDone(ok bool) {
	status := "cold"
	if ok {
		status = "ok"
	}
	m.BackfillsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Conviction(instrumentKey string, score int) {
	m.ConvictionScore.WithLabelValues(instrumentKey).Set(float64(score))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Instruments    int       `json:"instruments"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetInstruments(n int) {
	h.mu.Lock()
	h.Instruments = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Instruments     int     `json:"instruments"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Instruments:     h.Instruments,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
