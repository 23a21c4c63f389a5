package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	icache "ForecastMix/internal/service/cache"
	"ForecastMix/internal/service/metrics"
	"ForecastMix/internal/service/ratelimit"
	"ForecastMix/internal/usecase"
	applogger "ForecastMix/pkg/logger"
	"ForecastMix/pkg/util"
)

// ReportHandler serves cached read-only projections of mixture state over
// plain net/http. The write path stays on the Echo handlers; this surface is
// for dashboards polling summaries and weight trails.
type ReportHandler struct {
	mixtures *usecase.MixtureService
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
	l        *applogger.Logger
}

func NewReportHandler(mixtures *usecase.MixtureService) *ReportHandler {
	metrics.Register()
	return &ReportHandler{mixtures: mixtures, rl: ratelimit.New()}
}

func (h *ReportHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetLogger injects a structured logger.
func (h *ReportHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *ReportHandler) Summary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := "summary"
		defer func() { metrics.ReportLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

		id := r.URL.Query().Get("id")
		if id == "" {
			if h.l != nil {
				h.l.Warn("report.summary missing id")
			}
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if !h.rl.Allow(r.RemoteAddr+":summary", 5, 2) {
			if h.l != nil {
				h.l.Warn("report.summary rate_limited", applogger.String("remote", r.RemoteAddr))
			}
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		cacheKey := "summary:" + id
		if b, ok := h.cached(cacheKey, endpoint); ok {
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write(b); err != nil && h.l != nil {
				h.l.Warn("report.summary write_error", applogger.Error(err))
			}
			return
		}
		res, err := h.mixtures.Summary(r.Context(), id)
		if err != nil {
			metrics.ReportErrors.WithLabelValues(endpoint).Inc()
			if h.l != nil {
				h.l.Error("report.summary error", applogger.Error(err))
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.send(w, cacheKey, endpoint, res, 5*time.Second)
	}
}

func (h *ReportHandler) Weights() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := "weights"
		defer func() { metrics.ReportLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

		id := r.URL.Query().Get("id")
		if id == "" {
			if h.l != nil {
				h.l.Warn("report.weights missing id")
			}
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		limit := util.ParseIntDefault(r.URL.Query().Get("limit"), 1000)
		if limit <= 0 {
			limit = 1000
		}
		if !h.rl.Allow(r.RemoteAddr+":weights", 3, 1) {
			if h.l != nil {
				h.l.Warn("report.weights rate_limited", applogger.String("remote", r.RemoteAddr))
			}
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		cacheKey := "weights:" + id + ":" + strconv.Itoa(limit)
		if b, ok := h.cached(cacheKey, endpoint); ok {
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write(b); err != nil && h.l != nil {
				h.l.Warn("report.weights write_error", applogger.Error(err))
			}
			return
		}
		res, err := h.mixtures.Weights(r.Context(), id, limit)
		if err != nil {
			metrics.ReportErrors.WithLabelValues(endpoint).Inc()
			if h.l != nil {
				h.l.Error("report.weights error", applogger.Error(err))
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.send(w, cacheKey, endpoint, res, 5*time.Second)
	}
}

func (h *ReportHandler) cached(key, endpoint string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		if h.l != nil {
			h.l.Warn("report cache_get_error", applogger.String("endpoint", endpoint), applogger.Error(err))
		}
		return nil, false
	}
	if ok && h.l != nil {
		h.l.Debug("report cache_hit", applogger.String("key", key))
	}
	return b, ok
}

func (h *ReportHandler) send(w http.ResponseWriter, key, endpoint string, v interface{}, ttl time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(v)
	if err != nil {
		if h.l != nil {
			h.l.Error("report marshal_error", applogger.String("endpoint", endpoint), applogger.Error(err))
		}
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		if err := h.cache.SetBytes(key, b, ttl); err != nil && h.l != nil {
			h.l.Warn("report cache_set_error", applogger.Error(err))
		}
	}
	if _, err := w.Write(b); err != nil && h.l != nil {
		h.l.Warn("report write_error", applogger.Error(err))
	}
}
