package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whoami_requests_total",
		Help: "Total number of diagnostic requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whoami_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	ResolvedSourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whoami_ip_resolved_total",
		Help: "Client IP resolutions by winning source",
	}, []string{"source"})
	HeadersDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whoami_headers_dropped_total",
		Help: "Headers removed before echoing, by class and filter mode",
	}, []string{"class", "mode"})
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whoami_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"limiter"})
	OriginBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whoami_origin_blocked_total",
		Help: "Requests rejected by the origin allowlist",
	})
	GeoLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whoami_geo_lookups_total",
		Help: "ip-info lookups by provider and result",
	}, []string{"provider", "result"})
	GeoCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whoami_geo_cache_hits_total",
		Help: "ip-info redis cache hits",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(ResolvedSourceTotal)
	prometheus.MustRegister(HeadersDroppedTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(OriginBlockedTotal)
	prometheus.MustRegister(GeoLookupsTotal)
	prometheus.MustRegister(GeoCacheHitsTotal)
}

// 文档注释：返回 Prometheus 指标处理器，在主入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
