// 包 api：集中注册诊断与工具路由，主入口只负责挂载
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"whoami-api/internal/geo"
	"whoami-api/internal/introspect"
	"whoami-api/internal/logger"
	"whoami-api/internal/metrics"
	"whoami-api/internal/store"
)

// StatsStore：请求统计存储；为 nil 时不计数，/stats 返回 503
type StatsStore interface {
	IncrStats(ctx context.Context, route string) error
	GetTotals(ctx context.Context) (*store.Totals, error)
}

// Deps：路由依赖；Builder 必填，其余可为空
type Deps struct {
	Builder  *introspect.Builder
	Geo      *geo.Service
	Stats    StatsStore
	DelayMax time.Duration
}

type server struct {
	Deps
}

// BuildRoutes：仅注册 GET 路由，其他方法由 ServeMux 返回 405
func BuildRoutes(d Deps) *http.ServeMux {
	if d.Builder == nil {
		d.Builder = introspect.NewBuilder(nil)
	}
	if d.DelayMax <= 0 {
		d.DelayMax = 30 * time.Second
	}
	s := &server{Deps: d}
	mux := http.NewServeMux()
	handle := func(route string, h http.HandlerFunc) {
		mux.Handle("GET "+route, s.observe(route, h))
	}

	handle("/whoami", s.whoami)
	handle("/ip", s.ip)
	handle("/headers", s.headers)
	handle("/user-agent", s.userAgent)
	handle("/echo", s.echo)
	handle("/ip-info", s.ipInfo)
	handle("/stats", s.stats)

	handle("/ping", ping)
	handle("/delay/{seconds}", s.delay)
	handle("/status/{code}", statusCode)
	handle("/uuid", newUUID)
	handle("/base64/{text}", base64Encode)
	handle("/base64-decode/{b64}", base64Decode)
	handle("/urlencode/{text}", urlEncode)
	handle("/urldecode/{encoded}", urlDecode)
	handle("/hash/{algo}/{text}", hashText)
	handle("/jwt-decode/{token}", jwtDecode)
	handle("/timestamp", timestamp)
	handle("/time/utc", timeUTC)
	handle("/time/{tz...}", timeZone)
	return mux
}

// observe：记录分路由请求数、耗时，并在配置了统计存储时累计计数
// 约束：统计写入在后台完成，不占用请求耗时；失败只记日志，不影响响应
func (s *server) observe(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		if s.Stats != nil {
			go s.incrStats(context.WithoutCancel(r.Context()), route)
		}
	})
}

func (s *server) incrStats(parent context.Context, route string) {
	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()
	if err := s.Stats.IncrStats(ctx, route); err != nil {
		logger.L().Error("stats_incr_error", "route", route, "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
