package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"whoami-api/internal/config"
	"whoami-api/internal/introspect"
	"whoami-api/internal/logger"
	"whoami-api/internal/metrics"
	"whoami-api/pkg/origindefense"
)

// 文档注释：令牌桶限流（每秒，进程内）
// 约束：不做排队，超出直接返回 429
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(qps int) *TokenBucket {
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// 文档注释：按客户端 IP 的固定窗口限流（Redis，每分钟）
// 背景：多实例部署时共享计数；键为解析后的客户端 IP，与回显端点使用同一解析器
// 约束：Redis 出错时放行，避免缓存故障阻断诊断接口
type IPLimiter struct {
	rc        *redis.Client
	res       *introspect.Resolver
	perMinute int64
	now       func() time.Time
}

func NewIPLimiter(rc *redis.Client, res *introspect.Resolver, perMinute int) *IPLimiter {
	return &IPLimiter{rc: rc, res: res, perMinute: int64(perMinute), now: time.Now}
}

func (l *IPLimiter) allow(ctx context.Context, r *http.Request) bool {
	ip := l.res.FromRequest(r).Addr.String()
	window := l.now().Unix() / 60
	key := "rl:" + ip + ":" + strconv.FormatInt(window, 10)
	n, err := l.rc.Incr(ctx, key).Result()
	if err != nil {
		logger.L().Debug("ratelimit_redis_error", "err", err)
		return true
	}
	if n == 1 {
		_ = l.rc.Expire(ctx, key, 2*time.Minute).Err()
	}
	return n <= l.perMinute
}

// Wrap：超出当前窗口配额的请求直接返回 429
func (l *IPLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.Context(), r) {
			reject(w, "per_ip")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, limiter string) {
	metrics.RateLimitedTotal.WithLabelValues(limiter).Inc()
	w.Header().Set("retry-after", "1")
	w.WriteHeader(http.StatusTooManyRequests)
}

// Wrap：外层依次为 全局令牌桶 -> 按 IP 限流 -> 源站白名单 -> 业务
func Wrap(next http.Handler, cfg config.Config, res *introspect.Resolver, rc *redis.Client, od *origindefense.Middleware) http.Handler {
	h := next
	if od != nil {
		h = od.Wrap(h)
	}
	if !cfg.RateLimitEnabled {
		return h
	}
	if rc != nil && cfg.RateLimitPerIP > 0 {
		h = NewIPLimiter(rc, res, cfg.RateLimitPerIP).Wrap(h)
	}
	if cfg.RateLimitQPS > 0 {
		tb := NewTokenBucket(cfg.RateLimitQPS)
		inner := h
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tb.allow() {
				reject(w, "global")
				return
			}
			inner.ServeHTTP(w, r)
		})
	}
	return h
}
