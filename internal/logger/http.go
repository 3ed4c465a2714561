// 包 logger：http 访问日志中间件，记录方法、路径、状态、耗时、字节数与解析后的客户端 IP
package logger

import (
	"log/slog"
	"net/http"
	"time"

	"whoami-api/internal/introspect"
)

// statusWriter：包装 ResponseWriter 以捕获状态码与写出字节数
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// AccessMiddleware：生成访问日志中间件
// 约束：客户端 IP 与业务端点使用同一个解析器，保证日志与回显一致；不读取请求体
func AccessMiddleware(l *slog.Logger, res *introspect.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			c := res.FromRequest(r)
			l.Debug("http_access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", c.Addr.String(),
				"ip_source", c.Source.String(),
			)
		})
	}
}
