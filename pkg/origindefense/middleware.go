// 包 origindefense：源站白名单中间件，仅放行指定 IP/CIDR 的请求，其余返回 403
// 约束：来源 IP 由调用方注入的解析函数给出，与业务端点共享同一优先级策略
package origindefense

import (
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
)

// Options：白名单配置
type Options struct {
	Enabled    bool
	AllowIPs   []string
	AllowCIDRs []string
	AllowLocal bool
}

// ClientIP：从请求中解析来源地址；返回无效地址视为无法识别
type ClientIP func(*http.Request) netip.Addr

type Middleware struct {
	l        *slog.Logger
	enabled  bool
	clientIP ClientIP
	allowIPs map[netip.Addr]struct{}
	prefixes []netip.Prefix
	onBlock  func()
}

// OptionsFromEnv：
// ORIGIN_DEFENSE_ENABLE=true              是否启用防御
// ORIGIN_ALLOW_IPS=1.2.3.4,5.6.7.8       允许的单 IP 列表（逗号分隔）
// ORIGIN_ALLOW_CIDRS=10.0.0.0/8,...      允许的 CIDR 列表（逗号分隔，支持 v4/v6）
// ORIGIN_ALLOW_LOCAL=true                 允许 127.0.0.1/::1（本地开发）
func OptionsFromEnv() Options {
	return Options{
		Enabled:    os.Getenv("ORIGIN_DEFENSE_ENABLE") == "true",
		AllowIPs:   splitList(os.Getenv("ORIGIN_ALLOW_IPS")),
		AllowCIDRs: splitList(os.Getenv("ORIGIN_ALLOW_CIDRS")),
		AllowLocal: os.Getenv("ORIGIN_ALLOW_LOCAL") == "true",
	}
}

// New：非法条目记录日志后忽略；onBlock 可为 nil
func New(l *slog.Logger, opts Options, clientIP ClientIP, onBlock func()) *Middleware {
	m := &Middleware{
		l:        l,
		enabled:  opts.Enabled,
		clientIP: clientIP,
		allowIPs: map[netip.Addr]struct{}{},
		onBlock:  onBlock,
	}
	for _, s := range opts.AllowIPs {
		ip, err := netip.ParseAddr(s)
		if err != nil {
			l.Warn("origin_defense_bad_ip", "value", s)
			continue
		}
		m.allowIPs[ip.Unmap()] = struct{}{}
	}
	for _, s := range opts.AllowCIDRs {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			l.Warn("origin_defense_bad_cidr", "value", s)
			continue
		}
		m.prefixes = append(m.prefixes, p.Masked())
	}
	if opts.AllowLocal {
		m.allowIPs[netip.AddrFrom4([4]byte{127, 0, 0, 1})] = struct{}{}
		m.allowIPs[netip.IPv6Loopback()] = struct{}{}
	}
	return m
}

// Wrap：未启用时原样返回 next
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if !m.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.clientIP(r)
		if !ip.IsValid() {
			m.block(w, "no_ip", "")
			return
		}
		if m.Allowed(ip) {
			next.ServeHTTP(w, r)
			return
		}
		m.block(w, "not_allowed", ip.String())
	})
}

// Allowed：判断 IP 是否在允许集合
func (m *Middleware) Allowed(ip netip.Addr) bool {
	ip = ip.Unmap()
	if _, ok := m.allowIPs[ip]; ok {
		return true
	}
	for _, p := range m.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func (m *Middleware) block(w http.ResponseWriter, reason, ip string) {
	m.l.Debug("origin_defense_block", "reason", reason, "ip", ip)
	if m.onBlock != nil {
		m.onBlock()
	}
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("403 forbidden: origin only accepts trusted networks\n"))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
