package introspect

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Source：候选 IP 的来源
type Source int

const (
	SourceRealIP Source = iota
	SourceRemote
	SourceForwardedFor
	SourceDefault
)

// 来源名称，同时用作 IP_PRECEDENCE 配置项中的取值
var sourceNames = map[Source]string{
	SourceRealIP:       "x-real-ip",
	SourceRemote:       "remote",
	SourceForwardedFor: "x-forwarded-for",
	SourceDefault:      "default",
}

func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return "unknown"
}

// DefaultIP：所有候选均不可用时的回退地址，保证解析结果恒有值
var DefaultIP = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// DefaultPrecedence：默认优先级
// 背景：头部可被伪造，依赖头部的部署必须位于可信反向代理之后；x-real-ip 作为第一方头最先采纳，
// 其次是套接字地址，最后才是可伪造的 x-forwarded-for 链
var DefaultPrecedence = []Source{SourceRealIP, SourceRemote, SourceForwardedFor}

// Inputs：解析所需的原始信号；Remote 无效表示连接未暴露远端地址，头部空串表示缺失
type Inputs struct {
	Remote       netip.Addr
	RealIP       string
	ForwardedFor string
}

// Candidate：解析结果及其来源；Addr 无效表示该来源没有产出
type Candidate struct {
	Source Source
	Addr   netip.Addr
}

// 每个来源对应一个惰性求值的生产函数，解析失败返回零值地址
var producers = map[Source]func(Inputs) netip.Addr{
	SourceRealIP: func(in Inputs) netip.Addr {
		return parseLiteral(in.RealIP)
	},
	SourceRemote: func(in Inputs) netip.Addr {
		if !in.Remote.IsValid() {
			return netip.Addr{}
		}
		return in.Remote.Unmap()
	},
	SourceForwardedFor: func(in Inputs) netip.Addr {
		first, _, _ := strings.Cut(in.ForwardedFor, ",")
		return parseLiteral(first)
	},
}

// Resolver：按固定顺序依次尝试各来源，首个成功解析者胜出
// 构建后只读，可被任意并发请求共享
type Resolver struct {
	order []Source
}

// NewResolver：按给定顺序构建解析器；顺序为空时使用默认优先级
// 约束：不允许重复来源，也不允许把 default 放入顺序（它始终位于末尾）
func NewResolver(order ...Source) (*Resolver, error) {
	if len(order) == 0 {
		order = DefaultPrecedence
	}
	seen := make(map[Source]bool, len(order))
	for _, s := range order {
		if _, ok := producers[s]; !ok {
			return nil, fmt.Errorf("introspect: source %q cannot be ordered", s)
		}
		if seen[s] {
			return nil, fmt.Errorf("introspect: duplicate source %q", s)
		}
		seen[s] = true
	}
	return &Resolver{order: append([]Source(nil), order...)}, nil
}

// ParsePrecedence：解析逗号分隔的来源名称列表，例如 "x-real-ip,remote,x-forwarded-for"
func ParsePrecedence(s string) (*Resolver, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NewResolver()
	}
	var order []Source
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		found := false
		for src, n := range sourceNames {
			if n == name && src != SourceDefault {
				order = append(order, src)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("introspect: unknown ip source %q", part)
		}
	}
	return NewResolver(order...)
}

// Order：返回当前生效的顺序副本
func (r *Resolver) Order() []Source {
	return append([]Source(nil), r.order...)
}

// Resolve：依次求值候选，短路返回首个有效地址；全部失败时回退 DefaultIP，永不报错
func (r *Resolver) Resolve(in Inputs) Candidate {
	for _, s := range r.order {
		if a := producers[s](in); a.IsValid() {
			return Candidate{Source: s, Addr: a}
		}
	}
	return Candidate{Source: SourceDefault, Addr: DefaultIP}
}

// FromRequest：从请求中采集输入并解析
func (r *Resolver) FromRequest(req *http.Request) Candidate {
	return r.Resolve(InputsFromRequest(req))
}

// InputsFromRequest：读取 RemoteAddr 与两个代理头；同名多行时取首行
func InputsFromRequest(req *http.Request) Inputs {
	return Inputs{
		Remote:       remoteAddr(req.RemoteAddr),
		RealIP:       req.Header.Get("X-Real-Ip"),
		ForwardedFor: req.Header.Get("X-Forwarded-For"),
	}
}

var defaultResolver = &Resolver{order: DefaultPrecedence}

// parseLiteral：去空白后按单个 IP 字面量解析；带端口、网段或其他格式均视为无效
func parseLiteral(s string) netip.Addr {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return a
}

// remoteAddr：解析 "host:port" 形式的套接字地址，兼容不带端口的写法
func remoteAddr(s string) netip.Addr {
	if s == "" {
		return netip.Addr{}
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr()
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return parseLiteral(s)
}
