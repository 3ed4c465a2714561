package introspect

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"
)

// CountryHintHeaders：边缘网络写入的国家提示头，按顺序取首个非空值
// cf-ipcountry 为 Cloudflare；x-eo-geo-countrycodealpha2 为 EdgeOne 控制台自定义回源头
var CountryHintHeaders = []string{"cf-ipcountry", "x-eo-geo-countrycodealpha2"}

// Snapshot：单次请求的不可变快照
// 约束：字段不导出，访问器返回副本；仅在本次请求内存活，不缓存、不跨请求共享
type Snapshot struct {
	ip      netip.Addr
	source  Source
	country string
	cookies map[string]string
	headers map[string]string
}

func (s Snapshot) IP() netip.Addr { return s.ip }

// Source：本次解析采用的来源
func (s Snapshot) Source() Source { return s.source }

// Country：边缘网络给出的国家提示；第二个返回值为 false 表示没有提示
func (s Snapshot) Country() (string, bool) { return s.country, s.country != "" }

func (s Snapshot) Cookies() map[string]string { return copyMap(s.cookies) }

// Headers：Debug 模式过滤后的头部
func (s Snapshot) Headers() map[string]string { return copyMap(s.headers) }

// snapshotJSON：对外序列化结构；country 缺失时输出 null
type snapshotJSON struct {
	IP      string            `json:"ip"`
	Country *string           `json:"country"`
	Cookies map[string]string `json:"cookies"`
	Headers map[string]string `json:"headers"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		IP:      s.ip.String(),
		Cookies: s.cookies,
		Headers: s.headers,
	}
	if c, ok := s.Country(); ok {
		out.Country = &c
	}
	return json.Marshal(out)
}

// Builder：快照构建器，持有共享的解析器；本身无可变状态
type Builder struct {
	resolver *Resolver
}

func NewBuilder(r *Resolver) *Builder {
	if r == nil {
		r = defaultResolver
	}
	return &Builder{resolver: r}
}

// Resolver：返回构建器使用的解析器，便于其他消费者共享同一优先级
func (b *Builder) Resolver() *Resolver { return b.resolver }

// Build：从同一请求一次性采集 IP、头部、Cookie 与国家提示
// 国家提示在基础设施头过滤之前读取，作为独立字段输出，不再留在 headers 中
func (b *Builder) Build(r *http.Request) Snapshot {
	entries := Entries(r)
	cand := b.resolver.FromRequest(r)
	headers := Filter(entries, Debug)
	for _, name := range CountryHintHeaders {
		delete(headers, name)
	}
	return Snapshot{
		ip:      cand.Addr,
		source:  cand.Source,
		country: countryHint(entries),
		cookies: cookieMap(r),
		headers: headers,
	}
}

func countryHint(entries []HeaderEntry) string {
	for _, name := range CountryHintHeaders {
		for _, e := range entries {
			if !strings.EqualFold(e.Name, name) {
				continue
			}
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

// cookieMap：逐行解析 Cookie 头，值原样保留（不做 RFC 6265 字符校验、不去引号）
// 约束：同名 Cookie 后写覆盖先写；缺少 "=" 或名称为空的片段跳过
func cookieMap(r *http.Request) map[string]string {
	out := make(map[string]string)
	for _, line := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(line, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok {
				continue
			}
			if name = strings.TrimSpace(name); name == "" {
				continue
			}
			out[name] = value
		}
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
