// 包 introspect：请求自省核心，负责头部分类过滤、客户端 IP 解析与单次请求快照组装
// 约束：全部为纯函数或只读共享的不可变对象；不持有跨请求状态，不做任何缓存
package introspect

import (
	"net/http"
	"strings"
)

// Class：头部分类，封闭枚举；同一名称在当前策略下只对应一个分类
type Class int

const (
	Ordinary Class = iota
	Infrastructure
	Sensitive
)

func (c Class) String() string {
	switch c {
	case Infrastructure:
		return "infrastructure"
	case Sensitive:
		return "sensitive"
	default:
		return "ordinary"
	}
}

// Mode：过滤模式
// General 同时丢弃敏感头与基础设施头，用于对外公开回显；Debug 仅丢弃敏感头，用于运维排查视图
type Mode int

const (
	General Mode = iota
	Debug
)

func (m Mode) String() string {
	if m == Debug {
		return "debug"
	}
	return "general"
}

// 敏感头名单（小写）：任何模式下都不回显；新增条目只需加一行
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"x-api-key":           {},
	"x-auth-token":        {},
	"x-access-token":      {},
	"proxy-authorization": {},
	"www-authenticate":    {},
}

// 代理/CDN 注入头的前缀
var infrastructurePrefixes = []string{"x-", "cf-", "cdn-"}

// HeaderEntry：单条原始头部；名称大小写不敏感，同名可重复出现
type HeaderEntry struct {
	Name  string
	Value string
}

// Classify：按小写名称判定分类；未知名称一律为 Ordinary，不存在错误分支
func Classify(name string) Class {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := sensitiveHeaders[n]; ok {
		return Sensitive
	}
	for _, p := range infrastructurePrefixes {
		if strings.HasPrefix(n, p) {
			return Infrastructure
		}
	}
	return Ordinary
}

// Visible：判断某分类在给定模式下是否允许回显
func (m Mode) Visible(c Class) bool {
	switch c {
	case Sensitive:
		return false
	case Infrastructure:
		return m == Debug
	default:
		return true
	}
}

// Filter：按模式过滤头部并输出 小写名称 -> 值 的映射
// 同名多值时保留首个出现的值；输入不被修改，重复调用结果一致
func Filter(entries []HeaderEntry, mode Mode) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		n := strings.ToLower(strings.TrimSpace(e.Name))
		if n == "" || !mode.Visible(Classify(n)) {
			continue
		}
		if _, seen := out[n]; seen {
			continue
		}
		out[n] = e.Value
	}
	return out
}

// Entries：把 net/http 的头部多值映射展开为条目列表
// 背景：net/http 会把 Host 从 Header 中移出放到 Request.Host，这里补回为 host 条目
func Entries(r *http.Request) []HeaderEntry {
	out := make([]HeaderEntry, 0, len(r.Header)+1)
	if r.Host != "" && r.Header.Get("Host") == "" {
		out = append(out, HeaderEntry{Name: "host", Value: r.Host})
	}
	for name, values := range r.Header {
		for _, v := range values {
			out = append(out, HeaderEntry{Name: name, Value: v})
		}
	}
	return out
}

// FilterRequest：Entries 与 Filter 的组合，供只需要头部视图的轻量端点直接调用
func FilterRequest(r *http.Request, mode Mode) map[string]string {
	return Filter(Entries(r), mode)
}
