package api

import (
	"net/http"

	"whoami-api/internal/introspect"
	"whoami-api/internal/logger"
	"whoami-api/internal/metrics"
)

// 端点与过滤模式的对应关系固定：/whoami 为 Debug，其余回显端点为 General

const unknown = "Unknown"

func (s *server) whoami(w http.ResponseWriter, r *http.Request) {
	snap := s.Builder.Build(r)
	metrics.ResolvedSourceTotal.WithLabelValues(snap.Source().String()).Inc()
	observeDropped(introspect.Entries(r), introspect.Debug)
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) ip(w http.ResponseWriter, r *http.Request) {
	c := s.resolve(r)
	writeText(w, http.StatusOK, c.Addr.String())
}

func (s *server) headers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, generalHeaders(r))
}

func (s *server) userAgent(w http.ResponseWriter, r *http.Request) {
	ua, ok := generalHeaders(r)["user-agent"]
	if !ok {
		ua = unknown
	}
	writeText(w, http.StatusOK, ua)
}

// echo：只支持读请求，因此 query 恒为空对象、body 恒为空串
func (s *server) echo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, echoResponse{
		Method:  r.Method,
		Query:   map[string]string{},
		Headers: generalHeaders(r),
		Body:    "",
	})
}

// ipInfo：解析出的地址 + 本地数据库归属；未配置数据源或未命中的字段为 Unknown
func (s *server) ipInfo(w http.ResponseWriter, r *http.Request) {
	c := s.resolve(r)
	info := s.Geo.Lookup(r.Context(), c.Addr)
	writeJSON(w, http.StatusOK, ipInfoResponse{
		IP:      c.Addr.String(),
		City:    orUnknown(info.City),
		Region:  orUnknown(info.Region),
		Country: orUnknown(info.Country),
		ASN:     orUnknown(info.ASN),
		Org:     orUnknown(info.Org),
	})
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "stats storage not configured"})
		return
	}
	t, err := s.Stats.GetTotals(r.Context())
	if err != nil {
		logger.L().Error("stats_totals_error", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) resolve(r *http.Request) introspect.Candidate {
	c := s.Builder.Resolver().FromRequest(r)
	metrics.ResolvedSourceTotal.WithLabelValues(c.Source.String()).Inc()
	return c
}

func generalHeaders(r *http.Request) map[string]string {
	entries := introspect.Entries(r)
	observeDropped(entries, introspect.General)
	return introspect.Filter(entries, introspect.General)
}

// observeDropped：统计被过滤掉的头部数量，按分类与模式打点
func observeDropped(entries []introspect.HeaderEntry, mode introspect.Mode) {
	for _, e := range entries {
		c := introspect.Classify(e.Name)
		if !mode.Visible(c) {
			metrics.HeadersDroppedTotal.WithLabelValues(c.String(), mode.String()).Inc()
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
