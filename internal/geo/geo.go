// 包 geo：为 /ip-info 提供地址归属查询；按注册顺序链式查询本地数据库，结果可选写入 Redis 热点缓存
// 约束：任何数据源缺失或出错都只降级为空字段，不向调用方返回错误
package geo

import (
	"context"
	"encoding/json"
	"net/netip"
	"time"

	"github.com/redis/go-redis/v9"

	"whoami-api/internal/logger"
	"whoami-api/internal/metrics"
)

// Info：对外归属信息；空字段由调用方决定展示方式
type Info struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	ASN     string `json:"asn"`
	Org     string `json:"org"`
}

func (i Info) empty() bool {
	return i == Info{}
}

// merge：只补齐当前为空的字段，靠前的数据源优先
func (i Info) merge(o Info) Info {
	if i.City == "" {
		i.City = o.City
	}
	if i.Region == "" {
		i.Region = o.Region
	}
	if i.Country == "" {
		i.Country = o.Country
	}
	if i.ASN == "" {
		i.ASN = o.ASN
	}
	if i.Org == "" {
		i.Org = o.Org
	}
	return i
}

// Provider：单个本地数据源
type Provider interface {
	Name() string
	Lookup(ip netip.Addr) (Info, bool)
}

// Service：数据源链 + 可选缓存；rc 为 nil 时不缓存
type Service struct {
	providers []Provider
	rc        *redis.Client
	ttl       time.Duration
}

func NewService(rc *redis.Client, ttl time.Duration, providers ...Provider) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	ps := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &Service{providers: ps, rc: rc, ttl: ttl}
}

// Providers：已注册数据源名称，用于启动日志
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p.Name())
	}
	return out
}

func (s *Service) Lookup(ctx context.Context, ip netip.Addr) Info {
	if s == nil || !ip.IsValid() {
		return Info{}
	}
	key := "ipinfo:" + ip.String()
	if s.rc != nil {
		if v, err := s.rc.Get(ctx, key).Result(); err == nil && v != "" {
			var cached Info
			if json.Unmarshal([]byte(v), &cached) == nil {
				metrics.GeoCacheHitsTotal.Inc()
				return cached
			}
		}
	}
	var out Info
	for _, p := range s.providers {
		info, ok := p.Lookup(ip)
		if !ok {
			metrics.GeoLookupsTotal.WithLabelValues(p.Name(), "miss").Inc()
			continue
		}
		metrics.GeoLookupsTotal.WithLabelValues(p.Name(), "hit").Inc()
		out = out.merge(info)
	}
	logger.L().Debug("geo_lookup", "ip", ip.String(), "country", out.Country, "city", out.City, "asn", out.ASN)
	if s.rc != nil && !out.empty() {
		if b, err := json.Marshal(out); err == nil {
			if err := s.rc.Set(ctx, key, string(b), s.ttl).Err(); err != nil {
				logger.L().Debug("geo_cache_set_error", "err", err)
			}
		}
	}
	return out
}
