package geo

import (
	"net/netip"
	"strings"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
)

// IP2Region：ip2region xdb 文件查询（仅 IPv4）
// 区域串格式为 国家|区域|省份|城市|运营商，"0" 表示缺失
type IP2Region struct {
	v4 *xdb.Searcher
}

func OpenIP2Region(v4Path string) (*IP2Region, error) {
	s, err := xdb.NewWithFileOnly(xdb.IPv4, v4Path)
	if err != nil {
		return nil, err
	}
	return &IP2Region{v4: s}, nil
}

func (c *IP2Region) Name() string { return "ip2region" }

func (c *IP2Region) Lookup(ip netip.Addr) (Info, bool) {
	if c.v4 == nil || !ip.Is4() {
		return Info{}, false
	}
	region, err := c.v4.SearchByStr(ip.String())
	if err != nil || region == "" {
		return Info{}, false
	}
	info := parseRegion(region)
	return info, !info.empty()
}

func parseRegion(s string) Info {
	parts := strings.Split(s, "|")
	field := func(i int) string {
		if i >= len(parts) {
			return ""
		}
		return clean(parts[i])
	}
	info := Info{Country: field(0), Region: field(2), City: field(3), Org: field(4)}
	if info.Region == "" {
		info.Region = field(1)
	}
	return info
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "0" || strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}
