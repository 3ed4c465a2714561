package geo

import (
	"errors"
	"net"
	"net/netip"
	"strconv"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"whoami-api/internal/logger"
)

// MaxMind：GeoLite2/GeoIP2 City 与 ASN 数据库；任一路径为空则对应字段不查询
type MaxMind struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
	lang string
}

// OpenMaxMind：打开 mmdb 文件并记录数据库类型与构建时间
func OpenMaxMind(cityPath, asnPath string) (*MaxMind, error) {
	if cityPath == "" && asnPath == "" {
		return nil, errors.New("geo: no maxmind database configured")
	}
	m := &MaxMind{lang: "en"}
	if cityPath != "" {
		r, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, err
		}
		logMetadata(cityPath, r.Metadata())
		m.city = r
	}
	if asnPath != "" {
		r, err := geoip2.Open(asnPath)
		if err != nil {
			m.Close()
			return nil, err
		}
		logMetadata(asnPath, r.Metadata())
		m.asn = r
	}
	return m, nil
}

func logMetadata(path string, md maxminddb.Metadata) {
	logger.L().Info("maxmind_open_ok", "path", path, "type", md.DatabaseType, "build_epoch", md.BuildEpoch, "ip_version", md.IPVersion)
}

func (m *MaxMind) Name() string { return "maxmind" }

func (m *MaxMind) Lookup(ip netip.Addr) (Info, bool) {
	var out Info
	nip := net.IP(ip.AsSlice())
	if m.city != nil {
		if rec, err := m.city.City(nip); err == nil && rec != nil {
			out.City = rec.City.Names[m.lang]
			if len(rec.Subdivisions) > 0 {
				out.Region = rec.Subdivisions[0].Names[m.lang]
			}
			out.Country = rec.Country.IsoCode
		}
	}
	if m.asn != nil {
		if rec, err := m.asn.ASN(nip); err == nil && rec != nil && rec.AutonomousSystemNumber != 0 {
			out.ASN = "AS" + strconv.FormatUint(uint64(rec.AutonomousSystemNumber), 10)
			out.Org = rec.AutonomousSystemOrganization
		}
	}
	return out, !out.empty()
}

func (m *MaxMind) Close() error {
	var errs []error
	if m.city != nil {
		errs = append(errs, m.city.Close())
	}
	if m.asn != nil {
		errs = append(errs, m.asn.Close())
	}
	return errors.Join(errs...)
}
