// 包 config：集中读取 .env 与环境变量，给出带默认值的进程配置
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string
	APIBase   string
	LogLevel  string
	LogFormat string

	// IPPrecedence：客户端 IP 来源优先级，逗号分隔；启动时校验，运行期不可变
	IPPrecedence    string
	DelayMaxSeconds int

	RedisEnable bool
	RedisHost   string
	RedisPort   string
	RedisPass   string
	RedisDB     int

	PGEnable bool

	GeoIPCityPath   string
	GeoIPASNPath    string
	IP2RegionV4Path string
	GeoCacheSeconds int

	RateLimitEnabled bool
	RateLimitQPS     int
	RateLimitPerIP   int

	TLSEnable   bool
	TLSCertPath string
	TLSKeyPath  string
}

// Load：加载 .env（当前目录与 data/env/.env，缺失时忽略）后读取环境变量
func Load() Config {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	return FromEnv()
}

// FromEnv：只读环境变量，不触碰文件；解析失败的数值回退默认值
func FromEnv() Config {
	return Config{
		Addr:      str("ADDR", ":8080"),
		APIBase:   normalizeBase(os.Getenv("API_BASE")),
		LogLevel:  str("LOG_LEVEL", "info"),
		LogFormat: str("LOG_FORMAT", "text"),

		IPPrecedence:    str("IP_PRECEDENCE", "x-real-ip,remote,x-forwarded-for"),
		DelayMaxSeconds: num("DELAY_MAX_SECONDS", 30),

		RedisEnable: os.Getenv("REDIS_ENABLE") == "true",
		RedisHost:   str("REDIS_HOST", "127.0.0.1"),
		RedisPort:   str("REDIS_PORT", "6379"),
		RedisPass:   os.Getenv("REDIS_PASS"),
		RedisDB:     num("REDIS_DB", 0),

		PGEnable: os.Getenv("PG_ENABLE") == "true",

		GeoIPCityPath:   os.Getenv("GEOIP_CITY_PATH"),
		GeoIPASNPath:    os.Getenv("GEOIP_ASN_PATH"),
		IP2RegionV4Path: os.Getenv("IP2REGION_V4_PATH"),
		GeoCacheSeconds: num("GEO_CACHE_SECONDS", 3600),

		RateLimitEnabled: os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:     num("RATE_LIMIT_QPS", 200),
		RateLimitPerIP:   num("RATE_LIMIT_PER_IP", 60),

		TLSEnable:   os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath: str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:  str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
	}
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// num：非负整数；负数或非法值回退默认
func num(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// normalizeBase：统一为无尾斜杠的前缀；空或 "/" 表示挂在根路径
func normalizeBase(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/")
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}
