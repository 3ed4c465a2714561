// 程序入口：仅负责读取配置、初始化可选依赖并启动服务；路由注册在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"whoami-api/internal/api"
	"whoami-api/internal/config"
	"whoami-api/internal/geo"
	"whoami-api/internal/introspect"
	"whoami-api/internal/logger"
	"whoami-api/internal/metrics"
	"whoami-api/internal/middleware"
	"whoami-api/internal/migrate"
	"whoami-api/internal/store"
	"whoami-api/internal/utils"
	"whoami-api/internal/version"
	"whoami-api/pkg/origindefense"
)

func main() {
	cfg := config.Load()
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	l.Info("starting", "commit", version.Commit)

	// 客户端 IP 优先级在启动时确定，之后所有消费者共享同一个解析器
	res, err := introspect.ParsePrecedence(cfg.IPPrecedence)
	if err != nil {
		l.Error("config_ip_precedence_error", "value", cfg.IPPrecedence, "err", err)
		os.Exit(1)
	}
	l.Info("ip_precedence", "order", res.Order())

	deps := api.Deps{
		Builder:  introspect.NewBuilder(res),
		DelayMax: time.Duration(cfg.DelayMaxSeconds) * time.Second,
	}

	var rc *redis.Client
	if rc = utils.OpenRedis(cfg); rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	if cfg.PGEnable {
		if st := openStats(); st != nil {
			defer st.Close()
			deps.Stats = st
		}
	} else {
		l.Info("stats_disabled")
	}

	deps.Geo = openGeo(cfg, rc)

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(deps)
	if cfg.APIBase == "" {
		mux.Handle("/", apiMux)
	} else {
		mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	}
	mux.Handle("GET "+cfg.APIBase+"/metrics", metrics.Handler())
	l.Debug("config_api_base", "base", cfg.APIBase)

	od := origindefense.New(l, origindefense.OptionsFromEnv(),
		func(r *http.Request) netip.Addr { return res.FromRequest(r).Addr },
		metrics.OriginBlockedTotal.Inc,
	)
	handler := middleware.Wrap(mux, cfg, res, rc, od)
	handler = logger.AccessMiddleware(l, res)(handler)

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() {
		if cfg.TLSEnable {
			if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "whoami-api.local"); err != nil {
				errc <- err
				return
			}
			l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
			errc <- s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		l.Info("listening", "addr", cfg.Addr)
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("serve_error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		l.Info("shutdown_begin")
		// 留出时间让 /delay 等挂起中的请求完成
		sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DelayMaxSeconds+5)*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			l.Error("shutdown_error", "err", err)
		}
		l.Info("shutdown_ok")
	}
}

// openStats：连接失败只关闭统计功能，不阻断启动
func openStats() *store.Store {
	l := logger.L()
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		return nil
	}
	if err := db.Ping(); err != nil {
		l.Error("db_ping_error", "err", err)
		_ = db.Close()
		return nil
	}
	l.Info("db_ping_ok")
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		_ = db.Close()
		return nil
	}
	return store.AttachDB(db)
}

// openGeo：按配置装配 /ip-info 数据源链，MaxMind 在前、ip2region 在后
func openGeo(cfg config.Config, rc *redis.Client) *geo.Service {
	l := logger.L()
	var providers []geo.Provider
	if cfg.GeoIPCityPath != "" || cfg.GeoIPASNPath != "" {
		if mm, err := geo.OpenMaxMind(cfg.GeoIPCityPath, cfg.GeoIPASNPath); err == nil {
			providers = append(providers, mm)
		} else {
			l.Error("maxmind_open_error", "err", err)
		}
	}
	if cfg.IP2RegionV4Path != "" {
		if ir, err := geo.OpenIP2Region(cfg.IP2RegionV4Path); err == nil {
			providers = append(providers, ir)
			l.Info("ip2region_ready", "path", cfg.IP2RegionV4Path)
		} else {
			l.Error("ip2region_error", "err", err)
		}
	}
	svc := geo.NewService(rc, time.Duration(cfg.GeoCacheSeconds)*time.Second, providers...)
	l.Info("geo_providers", "providers", svc.Providers())
	return svc
}
