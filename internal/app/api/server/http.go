package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/app/api/handlers"
	mw "github.com/fatflowers/paycoord/internal/app/api/middleware"
	"github.com/fatflowers/paycoord/internal/app/service/checkout"
	"github.com/fatflowers/paycoord/internal/app/service/eventlog"
	"github.com/fatflowers/paycoord/internal/platform/relay"
	cfgpkg "github.com/fatflowers/paycoord/pkg/config"
	"github.com/fatflowers/paycoord/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env != cfgpkg.EnvDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log    *zap.SugaredLogger
	Cfg    *cfgpkg.Config
	Mgr    checkout.Manager
	Events *eventlog.Service
	Bridge *relay.Bridge
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	if d.Cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			Subsystem: "paycoord",
			Logger:    d.Log,
		})
		p.SetListenAddress(d.Cfg.MetricsAddr)
		p.Use(r)

		d.Log.Infow("metrics started", "addr", d.Cfg.MetricsAddr)
	}

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware(d.Log))
	handlers.RegisterHealthRoutes(pub, d.Mgr)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware(d.Log))

	purchase := apiV1.Group("/purchase")
	handlers.RegisterPurchaseRoutes(purchase, d.Mgr)
	handlers.RegisterEventRoutes(purchase.Group("/events"), d.Events)

	// The device polls continuously; keep it out of the access log.
	relayGroup := r.Group("/api/v1/relay")
	relayGroup.Use(mw.RequestLoggerMiddleware(d.Log))
	handlers.RegisterRelayRoutes(relayGroup, d.Bridge)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server error", "error", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
