package checkout

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/paycoord/internal/app/service/eventlog"
	"github.com/fatflowers/paycoord/internal/pending"
	"github.com/fatflowers/paycoord/internal/pending/memory"
	"github.com/fatflowers/paycoord/internal/pending/postgres"
	"github.com/fatflowers/paycoord/internal/platform/appstore"
	"github.com/fatflowers/paycoord/internal/platform/relay"
	stripegw "github.com/fatflowers/paycoord/internal/platform/stripe"
	"github.com/fatflowers/paycoord/pkg/config"
	"github.com/fatflowers/paycoord/pkg/metrics"
)

// NewService wires the coordinator to the device relay and the configured
// verification and settlement backends.
func NewService(cfg *config.Config, log *zap.SugaredLogger, bridge *relay.Bridge, db *gorm.DB, events *eventlog.Service, pm *metrics.PurchaseMetrics) (*Service, error) {
	d := deps{
		billing: bridge.Billing(),
		wallet:  bridge.Wallet(),
		events:  events,
		metrics: pm,
	}

	if cfg.AppleIAP.Enabled() {
		v, err := appstore.NewVerifier(log, &appstore.Options{
			KeyID:        cfg.AppleIAP.KeyID,
			KeyContent:   cfg.AppleIAP.KeyContent,
			BundleID:     cfg.AppleIAP.BundleID,
			Issuer:       cfg.AppleIAP.Issuer,
			SharedSecret: cfg.AppleIAP.SharedSecret,
			Sandbox:      !cfg.AppleIAP.IsProd,
			Production:   cfg.AppleIAP.IsProd,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create app store verifier: %w", err)
		}
		d.verifier = v
	}

	if cfg.Stripe.SecretKey != "" {
		st, err := stripegw.New(log, cfg.Stripe.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create stripe settler: %w", err)
		}
		d.settler = st
	}

	store, err := newPendingStore(cfg, db)
	if err != nil {
		return nil, err
	}
	d.store = store

	return newService(cfg, log, d)
}

func newPendingStore(cfg *config.Config, db *gorm.DB) (pending.Store, error) {
	switch cfg.Pending.Store {
	case "", "memory":
		return memory.NewInMemory(), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("pending store %q requires a database", cfg.Pending.Store)
		}
		return postgres.NewInPostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown pending store %q", cfg.Pending.Store)
	}
}

func newBridge(cfg *config.Config, log *zap.SugaredLogger) *relay.Bridge {
	return relay.NewBridge(log.With("component", "relay"), relay.Config{
		CallTimeout: cfg.Relay.CallTimeout,
		Platform:    cfg.Relay.Platform,
	})
}

func newPurchaseMetrics() (*metrics.PurchaseMetrics, error) {
	return metrics.NewPurchaseMetrics(prometheus.DefaultRegisterer, "paycoord")
}

func registerClose(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})
}

var Module = fx.Options(
	fx.Provide(
		newBridge,
		newPurchaseMetrics,
		NewService,
		func(s *Service) Manager { return s },
	),
	fx.Invoke(registerClose),
)
