package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/app/service/eventlog"
	"github.com/fatflowers/paycoord/internal/pending"
	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/internal/purchase/wallet"
	"github.com/fatflowers/paycoord/pkg/config"
	"github.com/fatflowers/paycoord/pkg/logctx"
	"github.com/fatflowers/paycoord/pkg/metrics"
	"github.com/fatflowers/paycoord/pkg/types"
)

type Service struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	coord   *purchase.Coordinator
	inApp   *iap.Provider
	wallet  *wallet.Provider
	events  *eventlog.Service
	metrics *metrics.PurchaseMetrics

	// traceID of the latest API call, attached to events raised by store listeners.
	traceID atomic.Value
}

type deps struct {
	billing  iap.Client
	wallet   wallet.Client
	verifier iap.Verifier
	settler  wallet.Settler
	store    pending.Store
	events   *eventlog.Service
	metrics  *metrics.PurchaseMetrics
}

func newService(cfg *config.Config, log *zap.SugaredLogger, d deps) (*Service, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Service{cfg: cfg, log: log, events: d.events, metrics: d.metrics}
	s.traceID.Store("")

	var iapOpts []iap.Option
	if d.verifier != nil {
		iapOpts = append(iapOpts, iap.WithVerifier(d.verifier))
	}
	s.inApp = iap.New(log.With("provider", purchase.KindInApp), d.billing, iapOpts...)

	var walletOpts []wallet.Option
	if d.settler != nil {
		walletOpts = append(walletOpts, wallet.WithSettler(d.settler))
	}
	s.wallet = wallet.New(log.With("provider", purchase.KindWallet), d.wallet, walletOpts...)

	var coordOpts []purchase.Option
	if d.store != nil {
		coordOpts = append(coordOpts, purchase.WithPendingStore(d.store, cfg.Pending.Key))
	}
	coord, err := purchase.New(log, s.onProgress, []purchase.Provider{s.inApp, s.wallet}, coordOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build purchase coordinator: %w", err)
	}
	s.coord = coord
	return s, nil
}

// onProgress fans every event out to the log, metrics and the event store.
func (s *Service) onProgress(ev purchase.Event) {
	traceID, _ := s.traceID.Load().(string)
	provider, _ := ev.Meta["provider"].(string)

	fields := []any{"event", ev.Name, "product_id", ev.ProductID, "trace_id", traceID}
	if provider != "" {
		fields = append(fields, "provider", provider)
	}
	if ev.Err != nil {
		s.log.Warnw("purchase_progress", append(fields, "error", ev.Err)...)
	} else {
		s.log.Infow("purchase_progress", fields...)
	}

	if s.metrics != nil {
		s.metrics.IncEvent(ev.Name, provider)
	}
	if s.events != nil {
		s.events.Record(logctx.WithTraceID(context.Background(), traceID), ev)
	}
}

func (s *Service) Status() *Status {
	st := &Status{
		Ready:      s.coord.Ready(),
		Processing: s.coord.Processing(),
		FellBack:   s.wallet.FellBack(),
		Unfinished: len(s.coord.Unfinished()),
	}
	for _, kind := range s.coord.Kinds() {
		st.Providers = append(st.Providers, &ProviderStatus{
			Kind:       kind,
			Ready:      s.coord.ProviderReady(kind),
			Processing: s.coord.ProviderProcessing(kind),
		})
	}
	return st
}

func (s *Service) Setup(ctx context.Context) error {
	s.traceID.Store(logctx.TraceID(ctx))
	return s.coord.Setup(ctx, s.purchaseConfig())
}

// purchaseConfig derives the in-app catalog from the configured items when
// the in_app section does not list product ids itself.
func (s *Service) purchaseConfig() *purchase.Config {
	pc := &purchase.Config{InApp: s.cfg.InApp, Wallet: s.cfg.Wallet}
	if pc.InApp == nil && len(s.cfg.Catalog) > 0 {
		subs, products := lo.FilterReject(s.cfg.Catalog, func(item *types.CatalogItem, _ int) bool {
			return item.IsSubscription()
		})
		pc.InApp = &purchase.InAppConfig{
			ProductIDs:      lo.Map(products, func(item *types.CatalogItem, _ int) string { return item.ProductID() }),
			SubscriptionIDs: lo.Map(subs, func(item *types.CatalogItem, _ int) string { return item.ProductID() }),
		}
	}
	return pc
}

// resolve fills the purchase request from the catalog.
func (s *Service) resolve(req *StartRequest) *purchase.Request {
	out := &purchase.Request{ProductID: req.ProductID, Description: req.Description}
	if item := s.cfg.GetCatalogItemByID(req.ProductID); item != nil {
		out.ProductID = item.ProductID()
		out.AmountMinorUnits = item.Amount
		out.IsSubscription = item.IsSubscription()
		if out.Description == "" {
			out.Description = item.Description
		}
	}
	if req.Amount != nil {
		out.AmountMinorUnits = *req.Amount
	}
	if req.IsSubscription != nil {
		out.IsSubscription = *req.IsSubscription
	}
	return out
}

func (s *Service) Start(ctx context.Context, req *StartRequest) (*purchase.Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", purchase.ErrInvalidRequest)
	}
	s.traceID.Store(logctx.TraceID(ctx))
	if s.cfg.PurchaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PurchaseTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.coord.Start(ctx, s.resolve(req))
	if s.metrics != nil {
		provider := ""
		if res != nil {
			provider = string(res.Kind)
		}
		s.metrics.ObserveDuration(provider, outcome(err), start)
	}
	return res, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, purchase.ErrCancelled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, purchase.ErrNotReady):
		return "not_ready"
	case errors.Is(err, purchase.ErrAlreadyProcessing):
		return "already_processing"
	case errors.Is(err, purchase.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

func (s *Service) Finish(ctx context.Context, res *purchase.Result) error {
	s.traceID.Store(logctx.TraceID(ctx))
	return s.coord.Finish(ctx, res)
}

func (s *Service) Reset(ctx context.Context) {
	s.traceID.Store(logctx.TraceID(ctx))
	s.coord.Reset(ctx)
}

func (s *Service) Unfinished() []*purchase.Unfinished {
	return s.coord.Unfinished()
}

func (s *Service) Catalog() *Catalog {
	return &Catalog{
		Items:         s.cfg.Catalog,
		Products:      s.inApp.Products(),
		Subscriptions: s.inApp.Subscriptions(),
	}
}

func (s *Service) Close() error {
	return s.coord.Close()
}
