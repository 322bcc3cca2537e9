package iap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/purchase"
)

type outcome struct {
	purchase *Purchase
	err      error
}

// waiter is the live Start call expecting a purchase for productID.
type waiter struct {
	productID string
	// ch is written at most once, under p.mu.
	ch chan outcome
}

// Provider runs purchases through the platform in-app billing store.
type Provider struct {
	client   Client
	verifier Verifier
	log      *zap.SugaredLogger

	ready atomic.Bool

	mu            sync.Mutex
	hooks         purchase.Hooks
	attached      bool
	remove        func()
	waiter        *waiter
	seen          map[string]*Purchase
	products      []*Product
	subscriptions []*Product
	lastPurchase  *Purchase
	lastError     *PurchaseError
}

type Option func(*Provider)

// WithVerifier checks every purchase handed to a live Start.
func WithVerifier(v Verifier) Option {
	return func(p *Provider) { p.verifier = v }
}

func New(log *zap.SugaredLogger, client Client, opts ...Option) *Provider {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Provider{client: client, log: log, seen: map[string]*Purchase{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() purchase.Kind { return purchase.KindInApp }

func (p *Provider) Ready() bool { return p.ready.Load() }

// Attach registers the store listener. A second call fails so events are
// never delivered twice.
func (p *Provider) Attach(h purchase.Hooks) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return purchase.ErrAlreadyAttached
	}
	p.hooks = h
	p.remove = p.client.AddListener(listener{p})
	p.attached = true
	return nil
}

func (p *Provider) emit(ev purchase.Event) {
	p.hooks.Progress.Emit(ev)
}

// Setup fetches the catalog. The provider only becomes ready once the lookup
// returned at least one item; purchasing earlier risks charging for a product
// whose price was never confirmed.
func (p *Provider) Setup(ctx context.Context, cfg *purchase.Config) error {
	in := cfg.InApp
	if in == nil || (len(in.ProductIDs) == 0 && len(in.SubscriptionIDs) == 0) {
		return &purchase.ConfigurationError{Kind: purchase.KindInApp, Field: "product ids"}
	}
	p.emit(purchase.Event{Name: purchase.EventIAPSetup}.
		With("product_ids", in.ProductIDs).
		With("subscription_ids", in.SubscriptionIDs))

	if err := p.client.InitConnection(ctx); err != nil {
		return purchase.NewProviderError(purchase.KindInApp, "init connection", err)
	}

	var found int
	if len(in.ProductIDs) > 0 {
		startTime := time.Now()
		products, err := p.client.GetProducts(ctx, in.ProductIDs)
		if err != nil {
			return purchase.NewProviderError(purchase.KindInApp, "get products", err)
		}
		p.emit(purchase.Event{Name: purchase.EventIAPSetupProducts}.
			With("products", products).
			With("elapsed", time.Since(startTime).Milliseconds()).
			With("product_ids", in.ProductIDs))
		found += len(products)
		p.mu.Lock()
		p.products = products
		p.mu.Unlock()
	}
	if len(in.SubscriptionIDs) > 0 {
		startTime := time.Now()
		subscriptions, err := p.client.GetSubscriptions(ctx, in.SubscriptionIDs)
		if err != nil {
			return purchase.NewProviderError(purchase.KindInApp, "get subscriptions", err)
		}
		p.emit(purchase.Event{Name: purchase.EventIAPSetupSubscriptions}.
			With("subscriptions", subscriptions).
			With("elapsed", time.Since(startTime).Milliseconds()).
			With("subscription_ids", in.SubscriptionIDs))
		found += len(subscriptions)
		p.mu.Lock()
		p.subscriptions = subscriptions
		p.mu.Unlock()
	}

	if found == 0 {
		return purchase.NewProviderError(purchase.KindInApp, "setup", errors.New("store returned no catalog items"))
	}
	p.ready.Store(true)
	p.emit(purchase.Event{Name: purchase.EventIAPReady})
	return nil
}

// Start places the store request and waits for the listener to deliver its outcome.
func (p *Provider) Start(ctx context.Context, req *purchase.Request) (*purchase.Result, error) {
	if !p.Ready() {
		p.emit(purchase.NewEvent(purchase.EventIAPEarlyPurchase, req))
		return nil, fmt.Errorf("%w: in-app payments have not been initialized", purchase.ErrNotReady)
	}

	w := &waiter{productID: req.ProductID, ch: make(chan outcome, 1)}
	p.mu.Lock()
	if p.waiter != nil {
		p.mu.Unlock()
		return nil, purchase.ErrAlreadyProcessing
	}
	p.waiter = w
	p.mu.Unlock()
	defer p.abandon(w)

	requesting, requested, cancelled := purchase.EventIAPRequestingPurchase, purchase.EventIAPRequestedPurchase, purchase.EventIAPPurchaseCancelled
	request := p.client.RequestPurchase
	if req.IsSubscription {
		requesting, requested, cancelled = purchase.EventIAPRequestingSubscription, purchase.EventIAPRequestedSubscription, purchase.EventIAPSubscriptionCancelled
		request = p.client.RequestSubscription
	}

	p.emit(purchase.NewEvent(requesting, req))
	if err := request(ctx, req.ProductID); err != nil {
		var perr *PurchaseError
		if errors.As(err, &perr) && perr.Cancelled() {
			p.emit(purchase.NewEvent(cancelled, req))
			return nil, purchase.ErrCancelled
		}
		return nil, purchase.NewProviderError(purchase.KindInApp, "request", err)
	}

	var out outcome
	select {
	case out = <-w.ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if out.err != nil {
		var perr *PurchaseError
		if errors.As(out.err, &perr) && perr.Cancelled() {
			p.emit(purchase.NewEvent(cancelled, req))
			return nil, purchase.ErrCancelled
		}
		return nil, purchase.NewProviderError(purchase.KindInApp, "purchase", out.err)
	}

	if p.verifier != nil {
		if err := p.verifier.VerifyPurchase(ctx, out.purchase); err != nil {
			p.emit(purchase.NewEvent(purchase.EventIAPVerifyFailed, req).With("purchase", out.purchase).WithErr(err))
			return nil, purchase.NewProviderError(purchase.KindInApp, "verify", err)
		}
	}

	p.emit(purchase.NewEvent(requested, req).With("purchase", out.purchase))
	return toResult(out.purchase), nil
}

// abandon detaches w. A purchase the listener delivered after Start stopped
// reading is handed to the unfinished hook instead of being lost.
func (p *Provider) abandon(w *waiter) {
	p.mu.Lock()
	if p.waiter == w {
		p.waiter = nil
	}
	var out outcome
	select {
	case out = <-w.ch:
	default:
	}
	unfinished := p.hooks.Unfinished
	p.mu.Unlock()

	if out.purchase == nil {
		return
	}
	p.log.Infow("purchase delivered after the request was abandoned", "product_id", out.purchase.ProductID, "transaction_id", out.purchase.TransactionID)
	if unfinished != nil {
		unfinished(toResult(out.purchase))
	}
}

// Finish acknowledges the transaction so the store stops redelivering it.
func (p *Provider) Finish(ctx context.Context, res *purchase.Result) error {
	if res == nil {
		return nil
	}
	p.mu.Lock()
	pur, ok := p.seen[res.Key()]
	p.mu.Unlock()
	if !ok {
		pur = &Purchase{ProductID: res.ProductID, TransactionID: res.TransactionID, TransactionReceipt: res.Receipt}
	}

	if err := p.client.FinishTransaction(ctx, pur); err != nil {
		return fmt.Errorf("failed to finish transaction %s: %w", pur.TransactionID, err)
	}

	p.mu.Lock()
	delete(p.seen, res.Key())
	p.mu.Unlock()
	return nil
}

// Close removes the store listener.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remove != nil {
		p.remove()
		p.remove = nil
	}
	return nil
}

// Products returns the catalog fetched during Setup, priced in local currency.
func (p *Provider) Products() []*Product {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Product(nil), p.products...)
}

func (p *Provider) Subscriptions() []*Product {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Product(nil), p.subscriptions...)
}

// LastPurchase is useful when the original request timed out.
func (p *Provider) LastPurchase() *Purchase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPurchase
}

func (p *Provider) LastError() *PurchaseError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

func (p *Provider) onPurchaseUpdated(pur *Purchase) {
	if pur == nil {
		return
	}
	p.emit(purchase.Event{Name: purchase.EventIAPListenerUpdate, ProductID: pur.ProductID}.With("purchase", pur))

	res := toResult(pur)
	p.mu.Lock()
	p.lastPurchase = pur
	p.seen[res.Key()] = pur
	w := p.waiter
	if w != nil && w.productID == pur.ProductID {
		p.waiter = nil
		w.ch <- outcome{purchase: pur}
		p.mu.Unlock()
		return
	}
	unfinished := p.hooks.Unfinished
	p.mu.Unlock()

	p.log.Infow("purchase update without a waiting request", "product_id", pur.ProductID, "transaction_id", pur.TransactionID)
	if unfinished != nil {
		unfinished(res)
	}
}

func (p *Provider) onPurchaseError(perr *PurchaseError) {
	if perr == nil {
		return
	}
	p.emit(purchase.Event{Name: purchase.EventIAPListenerError, ProductID: perr.ProductID}.
		With("error", perr).
		WithErr(perr))

	p.mu.Lock()
	p.lastError = perr
	w := p.waiter
	if w != nil && (perr.ProductID == "" || perr.ProductID == w.productID) {
		p.waiter = nil
		w.ch <- outcome{err: perr}
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
}

type listener struct{ p *Provider }

func (l listener) OnPurchaseUpdated(pur *Purchase) { l.p.onPurchaseUpdated(pur) }
func (l listener) OnPurchaseError(perr *PurchaseError) { l.p.onPurchaseError(perr) }

func toResult(pur *Purchase) *purchase.Result {
	receipt := pur.TransactionReceipt
	if receipt == "" {
		receipt = pur.SignedTransaction
	}
	return &purchase.Result{
		Kind:          purchase.KindInApp,
		ProductID:     pur.ProductID,
		TransactionID: pur.TransactionID,
		Receipt:       receipt,
		Raw: map[string]any{
			"transaction_date": pur.TransactionDate,
		},
	}
}
