// Package purchasetest provides in-memory SDK fakes and an event recorder for tests.
package purchasetest

import (
	"context"
	"sync"

	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/internal/purchase/wallet"
)

// Recorder collects progress events.
type Recorder struct {
	mu     sync.Mutex
	events []purchase.Event
}

func (r *Recorder) Func() purchase.ProgressFunc {
	return func(ev purchase.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

func (r *Recorder) Events() []purchase.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]purchase.Event(nil), r.events...)
}

func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		names = append(names, ev.Name)
	}
	return names
}

// Index returns the position of the first event called name, or -1.
func (r *Recorder) Index(name string) int {
	for i, n := range r.Names() {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *Recorder) Has(name string) bool { return r.Index(name) >= 0 }

// BillingClient is a scriptable iap.Client.
type BillingClient struct {
	mu sync.Mutex

	Products      map[string]*iap.Product
	Subscriptions map[string]*iap.Product
	InitErr       error
	RequestErr    error
	FinishErr     error
	// OnRequest runs after a purchase or subscription request is recorded.
	OnRequest func(productID string)

	Requests  []string
	Finished  []*iap.Purchase
	listeners map[int]iap.Listener
	nextID    int
}

func NewBillingClient(productIDs ...string) *BillingClient {
	c := &BillingClient{
		Products:      map[string]*iap.Product{},
		Subscriptions: map[string]*iap.Product{},
		listeners:     map[int]iap.Listener{},
	}
	for _, id := range productIDs {
		c.Products[id] = &iap.Product{ProductID: id, Price: "4.99", Currency: "USD"}
	}
	return c
}

func (c *BillingClient) InitConnection(context.Context) error { return c.InitErr }

func (c *BillingClient) GetProducts(_ context.Context, ids []string) ([]*iap.Product, error) {
	return c.lookup(c.Products, ids), nil
}

func (c *BillingClient) GetSubscriptions(_ context.Context, ids []string) ([]*iap.Product, error) {
	return c.lookup(c.Subscriptions, ids), nil
}

func (c *BillingClient) lookup(catalog map[string]*iap.Product, ids []string) []*iap.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*iap.Product
	for _, id := range ids {
		if p, ok := catalog[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (c *BillingClient) RequestPurchase(_ context.Context, productID string) error {
	return c.request(productID)
}

func (c *BillingClient) RequestSubscription(_ context.Context, productID string) error {
	return c.request(productID)
}

func (c *BillingClient) request(productID string) error {
	c.mu.Lock()
	c.Requests = append(c.Requests, productID)
	err, hook := c.RequestErr, c.OnRequest
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(productID)
	}
	return nil
}

func (c *BillingClient) FinishTransaction(_ context.Context, p *iap.Purchase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FinishErr != nil {
		return c.FinishErr
	}
	c.Finished = append(c.Finished, p)
	return nil
}

func (c *BillingClient) AddListener(l iap.Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *BillingClient) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *BillingClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

func (c *BillingClient) FinishedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Finished)
}

func (c *BillingClient) snapshot() []iap.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]iap.Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}

// PurchaseUpdated delivers p to every registered listener.
func (c *BillingClient) PurchaseUpdated(p *iap.Purchase) {
	for _, l := range c.snapshot() {
		l.OnPurchaseUpdated(p)
	}
}

// PurchaseFailed delivers e to every registered listener.
func (c *BillingClient) PurchaseFailed(e *iap.PurchaseError) {
	for _, l := range c.snapshot() {
		l.OnPurchaseError(e)
	}
}

// WalletClient is a scriptable wallet.Client.
type WalletClient struct {
	mu sync.Mutex

	OS            string
	OptionsErr    error
	DeviceSupport bool
	DeviceErr     error
	CanPay        bool
	CanPayErr     error
	SheetToken    *wallet.Token
	SheetErr      error
	CardToken     *wallet.Token
	CardErr       error
	// BlockCardForm makes the card form wait for ctx cancellation.
	BlockCardForm bool

	Options   []wallet.Options
	Sheets    []*wallet.Sheet
	CardCalls int
}

func (c *WalletClient) Platform() string {
	if c.OS == "" {
		return wallet.PlatformIOS
	}
	return c.OS
}

func (c *WalletClient) SetOptions(_ context.Context, opts wallet.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Options = append(c.Options, opts)
	return c.OptionsErr
}

func (c *WalletClient) DeviceSupportsNativePay(context.Context) (bool, error) {
	return c.DeviceSupport, c.DeviceErr
}

func (c *WalletClient) CanMakeNativePayPayments(context.Context) (bool, error) {
	return c.CanPay, c.CanPayErr
}

func (c *WalletClient) PaymentRequestWithNativePay(_ context.Context, sheet *wallet.Sheet) (*wallet.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sheets = append(c.Sheets, sheet)
	return c.SheetToken, c.SheetErr
}

func (c *WalletClient) PaymentRequestWithCardForm(ctx context.Context) (*wallet.Token, error) {
	c.mu.Lock()
	c.CardCalls++
	block := c.BlockCardForm
	c.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return c.CardToken, c.CardErr
}

func (c *WalletClient) SheetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sheets)
}

func (c *WalletClient) CardCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CardCalls
}
