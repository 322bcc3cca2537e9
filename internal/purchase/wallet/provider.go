package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/purchase"
)

const defaultCurrency = "USD"

// Provider runs purchases through Apple/Google Pay, falling back to card entry.
type Provider struct {
	client  Client
	settler Settler
	log     *zap.SugaredLogger

	ready    atomic.Bool
	fellBack atomic.Bool

	mu       sync.Mutex
	hooks    purchase.Hooks
	attached bool
	prefer   bool
	payee    string
	currency string
}

type Option func(*Provider)

// WithSettler charges the issued token when the purchase is finished.
func WithSettler(s Settler) Option {
	return func(p *Provider) { p.settler = s }
}

func New(log *zap.SugaredLogger, client Client, opts ...Option) *Provider {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Provider{client: client, log: log, prefer: true, currency: defaultCurrency}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() purchase.Kind { return purchase.KindWallet }

func (p *Provider) Ready() bool { return p.ready.Load() }

// FellBack reports whether the last purchase had to use card entry.
func (p *Provider) FellBack() bool { return p.fellBack.Load() }

// Attach keeps the hooks; the wallet SDK has no asynchronous listeners.
func (p *Provider) Attach(h purchase.Hooks) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return purchase.ErrAlreadyAttached
	}
	p.hooks = h
	p.attached = true
	return nil
}

func (p *Provider) emit(ev purchase.Event) {
	p.hooks.Progress.Emit(ev)
}

// Setup validates the merchant credentials and configures the SDK. Bad
// credentials leave the provider not ready.
func (p *Provider) Setup(ctx context.Context, cfg *purchase.Config) error {
	w := cfg.Wallet
	switch {
	case w == nil || strings.TrimSpace(w.PublishableKey) == "":
		p.ready.Store(false)
		return &purchase.ConfigurationError{Kind: purchase.KindWallet, Field: "publishable key"}
	case strings.TrimSpace(w.MerchantID) == "":
		p.ready.Store(false)
		return &purchase.ConfigurationError{Kind: purchase.KindWallet, Field: "merchant id"}
	case strings.TrimSpace(w.PayeeName) == "":
		p.ready.Store(false)
		return &purchase.ConfigurationError{Kind: purchase.KindWallet, Field: "payee name"}
	}

	opts := Options{
		PublishableKey: w.PublishableKey,
		MerchantID:     w.MerchantID,
		AndroidPayMode: androidPayMode(w.PublishableKey),
	}
	p.emit(purchase.Event{Name: purchase.EventNPSetup}.
		With("publishable_key", opts.PublishableKey).
		With("android_pay_mode", opts.AndroidPayMode).
		With("merchant_id", opts.MerchantID).
		With("payee", w.PayeeName))

	if err := p.client.SetOptions(ctx, opts); err != nil {
		p.ready.Store(false)
		return purchase.NewProviderError(purchase.KindWallet, "set options", err)
	}

	p.mu.Lock()
	p.payee = w.PayeeName
	p.prefer = w.PreferNativePay == nil || *w.PreferNativePay
	if w.Currency != "" {
		p.currency = strings.ToUpper(w.Currency)
	}
	p.mu.Unlock()

	p.ready.Store(true)
	return nil
}

// Start tries the wallet sheet first. Any probe or sheet failure falls back to
// the card form within the same call; only a card-form failure is terminal.
func (p *Provider) Start(ctx context.Context, req *purchase.Request) (*purchase.Result, error) {
	if !p.Ready() {
		p.emit(purchase.NewEvent(purchase.EventNPNotSetup, req))
		return nil, fmt.Errorf("%w: native pay not initialized", purchase.ErrNotReady)
	}

	p.mu.Lock()
	prefer, payee, currency := p.prefer, p.payee, p.currency
	p.mu.Unlock()
	p.fellBack.Store(false)

	if prefer {
		tok, err := p.nativePay(ctx, req, payee, currency)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.emit(purchase.NewEvent(purchase.EventNPError, req).WithErr(err))
		} else if tok != nil && tok.TokenID != "" {
			return p.toResult(tok, req, currency, false), nil
		}
	}

	p.fellBack.Store(true)
	p.emit(purchase.NewEvent(purchase.EventCCFallback, req))
	tok, err := p.client.PaymentRequestWithCardForm(ctx)
	p.emit(purchase.NewEvent(purchase.EventCCToken, req).With("token", tok).WithErr(err))
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrUserCancelled):
		return nil, purchase.ErrCancelled
	case err != nil:
		return nil, purchase.NewProviderError(purchase.KindWallet, "card form", err)
	case tok == nil:
		return nil, nil
	case tok.TokenID == "":
		return nil, purchase.NewProviderError(purchase.KindWallet, "card form", errors.New("could not get card token"))
	}
	return p.toResult(tok, req, currency, true), nil
}

// nativePay returns a nil token without error when the device cannot pay natively.
func (p *Provider) nativePay(ctx context.Context, req *purchase.Request, payee, currency string) (*Token, error) {
	supported, err := p.client.DeviceSupportsNativePay(ctx)
	if err != nil {
		return nil, err
	}
	p.emit(purchase.NewEvent(purchase.EventNPDeviceSupport, req).With("device_supports_native_pay", supported))

	canPay := false
	if supported {
		canPay, err = p.client.CanMakeNativePayPayments(ctx)
		if err != nil {
			return nil, err
		}
	}
	p.emit(purchase.NewEvent(purchase.EventNPPaymentCapability, req).With("can_make_native_payments", canPay))
	if !canPay {
		return nil, nil
	}

	sheet := buildSheet(p.client.Platform(), req.AmountMinorUnits, req.Description, payee, currency)
	tok, err := p.client.PaymentRequestWithNativePay(ctx, sheet)
	if err != nil {
		return nil, err
	}
	p.emit(purchase.NewEvent(purchase.EventNPToken, req).With("token", tok))
	return tok, nil
}

func (p *Provider) toResult(tok *Token, req *purchase.Request, currency string, fellBack bool) *purchase.Result {
	return &purchase.Result{
		Kind:      purchase.KindWallet,
		ProductID: req.ProductID,
		Token:     tok.TokenID,
		FellBack:  fellBack,
		Raw: map[string]any{
			"amount":          req.AmountMinorUnits,
			"currency":        currency,
			"description":     req.Description,
			"is_subscription": req.IsSubscription,
		},
	}
}

// Finish settles the token when a Settler is configured.
func (p *Provider) Finish(ctx context.Context, res *purchase.Result) error {
	if p.settler == nil || res == nil || res.Token == "" {
		return nil
	}

	settle := &SettleRequest{Token: res.Token, ProductID: res.ProductID, Currency: defaultCurrency}
	settle.Amount = rawAmount(res.Raw["amount"])
	if v, ok := res.Raw["currency"].(string); ok && v != "" {
		settle.Currency = v
	}
	if v, ok := res.Raw["description"].(string); ok {
		settle.Description = v
	}
	if settle.Amount <= 0 {
		p.log.Infow("nothing to settle", "product_id", res.ProductID)
		return nil
	}

	chargeID, err := p.settler.Settle(ctx, settle)
	if err != nil {
		return fmt.Errorf("failed to settle token: %w", err)
	}
	p.emit(purchase.Event{Name: purchase.EventNPSettle, ProductID: res.ProductID, Amount: settle.Amount}.
		With("charge_id", chargeID))
	return nil
}

func (p *Provider) Close() error { return nil }

// rawAmount reads the amount back from Result.Raw, which may have crossed a JSON boundary.
func rawAmount(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
