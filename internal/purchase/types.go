package purchase

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies a payment provider.
type Kind string

const (
	KindInApp  Kind = "inapp"
	KindWallet Kind = "wallet"
)

// selectionOrder is the static provider priority used by Start.
var selectionOrder = []Kind{KindWallet, KindInApp}

// Request describes one purchase attempt.
type Request struct {
	ProductID        string `json:"product_id"`
	Description      string `json:"description"`
	AmountMinorUnits int64  `json:"amount"`
	IsSubscription   bool   `json:"is_subscription"`
}

// Validate rejects malformed requests before they reach a provider.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ProductID) == "" {
		return fmt.Errorf("%w: product id is empty", ErrInvalidRequest)
	}
	if r.AmountMinorUnits < 0 {
		return fmt.Errorf("%w: amount must not be negative: %d", ErrInvalidRequest, r.AmountMinorUnits)
	}
	return nil
}

// Result is the success token returned by a provider.
type Result struct {
	Kind          Kind           `json:"kind"`
	ProductID     string         `json:"product_id"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Token         string         `json:"token,omitempty"`
	Receipt       string         `json:"receipt,omitempty"`
	FellBack      bool           `json:"fell_back,omitempty"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// Key identifies the purchase for unfinished bookkeeping.
func (r *Result) Key() string {
	if r == nil {
		return ""
	}
	if r.TransactionID != "" {
		return r.TransactionID
	}
	if r.Token != "" {
		return r.Token
	}
	return r.ProductID
}

// InAppConfig lists the store catalog ids to look up during setup.
type InAppConfig struct {
	ProductIDs      []string `json:"product_ids" mapstructure:"product_ids"`
	SubscriptionIDs []string `json:"subscription_ids" mapstructure:"subscription_ids"`
}

// WalletConfig carries the merchant credentials for native wallet payments.
type WalletConfig struct {
	PublishableKey  string `json:"publishable_key" mapstructure:"publishable_key"`
	MerchantID      string `json:"merchant_id" mapstructure:"merchant_id"`
	PayeeName       string `json:"payee_name" mapstructure:"payee_name"`
	PreferNativePay *bool  `json:"prefer_native_pay" mapstructure:"prefer_native_pay"`
	Currency        string `json:"currency" mapstructure:"currency"`
}

// Config is the argument of Coordinator.Setup. Nil sections are skipped.
type Config struct {
	InApp  *InAppConfig  `json:"in_app,omitempty"`
	Wallet *WalletConfig `json:"wallet,omitempty"`
}

func (c *Config) has(kind Kind) bool {
	if c == nil {
		return false
	}
	switch kind {
	case KindInApp:
		return c.InApp != nil
	case KindWallet:
		return c.Wallet != nil
	default:
		return false
	}
}

// Hooks are handed to a provider when it is attached to a coordinator.
type Hooks struct {
	// Progress receives every provider milestone.
	Progress ProgressFunc
	// Unfinished receives purchases the vendor confirmed while no Start was waiting.
	Unfinished func(*Result)
}

// Provider is one payment backend behind the coordinator.
type Provider interface {
	Kind() Kind
	Ready() bool
	// Attach registers vendor listeners. It must fail when called twice.
	Attach(h Hooks) error
	Setup(ctx context.Context, cfg *Config) error
	Start(ctx context.Context, req *Request) (*Result, error)
	Finish(ctx context.Context, res *Result) error
	Close() error
}
