package wallet

import (
	"context"
	"errors"
)

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"

	AndroidPayModeProduction = "production"
	AndroidPayModeTest       = "test"
)

// ErrUserCancelled is returned by a Client when the user dismisses a sheet or form.
var ErrUserCancelled = errors.New("cancelled by user")

// Options configures the wallet SDK. Dev mode follows the publishable key.
type Options struct {
	PublishableKey string `json:"publishable_key"`
	MerchantID     string `json:"merchant_id"`
	AndroidPayMode string `json:"android_pay_mode"`
}

// Token is the card token issued by the wallet sheet or the card form.
type Token struct {
	TokenID  string         `json:"token_id"`
	Created  int64          `json:"created,omitempty"`
	Livemode bool           `json:"livemode,omitempty"`
	Card     map[string]any `json:"card,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Client is the native wallet SDK surface the provider depends on.
type Client interface {
	// Platform reports "ios" or "android"; it selects the sheet layout.
	Platform() string
	SetOptions(ctx context.Context, opts Options) error
	DeviceSupportsNativePay(ctx context.Context) (bool, error)
	CanMakeNativePayPayments(ctx context.Context) (bool, error)
	PaymentRequestWithNativePay(ctx context.Context, sheet *Sheet) (*Token, error)
	PaymentRequestWithCardForm(ctx context.Context) (*Token, error)
}

// Settler captures the payment behind a token once the purchase is recorded.
type Settler interface {
	Settle(ctx context.Context, req *SettleRequest) (chargeID string, err error)
}

type SettleRequest struct {
	Token       string
	Amount      int64
	Currency    string
	Description string
	ProductID   string
}
