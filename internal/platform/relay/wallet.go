package relay

import (
	"context"
	"errors"

	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/internal/purchase/wallet"
)

// WalletClient runs native wallet SDK calls on the device.
type WalletClient struct{ b *Bridge }

var _ wallet.Client = (*WalletClient)(nil)

func (b *Bridge) Wallet() *WalletClient { return &WalletClient{b: b} }

func (c *WalletClient) Platform() string {
	if c.b.platform == "" {
		return wallet.PlatformIOS
	}
	return c.b.platform
}

func (c *WalletClient) SetOptions(ctx context.Context, opts wallet.Options) error {
	return walletErr(c.b.invoke(ctx, "wallet.set_options", opts, nil, false))
}

func (c *WalletClient) DeviceSupportsNativePay(ctx context.Context) (bool, error) {
	var ok bool
	err := c.b.invoke(ctx, "wallet.device_supports_native_pay", nil, &ok, false)
	return ok, walletErr(err)
}

func (c *WalletClient) CanMakeNativePayPayments(ctx context.Context) (bool, error) {
	var ok bool
	err := c.b.invoke(ctx, "wallet.can_make_native_pay_payments", nil, &ok, false)
	return ok, walletErr(err)
}

func (c *WalletClient) PaymentRequestWithNativePay(ctx context.Context, sheet *wallet.Sheet) (*wallet.Token, error) {
	var tok *wallet.Token
	err := c.b.invoke(ctx, "wallet.payment_request_with_native_pay", sheet, &tok, true)
	return tok, walletErr(err)
}

func (c *WalletClient) PaymentRequestWithCardForm(ctx context.Context) (*wallet.Token, error) {
	var tok *wallet.Token
	err := c.b.invoke(ctx, "wallet.payment_request_with_card_form", nil, &tok, true)
	return tok, walletErr(err)
}

func walletErr(err error) error {
	var rerr *ReplyError
	if errors.As(err, &rerr) && rerr.Code == iap.CodeUserCancelled {
		return wallet.ErrUserCancelled
	}
	return err
}
