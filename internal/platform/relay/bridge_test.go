package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paycoord/internal/platform/relay"
	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/internal/purchase/wallet"
)

// device answers queued calls with handle until ctx is done.
func device(ctx context.Context, t *testing.T, b *relay.Bridge, handle func(*relay.Call) relay.Reply) {
	go func() {
		for {
			call, err := b.Next(ctx)
			if err != nil {
				return
			}
			reply := handle(call)
			if err := b.Resolve(call.ID, reply); err != nil {
				t.Errorf("resolve %s: %v", call.Method, err)
			}
		}
	}()
}

func result(v any) relay.Reply {
	raw, _ := json.Marshal(v)
	return relay.Reply{Result: raw}
}

func TestBridge_InAppPurchaseThroughDevice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := relay.NewBridge(nil, relay.Config{CallTimeout: time.Second})

	device(ctx, t, b, func(call *relay.Call) relay.Reply {
		switch call.Method {
		case "iap.get_products":
			return result([]*iap.Product{{ProductID: "coffee_mug", Price: "4.99"}})
		case "iap.request_purchase":
			var args struct {
				ProductID string `json:"product_id"`
			}
			if err := json.Unmarshal(call.Args, &args); err != nil {
				t.Errorf("decode args: %v", err)
			}
			go func() {
				_ = b.Dispatch(&relay.DeviceEvent{
					Type:     relay.EventPurchaseUpdated,
					Purchase: &iap.Purchase{ProductID: args.ProductID, TransactionID: "tx-relay"},
				})
			}()
			return relay.Reply{}
		default:
			return relay.Reply{}
		}
	})

	c, err := purchase.New(nil, nil, []purchase.Provider{iap.New(nil, b.Billing())})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))
	res, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	require.NoError(t, err)
	require.Equal(t, "tx-relay", res.TransactionID)
	require.NoError(t, c.Finish(ctx, res))
	require.Zero(t, b.PendingCalls())
}

func TestBridge_CallTimeout(t *testing.T) {
	b := relay.NewBridge(nil, relay.Config{CallTimeout: 20 * time.Millisecond})

	err := b.Billing().InitConnection(context.Background())
	require.ErrorIs(t, err, relay.ErrCallTimeout)
	require.Zero(t, b.PendingCalls())
}

func TestBridge_NextSkipsAbandonedCalls(t *testing.T) {
	b := relay.NewBridge(nil, relay.Config{CallTimeout: 20 * time.Millisecond})

	err := b.Billing().RequestPurchase(context.Background(), "coffee_mug")
	require.ErrorIs(t, err, relay.ErrCallTimeout)
	require.Zero(t, b.PendingCalls())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	call, err := b.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, call)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	device(ctx, t, b, func(call *relay.Call) relay.Reply {
		if call.Method != "wallet.payment_request_with_card_form" {
			t.Errorf("device got abandoned call %s", call.Method)
		}
		return result(&wallet.Token{TokenID: "tok_live"})
	})
	tok, err := b.Wallet().PaymentRequestWithCardForm(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok_live", tok.TokenID)
}

func TestBridge_CancelledReplies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := relay.NewBridge(nil, relay.Config{Platform: wallet.PlatformAndroid})
	device(ctx, t, b, func(*relay.Call) relay.Reply {
		return relay.Reply{Error: &relay.ReplyError{Code: iap.CodeUserCancelled, Message: "dismissed"}}
	})

	_, err := b.Wallet().PaymentRequestWithCardForm(ctx)
	require.ErrorIs(t, err, wallet.ErrUserCancelled)
	require.Equal(t, wallet.PlatformAndroid, b.Wallet().Platform())

	err = b.Billing().RequestPurchase(ctx, "coffee_mug")
	perr, ok := err.(*iap.PurchaseError)
	require.True(t, ok)
	require.True(t, perr.Cancelled())
}

func TestBridge_WalletToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := relay.NewBridge(nil, relay.Config{})
	var sheet wallet.Sheet
	device(ctx, t, b, func(call *relay.Call) relay.Reply {
		switch call.Method {
		case "wallet.payment_request_with_native_pay":
			if err := json.Unmarshal(call.Args, &sheet); err != nil {
				t.Errorf("decode sheet: %v", err)
			}
			return result(&wallet.Token{TokenID: "tok_apple"})
		default:
			return result(true)
		}
	})

	w := b.Wallet()
	ok, err := w.DeviceSupportsNativePay(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	tok, err := w.PaymentRequestWithNativePay(ctx, &wallet.Sheet{Platform: wallet.PlatformIOS, Items: []wallet.SheetItem{{Label: "Mug", Amount: "5"}}})
	require.NoError(t, err)
	require.Equal(t, "tok_apple", tok.TokenID)
	require.Equal(t, "Mug", sheet.Items[0].Label)
	require.Equal(t, wallet.PlatformIOS, w.Platform())
}

func TestBridge_UnknownCallAndEvent(t *testing.T) {
	b := relay.NewBridge(nil, relay.Config{})

	require.ErrorIs(t, b.Resolve("missing", relay.Reply{}), relay.ErrUnknownCall)
	require.ErrorIs(t, b.Dispatch(&relay.DeviceEvent{Type: "bogus"}), relay.ErrUnknownEvent)
	require.Error(t, b.Dispatch(&relay.DeviceEvent{Type: relay.EventPurchaseUpdated}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
