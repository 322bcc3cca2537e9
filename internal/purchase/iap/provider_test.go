package iap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/internal/purchase/purchasetest"
)

type stubVerifier struct{ err error }

func (s stubVerifier) VerifyPurchase(context.Context, *iap.Purchase) error { return s.err }

func attached(t *testing.T, client *purchasetest.BillingClient, opts ...iap.Option) (*iap.Provider, *purchasetest.Recorder, *[]*purchase.Result) {
	t.Helper()
	rec := &purchasetest.Recorder{}
	var late []*purchase.Result
	p := iap.New(nil, client, opts...)
	require.NoError(t, p.Attach(purchase.Hooks{
		Progress:   rec.Func(),
		Unfinished: func(r *purchase.Result) { late = append(late, r) },
	}))
	t.Cleanup(func() { _ = p.Close() })
	return p, rec, &late
}

func TestSetup_RequiresCatalog(t *testing.T) {
	p, _, _ := attached(t, purchasetest.NewBillingClient())

	err := p.Setup(context.Background(), &purchase.Config{InApp: &purchase.InAppConfig{}})
	var cerr *purchase.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "product ids", cerr.Field)
	require.ErrorIs(t, err, purchase.ErrConfiguration)
	require.False(t, p.Ready())
}

func TestSetup_EmptyStoreCatalogIsNotReady(t *testing.T) {
	p, rec, _ := attached(t, purchasetest.NewBillingClient())

	err := p.Setup(context.Background(), &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"unknown"}}})
	require.ErrorIs(t, err, purchase.ErrProvider)
	require.False(t, p.Ready())
	require.True(t, rec.Has(purchase.EventIAPSetupProducts))
	require.False(t, rec.Has(purchase.EventIAPReady))
}

func TestSetup_ConnectionFailure(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	client.InitErr = errors.New("billing unavailable")
	p, _, _ := attached(t, client)

	err := p.Setup(context.Background(), &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}})
	var perr *purchase.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "init connection", perr.Op)
	require.False(t, p.Ready())
}

func TestSetup_LoadsProductsAndSubscriptions(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	client.Subscriptions["monthly"] = &iap.Product{ProductID: "monthly", Price: "9.99", Currency: "USD"}
	p, rec, _ := attached(t, client)

	require.NoError(t, p.Setup(context.Background(), &purchase.Config{InApp: &purchase.InAppConfig{
		ProductIDs:      []string{"coffee_mug"},
		SubscriptionIDs: []string{"monthly"},
	}}))
	require.True(t, p.Ready())
	require.Len(t, p.Products(), 1)
	require.Len(t, p.Subscriptions(), 1)
	require.True(t, rec.Has(purchase.EventIAPSetupSubscriptions))
	require.True(t, rec.Has(purchase.EventIAPReady))
}

func TestStart_NotReady(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	p, rec, _ := attached(t, client)

	_, err := p.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug"})
	require.ErrorIs(t, err, purchase.ErrNotReady)
	require.True(t, rec.Has(purchase.EventIAPEarlyPurchase))
	require.Zero(t, client.RequestCount())
}

func ready(t *testing.T, client *purchasetest.BillingClient, opts ...iap.Option) (*iap.Provider, *purchasetest.Recorder, *[]*purchase.Result) {
	t.Helper()
	p, rec, late := attached(t, client, opts...)
	require.NoError(t, p.Setup(context.Background(), &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))
	return p, rec, late
}

func TestStart_Subscription(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	client.OnRequest = func(productID string) {
		client.PurchaseUpdated(&iap.Purchase{ProductID: productID, TransactionID: "sub-1", SignedTransaction: "jws"})
	}
	p, rec, _ := ready(t, client)

	res, err := p.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug", IsSubscription: true})
	require.NoError(t, err)
	require.Equal(t, "sub-1", res.TransactionID)
	require.Equal(t, "jws", res.Receipt)
	require.True(t, rec.Has(purchase.EventIAPRequestingSubscription))
	require.True(t, rec.Has(purchase.EventIAPRequestedSubscription))
	require.False(t, rec.Has(purchase.EventIAPRequestingPurchase))
	require.Equal(t, "sub-1", p.LastPurchase().TransactionID)
}

func TestStart_UserCancelled(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	client.OnRequest = func(productID string) {
		client.PurchaseFailed(&iap.PurchaseError{Code: iap.CodeUserCancelled, Message: "user cancelled", ProductID: productID})
	}
	p, rec, _ := ready(t, client)

	_, err := p.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug"})
	require.ErrorIs(t, err, purchase.ErrCancelled)
	require.True(t, rec.Has(purchase.EventIAPPurchaseCancelled))
	require.True(t, p.LastError().Cancelled())
}

func TestStart_RequestRejectedAsCancelled(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	client.RequestErr = &iap.PurchaseError{Code: iap.CodeUserCancelled}
	p, _, _ := ready(t, client)

	_, err := p.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug"})
	require.ErrorIs(t, err, purchase.ErrCancelled)
}

func TestStart_PurchaseError(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	client.OnRequest = func(string) {
		client.PurchaseFailed(&iap.PurchaseError{Code: "E_NETWORK_ERROR", Message: "offline"})
	}
	p, _, _ := ready(t, client)

	_, err := p.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug"})
	var perr *purchase.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, purchase.KindInApp, perr.Kind)
}

func TestStart_VerifierRejects(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	client.OnRequest = func(productID string) {
		client.PurchaseUpdated(&iap.Purchase{ProductID: productID, TransactionID: "tx-forged"})
	}
	p, rec, _ := ready(t, client, iap.WithVerifier(stubVerifier{err: errors.New("bundle id mismatch")}))

	_, err := p.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug"})
	require.ErrorIs(t, err, purchase.ErrProvider)
	require.True(t, rec.Has(purchase.EventIAPVerifyFailed))
}

func TestStart_ContextCancelled(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	p, _, _ := ready(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	client.OnRequest = func(string) { cancel() }
	_, err := p.Start(ctx, &purchase.Request{ProductID: "coffee_mug"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStart_CancelledAfterDeliveryKeepsPurchase(t *testing.T) {
	for i := 0; i < 50; i++ {
		client := purchasetest.NewBillingClient("coffee_mug")
		p, _, late := ready(t, client)

		ctx, cancel := context.WithCancel(context.Background())
		client.OnRequest = func(productID string) {
			cancel()
			client.PurchaseUpdated(&iap.Purchase{ProductID: productID, TransactionID: "tx-raced"})
		}
		res, err := p.Start(ctx, &purchase.Request{ProductID: "coffee_mug"})
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
			require.Len(t, *late, 1)
			require.Equal(t, "tx-raced", (*late)[0].TransactionID)
			continue
		}
		require.Equal(t, "tx-raced", res.TransactionID)
		require.Empty(t, *late)
	}
}

func TestListener_UpdateWithoutWaiterIsUnfinished(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	p, rec, late := ready(t, client)

	client.PurchaseUpdated(&iap.Purchase{ProductID: "coffee_mug", TransactionID: "tx-restored"})
	require.Len(t, *late, 1)
	require.Equal(t, "tx-restored", (*late)[0].TransactionID)
	require.True(t, rec.Has(purchase.EventIAPListenerUpdate))

	require.NoError(t, p.Finish(context.Background(), (*late)[0]))
	require.Equal(t, 1, client.FinishedCount())
	require.Equal(t, "tx-restored", client.Finished[0].TransactionID)
}

func TestAttach_Twice(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	p, _, _ := attached(t, client)

	require.ErrorIs(t, p.Attach(purchase.Hooks{}), purchase.ErrAlreadyAttached)
	require.Equal(t, 1, client.ListenerCount())

	require.NoError(t, p.Close())
	require.Zero(t, client.ListenerCount())
}
