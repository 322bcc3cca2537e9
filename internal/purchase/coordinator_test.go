package purchase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paycoord/internal/pending"
	"github.com/fatflowers/paycoord/internal/pending/memory"
	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/internal/purchase/purchasetest"
	"github.com/fatflowers/paycoord/internal/purchase/wallet"
)

func newCoordinator(t *testing.T, providers []purchase.Provider, opts ...purchase.Option) (*purchase.Coordinator, *purchasetest.Recorder) {
	t.Helper()
	rec := &purchasetest.Recorder{}
	c, err := purchase.New(nil, rec.Func(), providers, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func walletConfig() *purchase.WalletConfig {
	return &purchase.WalletConfig{PublishableKey: "pk_test_abc", MerchantID: "merchant.com.example", PayeeName: "Example Shop"}
}

func TestCoordinator_StartBeforeSetupIsNotReady(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})

	require.False(t, c.Ready())
	_, err := c.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	require.ErrorIs(t, err, purchase.ErrNotReady)
	require.True(t, rec.Has(purchase.EventPaymentNotReady))
	require.Zero(t, client.RequestCount())
	require.False(t, c.Processing())
}

func TestCoordinator_InvalidRequest(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})
	require.NoError(t, c.Setup(context.Background(), &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))

	_, err := c.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: -1})
	require.ErrorIs(t, err, purchase.ErrInvalidRequest)
	_, err = c.Start(context.Background(), &purchase.Request{AmountMinorUnits: 100})
	require.ErrorIs(t, err, purchase.ErrInvalidRequest)

	require.Zero(t, client.RequestCount())
	require.False(t, c.Processing())
	require.Equal(t, -1, rec.Index(purchase.EventPaymentStart))
}

func TestCoordinator_InAppPurchaseFlow(t *testing.T) {
	ctx := context.Background()
	client := purchasetest.NewBillingClient("coffee_mug")
	client.OnRequest = func(productID string) {
		client.PurchaseUpdated(&iap.Purchase{ProductID: productID, TransactionID: "tx-1", TransactionReceipt: "receipt-1"})
	}
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})

	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))
	require.True(t, c.Ready())

	res, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", Description: "Mug", AmountMinorUnits: 500})
	require.NoError(t, err)
	require.Equal(t, purchase.KindInApp, res.Kind)
	require.Equal(t, "tx-1", res.TransactionID)
	require.Equal(t, "receipt-1", res.Receipt)
	require.True(t, c.Processing(), "purchase stays in flight until finished")

	require.NoError(t, c.Finish(ctx, nil))
	require.False(t, c.Processing())
	require.Equal(t, 1, client.FinishedCount())
	require.Equal(t, "tx-1", client.Finished[0].TransactionID)
	require.Empty(t, c.Unfinished())

	start := rec.Index(purchase.EventPaymentStart)
	requesting := rec.Index(purchase.EventIAPRequestingPurchase)
	completed := rec.Index(purchase.EventPaymentCompleted)
	require.True(t, start < requesting && requesting < completed, rec.Names())
	require.True(t, rec.Has(purchase.EventPaymentFinish))
}

func TestCoordinator_SecondStartWhileProcessing(t *testing.T) {
	ctx := context.Background()
	client := purchasetest.NewBillingClient("coffee_mug")
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})
	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return client.RequestCount() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, c.Processing())

	_, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	require.ErrorIs(t, err, purchase.ErrAlreadyProcessing)
	require.True(t, rec.Has(purchase.EventPaymentAlreadyProcessing))
	require.Equal(t, 1, client.RequestCount())

	c.Reset(ctx)
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, purchase.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("first start did not return after reset")
	}
	require.False(t, c.Processing())
	require.True(t, rec.Has(purchase.EventPaymentReset))
}

func TestCoordinator_ConcurrentStartsAdmitOne(t *testing.T) {
	ctx := context.Background()
	client := purchasetest.NewBillingClient("coffee_mug")
	c, _ := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})
	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))

	const n = 8
	release := make(chan struct{})
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			_, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
			errCh <- err
		}()
	}
	close(release)

	for i := 0; i < n-1; i++ {
		select {
		case err := <-errCh:
			require.ErrorIs(t, err, purchase.ErrAlreadyProcessing)
		case <-time.After(time.Second):
			t.Fatalf("only %d starts were rejected", i)
		}
	}
	require.Eventually(t, func() bool { return client.RequestCount() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, c.Processing())

	c.Reset(ctx)
	wg.Wait()
	require.ErrorIs(t, <-errCh, purchase.ErrCancelled)
	require.Equal(t, 1, client.RequestCount())
	require.False(t, c.Processing())
}

// gatedProvider blocks every Start until its context ends. Starts for
// product "a" then wait on gate before returning.
type gatedProvider struct {
	mu      sync.Mutex
	ready   bool
	started chan string
	gate    chan struct{}
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{started: make(chan string, 4), gate: make(chan struct{})}
}

func (g *gatedProvider) Kind() purchase.Kind { return purchase.KindInApp }

func (g *gatedProvider) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *gatedProvider) Attach(purchase.Hooks) error { return nil }

func (g *gatedProvider) Setup(context.Context, *purchase.Config) error {
	g.mu.Lock()
	g.ready = true
	g.mu.Unlock()
	return nil
}

func (g *gatedProvider) Start(ctx context.Context, req *purchase.Request) (*purchase.Result, error) {
	g.started <- req.ProductID
	<-ctx.Done()
	if req.ProductID == "a" {
		<-g.gate
	}
	return nil, ctx.Err()
}

func (g *gatedProvider) Finish(context.Context, *purchase.Result) error { return nil }

func (g *gatedProvider) Close() error { return nil }

func TestCoordinator_StaleStartKeepsNewerPendingRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	gp := newGatedProvider()
	c, _ := newCoordinator(t, []purchase.Provider{gp}, purchase.WithPendingStore(store, ""))
	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"a", "b"}}}))

	first := make(chan error, 1)
	go func() {
		_, err := c.Start(ctx, &purchase.Request{ProductID: "a", AmountMinorUnits: 100})
		first <- err
	}()
	require.Equal(t, "a", <-gp.started)
	c.Reset(ctx)

	second := make(chan error, 1)
	go func() {
		_, err := c.Start(ctx, &purchase.Request{ProductID: "b", AmountMinorUnits: 200})
		second <- err
	}()
	require.Equal(t, "b", <-gp.started)
	record, err := store.Get(ctx, pending.DefaultKey)
	require.NoError(t, err)
	require.Equal(t, "b", record.ProductID)

	close(gp.gate)
	require.ErrorIs(t, <-first, purchase.ErrCancelled)

	record, err = store.Get(ctx, pending.DefaultKey)
	require.NoError(t, err)
	require.Equal(t, "b", record.ProductID)
	require.True(t, c.Processing())

	c.Reset(ctx)
	require.ErrorIs(t, <-second, purchase.ErrCancelled)
	_, err = store.Get(ctx, pending.DefaultKey)
	require.ErrorIs(t, err, pending.ErrNotFound)
}

func TestCoordinator_PrefersWallet(t *testing.T) {
	ctx := context.Background()
	billing := purchasetest.NewBillingClient("coffee_mug")
	wc := &purchasetest.WalletClient{DeviceSupport: true, CanPay: true, SheetToken: &wallet.Token{TokenID: "tok_1"}}
	c, _ := newCoordinator(t, []purchase.Provider{iap.New(nil, billing), wallet.New(nil, wc)})
	require.Equal(t, []purchase.Kind{purchase.KindWallet, purchase.KindInApp}, c.Kinds())

	require.NoError(t, c.Setup(ctx, &purchase.Config{
		InApp:  &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}},
		Wallet: walletConfig(),
	}))

	res, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", Description: "Mug", AmountMinorUnits: 500})
	require.NoError(t, err)
	require.Equal(t, purchase.KindWallet, res.Kind)
	require.Equal(t, "tok_1", res.Token)
	require.Zero(t, billing.RequestCount())
	require.True(t, c.ProviderProcessing(purchase.KindWallet))
	require.False(t, c.ProviderProcessing(purchase.KindInApp))
}

func TestCoordinator_SetupIsolatesMisconfiguredProvider(t *testing.T) {
	ctx := context.Background()
	billing := purchasetest.NewBillingClient("coffee_mug")
	billing.OnRequest = func(productID string) {
		billing.PurchaseUpdated(&iap.Purchase{ProductID: productID, TransactionID: "tx-2"})
	}
	wc := &purchasetest.WalletClient{DeviceSupport: true, CanPay: true}
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, billing), wallet.New(nil, wc)})

	cfg := walletConfig()
	cfg.MerchantID = ""
	err := c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}, Wallet: cfg})

	var cerr *purchase.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, purchase.KindWallet, cerr.Kind)
	require.Equal(t, "merchant id", cerr.Field)
	require.True(t, rec.Has(purchase.EventPaymentSetupError))

	require.True(t, c.Ready())
	require.False(t, c.ProviderReady(purchase.KindWallet))

	res, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	require.NoError(t, err)
	require.Equal(t, purchase.KindInApp, res.Kind)
}

func TestCoordinator_IdleFinishAndResetAreNoops(t *testing.T) {
	ctx := context.Background()
	client := purchasetest.NewBillingClient("coffee_mug")
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})

	require.NoError(t, c.Finish(ctx, nil))
	require.NoError(t, c.Finish(ctx, &purchase.Result{ProductID: "coffee_mug"}))
	c.Reset(ctx)
	c.Reset(ctx)

	require.Zero(t, client.FinishedCount())
	require.False(t, rec.Has(purchase.EventPaymentReset))
	require.False(t, rec.Has(purchase.EventPaymentFinish))
}

func TestCoordinator_UnfinishedPurchase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	require.NoError(t, store.Set(ctx, pending.DefaultKey, &pending.Record{AttemptID: "a-1", Provider: "inapp", ProductID: "coffee_mug", Amount: 500}))

	client := purchasetest.NewBillingClient("coffee_mug")
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, client)}, purchase.WithPendingStore(store, ""))
	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))

	client.PurchaseUpdated(&iap.Purchase{ProductID: "coffee_mug", TransactionID: "tx-late"})

	items := c.Unfinished()
	require.Len(t, items, 1)
	require.Equal(t, "tx-late", items[0].Result.TransactionID)
	require.NotNil(t, items[0].Pending)
	require.Equal(t, "a-1", items[0].Pending.AttemptID)
	require.True(t, rec.Has(purchase.EventPaymentUnfinished))
	require.False(t, c.Processing())

	require.NoError(t, c.Finish(ctx, items[0].Result))
	require.Equal(t, 1, client.FinishedCount())
	require.Empty(t, c.Unfinished())

	_, err := store.Get(ctx, pending.DefaultKey)
	require.ErrorIs(t, err, pending.ErrNotFound)
}

func TestCoordinator_ResetDiscardsUnfinished(t *testing.T) {
	ctx := context.Background()
	client := purchasetest.NewBillingClient("coffee_mug")
	c, _ := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})
	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))

	client.PurchaseUpdated(&iap.Purchase{ProductID: "coffee_mug", TransactionID: "tx-late"})
	require.Len(t, c.Unfinished(), 1)

	c.Reset(ctx)
	require.Empty(t, c.Unfinished())
	require.Zero(t, client.FinishedCount())
}

func TestCoordinator_FinishFailureKeepsProcessing(t *testing.T) {
	ctx := context.Background()
	client := purchasetest.NewBillingClient("coffee_mug")
	client.OnRequest = func(productID string) {
		client.PurchaseUpdated(&iap.Purchase{ProductID: productID, TransactionID: "tx-3"})
	}
	client.FinishErr = errors.New("store unavailable")
	c, rec := newCoordinator(t, []purchase.Provider{iap.New(nil, client)})
	require.NoError(t, c.Setup(ctx, &purchase.Config{InApp: &purchase.InAppConfig{ProductIDs: []string{"coffee_mug"}}}))

	res, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	require.NoError(t, err)

	err = c.Finish(ctx, res)
	require.ErrorIs(t, err, purchase.ErrProvider)
	require.True(t, c.Processing())
	require.True(t, rec.Has(purchase.EventPaymentFinishError))

	client.FinishErr = nil
	require.NoError(t, c.Finish(ctx, res))
	require.False(t, c.Processing())
}

func TestCoordinator_ProviderFailureReleasesSlot(t *testing.T) {
	ctx := context.Background()
	wc := &purchasetest.WalletClient{CardErr: errors.New("network down")}
	c, rec := newCoordinator(t, []purchase.Provider{wallet.New(nil, wc)})
	require.NoError(t, c.Setup(ctx, &purchase.Config{Wallet: walletConfig()}))

	_, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	var perr *purchase.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, purchase.KindWallet, perr.Kind)
	require.False(t, c.Processing())
	require.True(t, rec.Has(purchase.EventPaymentError))

	wc.CardErr = nil
	wc.CardToken = &wallet.Token{TokenID: "tok_retry"}
	res, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	require.NoError(t, err)
	require.Equal(t, "tok_retry", res.Token)
}

func TestCoordinator_NilTokenIsCancellation(t *testing.T) {
	ctx := context.Background()
	wc := &purchasetest.WalletClient{}
	c, rec := newCoordinator(t, []purchase.Provider{wallet.New(nil, wc)})
	require.NoError(t, c.Setup(ctx, &purchase.Config{Wallet: walletConfig()}))

	_, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", AmountMinorUnits: 500})
	require.ErrorIs(t, err, purchase.ErrCancelled)
	require.False(t, c.Processing())
	require.True(t, rec.Has(purchase.EventPaymentCancelled))
}

func TestCoordinator_PendingRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	wc := &purchasetest.WalletClient{BlockCardForm: true}
	c, _ := newCoordinator(t, []purchase.Provider{wallet.New(nil, wc)}, purchase.WithPendingStore(store, "checkout"))
	require.NoError(t, c.Setup(ctx, &purchase.Config{Wallet: walletConfig()}))

	done := make(chan error, 1)
	go func() {
		_, err := c.Start(ctx, &purchase.Request{ProductID: "coffee_mug", Description: "Mug", AmountMinorUnits: 500})
		done <- err
	}()
	require.Eventually(t, func() bool { return wc.CardCount() == 1 }, time.Second, 5*time.Millisecond)

	record, err := store.Get(ctx, "checkout")
	require.NoError(t, err)
	require.Equal(t, "coffee_mug", record.ProductID)
	require.Equal(t, int64(500), record.Amount)
	require.Equal(t, string(purchase.KindWallet), record.Provider)
	require.NotEmpty(t, record.AttemptID)

	c.Reset(ctx)
	require.ErrorIs(t, <-done, purchase.ErrCancelled)
	_, err = store.Get(ctx, "checkout")
	require.ErrorIs(t, err, pending.ErrNotFound)
}

func TestCoordinator_CloseRemovesListeners(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	c, err := purchase.New(nil, nil, []purchase.Provider{iap.New(nil, client)})
	require.NoError(t, err)
	require.Equal(t, 1, client.ListenerCount())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Zero(t, client.ListenerCount())

	_, err = c.Start(context.Background(), &purchase.Request{ProductID: "coffee_mug"})
	require.ErrorIs(t, err, purchase.ErrClosed)
}

func TestNew_RejectsReattachedProvider(t *testing.T) {
	client := purchasetest.NewBillingClient("coffee_mug")
	p := iap.New(nil, client)
	_, _ = newCoordinator(t, []purchase.Provider{p})

	_, err := purchase.New(nil, nil, []purchase.Provider{p})
	require.ErrorIs(t, err, purchase.ErrAlreadyAttached)
	require.Equal(t, 1, client.ListenerCount())
}

func TestNew_RejectsDuplicateKinds(t *testing.T) {
	a := purchasetest.NewBillingClient()
	b := purchasetest.NewBillingClient()
	_, err := purchase.New(nil, nil, []purchase.Provider{iap.New(nil, a), iap.New(nil, b)})
	require.Error(t, err)
	require.Zero(t, a.ListenerCount(), "already attached providers are closed")

	_, err = purchase.New(nil, nil, nil)
	require.Error(t, err)
}
