package relay

import (
	"context"
	"errors"

	"github.com/fatflowers/paycoord/internal/purchase/iap"
)

// BillingClient runs in-app billing SDK calls on the device.
type BillingClient struct{ b *Bridge }

var _ iap.Client = (*BillingClient)(nil)

func (b *Bridge) Billing() *BillingClient { return &BillingClient{b: b} }

type productArgs struct {
	ProductIDs []string `json:"product_ids"`
}

type requestArgs struct {
	ProductID string `json:"product_id"`
}

func (c *BillingClient) InitConnection(ctx context.Context) error {
	return storeErr(c.b.invoke(ctx, "iap.init_connection", nil, nil, false))
}

func (c *BillingClient) GetProducts(ctx context.Context, productIDs []string) ([]*iap.Product, error) {
	var out []*iap.Product
	err := c.b.invoke(ctx, "iap.get_products", productArgs{ProductIDs: productIDs}, &out, false)
	return out, storeErr(err)
}

func (c *BillingClient) GetSubscriptions(ctx context.Context, subscriptionIDs []string) ([]*iap.Product, error) {
	var out []*iap.Product
	err := c.b.invoke(ctx, "iap.get_subscriptions", productArgs{ProductIDs: subscriptionIDs}, &out, false)
	return out, storeErr(err)
}

func (c *BillingClient) RequestPurchase(ctx context.Context, productID string) error {
	return storeErr(c.b.invoke(ctx, "iap.request_purchase", requestArgs{ProductID: productID}, nil, false))
}

func (c *BillingClient) RequestSubscription(ctx context.Context, productID string) error {
	return storeErr(c.b.invoke(ctx, "iap.request_subscription", requestArgs{ProductID: productID}, nil, false))
}

func (c *BillingClient) FinishTransaction(ctx context.Context, p *iap.Purchase) error {
	return storeErr(c.b.invoke(ctx, "iap.finish_transaction", p, nil, false))
}

func (c *BillingClient) AddListener(l iap.Listener) func() {
	return c.b.addListener(l)
}

// storeErr turns a device error into the store's error type.
func storeErr(err error) error {
	var rerr *ReplyError
	if errors.As(err, &rerr) {
		return &iap.PurchaseError{Code: rerr.Code, Message: rerr.Message}
	}
	return err
}
