package iap

import (
	"context"
	"fmt"
)

// Product is a catalog entry returned by the store.
type Product struct {
	ProductID      string `json:"product_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	LocalizedPrice string `json:"localized_price"`
}

// Purchase is delivered by the store through the update listener.
type Purchase struct {
	ProductID          string `json:"product_id"`
	TransactionID      string `json:"transaction_id"`
	TransactionDate    int64  `json:"transaction_date"`
	TransactionReceipt string `json:"transaction_receipt,omitempty"`
	// SignedTransaction is the StoreKit 2 JWS representation, when available.
	SignedTransaction string `json:"signed_transaction,omitempty"`
}

// CodeUserCancelled is reported by the store when the user dismisses the purchase sheet.
const CodeUserCancelled = "E_USER_CANCELLED"

// PurchaseError is delivered by the store through the error listener.
type PurchaseError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"product_id,omitempty"`
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PurchaseError) Cancelled() bool {
	return e != nil && e.Code == CodeUserCancelled
}

// Listener receives asynchronous store events. Events may arrive long after
// the request that caused them, including after an app relaunch.
type Listener interface {
	OnPurchaseUpdated(p *Purchase)
	OnPurchaseError(e *PurchaseError)
}

// Client is the in-app billing SDK surface the provider depends on.
type Client interface {
	InitConnection(ctx context.Context) error
	GetProducts(ctx context.Context, productIDs []string) ([]*Product, error)
	GetSubscriptions(ctx context.Context, subscriptionIDs []string) ([]*Product, error)
	// RequestPurchase only places the request; the outcome arrives via Listener.
	RequestPurchase(ctx context.Context, productID string) error
	RequestSubscription(ctx context.Context, productID string) error
	FinishTransaction(ctx context.Context, p *Purchase) error
	// AddListener registers l and returns a function removing it.
	AddListener(l Listener) (remove func())
}

// Verifier checks a purchase against the store before it is handed out.
type Verifier interface {
	VerifyPurchase(ctx context.Context, p *Purchase) error
}
