package appstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/awa/go-iap/appstore"
	"github.com/awa/go-iap/appstore/api"
	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/purchase/iap"
)

var (
	ErrNothingToVerify = errors.New("purchase carries no verifiable data")
	ErrMismatch        = errors.New("purchase does not match the store record")
)

// storeClient is the subset of *api.StoreClient the verifier uses.
type storeClient interface {
	GetTransactionInfo(ctx context.Context, transactionID string) (*api.TransactionInfoResponse, error)
	ParseSignedTransaction(tokenStr string) (*api.JWSTransaction, error)
}

// Verifier checks in-app purchases against Apple before they are handed out.
// Signed StoreKit 2 transactions are verified offline; otherwise the App Store
// Server API is asked, and as a last resort the legacy receipt endpoint.
type Verifier struct {
	opts    Options
	store   storeClient
	receipt *appstore.Client
	log     *zap.SugaredLogger
	decode  func(string) (*TransactionClaims, error)
}

var _ iap.Verifier = (*Verifier)(nil)

func NewVerifier(log *zap.SugaredLogger, opts *Options) (*Verifier, error) {
	if opts == nil {
		return nil, errors.New("opts is nil")
	}
	if opts.BundleID == "" {
		return nil, errors.New("bundle id is required")
	}
	v := &Verifier{opts: *opts, log: log, decode: DecodeSignedTransaction}

	client, err := NewStoreClient(opts)
	if err != nil {
		return nil, err
	}
	if client != nil {
		v.store = client
	}
	if opts.SharedSecret != "" {
		v.receipt = appstore.New()
		if opts.Sandbox {
			v.receipt.ProductionURL = v.receipt.SandboxURL
		}
	}
	return v, nil
}

func (v *Verifier) VerifyPurchase(ctx context.Context, p *iap.Purchase) error {
	if p == nil {
		return ErrNothingToVerify
	}
	switch {
	case p.SignedTransaction != "":
		claims, err := v.decode(p.SignedTransaction)
		if err != nil {
			return err
		}
		return v.check(p, claims.BundleID, claims.ProductID, claims.TransactionID, claims.Environment)
	case v.store != nil && p.TransactionID != "":
		info, err := v.store.GetTransactionInfo(ctx, p.TransactionID)
		if err != nil {
			return fmt.Errorf("failed to get transaction info: %w", err)
		}
		tx, err := v.store.ParseSignedTransaction(info.SignedTransactionInfo)
		if err != nil {
			return fmt.Errorf("failed to parse signed transaction: %w", err)
		}
		return v.check(p, tx.BundleID, tx.ProductID, tx.TransactionID, string(tx.Environment))
	case v.receipt != nil && p.TransactionReceipt != "":
		receipt, err := verifyReceipt(ctx, v.receipt, p.TransactionReceipt, v.opts.SharedSecret)
		if err != nil {
			return err
		}
		info := receipt.Find(p.TransactionID)
		if info == nil {
			return fmt.Errorf("%w: transaction %s not in receipt", ErrMismatch, p.TransactionID)
		}
		return v.check(p, receipt.Receipt.BundleID, info.ProductID, info.TransactionID, receipt.Environment)
	default:
		return ErrNothingToVerify
	}
}

func (v *Verifier) check(p *iap.Purchase, bundleID, productID, transactionID, environment string) error {
	if bundleID != v.opts.BundleID {
		return fmt.Errorf("%w: bundle id %q", ErrMismatch, bundleID)
	}
	if productID != p.ProductID {
		return fmt.Errorf("%w: product id %q, expected %q", ErrMismatch, productID, p.ProductID)
	}
	if p.TransactionID != "" && transactionID != p.TransactionID {
		return fmt.Errorf("%w: transaction id %q, expected %q", ErrMismatch, transactionID, p.TransactionID)
	}
	if v.opts.Production && environment != string(api.Production) {
		return fmt.Errorf("%w: transaction is not in production environment", ErrMismatch)
	}
	if v.log != nil {
		v.log.Debugw("purchase verified", "product_id", productID, "transaction_id", transactionID, "environment", environment)
	}
	return nil
}
