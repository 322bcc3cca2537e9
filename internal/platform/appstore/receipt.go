package appstore

import (
	"context"
	"fmt"

	"github.com/awa/go-iap/appstore"
)

type ReceiptInfo struct {
	Quantity              string `json:"quantity"`
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMs        string `json:"purchase_date_ms"`
	InAppOwnershipType    string `json:"in_app_ownership_type"`
}

type Receipt struct {
	Status      int    `json:"status"`
	Environment string `json:"environment"`
	Receipt     struct {
		BundleID string         `json:"bundle_id"`
		InApp    []*ReceiptInfo `json:"in_app"`
	} `json:"receipt"`
	LatestReceiptInfo []*ReceiptInfo `json:"latest_receipt_info"`
}

// Find returns the receipt entry for transactionID.
func (r *Receipt) Find(transactionID string) *ReceiptInfo {
	for _, items := range [][]*ReceiptInfo{r.LatestReceiptInfo, r.Receipt.InApp} {
		for _, info := range items {
			if info.TransactionID == transactionID {
				return info
			}
		}
	}
	return nil
}

// verifyReceipt calls the legacy verifyReceipt endpoint.
func verifyReceipt(ctx context.Context, client *appstore.Client, receiptData, sharedSecret string) (*Receipt, error) {
	var result Receipt
	err := client.Verify(ctx, appstore.IAPRequest{
		ReceiptData:            receiptData,
		Password:               sharedSecret,
		ExcludeOldTransactions: false,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to verify receipt: %w", err)
	}
	if result.Status != 0 {
		return nil, fmt.Errorf("receipt rejected with status %d", result.Status)
	}
	return &result, nil
}
