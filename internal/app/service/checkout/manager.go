package checkout

import (
	"context"

	"github.com/fatflowers/paycoord/internal/purchase"
	"github.com/fatflowers/paycoord/internal/purchase/iap"
	"github.com/fatflowers/paycoord/pkg/types"
)

// Manager is the purchase API served over HTTP.
type Manager interface {
	Status() *Status
	// Setup configures the providers from the service configuration.
	Setup(ctx context.Context) error
	Start(ctx context.Context, req *StartRequest) (*purchase.Result, error)
	Finish(ctx context.Context, res *purchase.Result) error
	Reset(ctx context.Context)
	Unfinished() []*purchase.Unfinished
	Catalog() *Catalog
}

// StartRequest names a catalog item or a raw store product. Fields left
// empty are taken from the catalog.
type StartRequest struct {
	ProductID      string `json:"product_id" binding:"required"`
	Description    string `json:"description"`
	Amount         *int64 `json:"amount"`
	IsSubscription *bool  `json:"is_subscription"`
}

type ProviderStatus struct {
	Kind       purchase.Kind `json:"kind"`
	Ready      bool          `json:"ready"`
	Processing bool          `json:"processing"`
}

type Status struct {
	Ready      bool              `json:"ready"`
	Processing bool              `json:"processing"`
	FellBack   bool              `json:"fell_back"`
	Providers  []*ProviderStatus `json:"providers"`
	Unfinished int               `json:"unfinished"`
}

type Catalog struct {
	Items         []*types.CatalogItem `json:"items"`
	Products      []*iap.Product       `json:"products"`
	Subscriptions []*iap.Product       `json:"subscriptions"`
}
