package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogItem(t *testing.T) {
	item := &CatalogItem{ID: "mug", Type: CatalogItemTypeConsumable}
	require.False(t, item.IsSubscription())
	require.Equal(t, "mug", item.ProductID())

	item = &CatalogItem{ID: "vip", StoreProductID: "com.example.vip.monthly", Type: CatalogItemTypeAutoRenewableSubscription}
	require.True(t, item.IsSubscription())
	require.Equal(t, "com.example.vip.monthly", item.ProductID())
}
