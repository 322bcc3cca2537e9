package types

type CatalogItemType string

const (
	CatalogItemTypeConsumable                CatalogItemType = "consumable"
	CatalogItemTypeNonConsumable             CatalogItemType = "non_consumable"
	CatalogItemTypeAutoRenewableSubscription CatalogItemType = "auto_renewable_subscription"
	CatalogItemTypeNonRenewableSubscription  CatalogItemType = "non_renewable_subscription"
)

// CatalogItem is a sellable product as configured by the merchant.
type CatalogItem struct {
	ID string `json:"id" mapstructure:"id"`
	// 应用商店中的商品ID，为空时使用ID
	StoreProductID string          `json:"store_product_id" mapstructure:"store_product_id"`
	Type           CatalogItemType `json:"type" mapstructure:"type"`
	Description    string          `json:"description" mapstructure:"description"`
	// 以最小货币单位计价的金额，如美分
	Amount int64 `json:"amount" mapstructure:"amount"`
}

func (item *CatalogItem) IsSubscription() bool {
	return item.Type == CatalogItemTypeAutoRenewableSubscription || item.Type == CatalogItemTypeNonRenewableSubscription
}

func (item *CatalogItem) ProductID() string {
	if item.StoreProductID != "" {
		return item.StoreProductID
	}
	return item.ID
}
