package wallet

import (
	"strconv"
	"strings"
)

// Sheet is the payment sheet request for the current platform.
type Sheet struct {
	Platform string          `json:"platform"`
	IOS      *IOSOptions     `json:"ios,omitempty"`
	Android  *AndroidOptions `json:"android,omitempty"`
	Items    []SheetItem     `json:"items,omitempty"`
}

type IOSOptions struct {
	RequestPayerName bool `json:"requestPayerName"`
	RequestShipping  bool `json:"requestShipping"`
}

type AndroidOptions struct {
	TotalPrice   string     `json:"total_price"`
	CurrencyCode string     `json:"currency_code"`
	LineItems    []LineItem `json:"line_items"`
}

type LineItem struct {
	CurrencyCode string `json:"currency_code"`
	Description  string `json:"description"`
	TotalPrice   string `json:"total_price"`
	UnitPrice    string `json:"unit_price"`
	Quantity     string `json:"quantity"`
}

type SheetItem struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// formatAmount renders minor units as a major-unit decimal, e.g. 1999 -> "19.99", 500 -> "5".
func formatAmount(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', -1, 64)
}

func buildSheet(platform string, amount int64, description, payee, currency string) *Sheet {
	price := formatAmount(amount)
	if platform == PlatformAndroid {
		code := strings.ToUpper(currency)
		return &Sheet{
			Platform: PlatformAndroid,
			Android: &AndroidOptions{
				TotalPrice:   price,
				CurrencyCode: code,
				LineItems: []LineItem{{
					CurrencyCode: code,
					Description:  description,
					TotalPrice:   price,
					UnitPrice:    price,
					Quantity:     "1",
				}},
			},
		}
	}

	// the final item is the checkout summary row
	return &Sheet{
		Platform: PlatformIOS,
		IOS:      &IOSOptions{RequestPayerName: true},
		Items: []SheetItem{
			{Label: description, Amount: price},
			{Label: payee, Amount: price},
		},
	}
}

func androidPayMode(publishableKey string) string {
	if strings.Index(publishableKey, "_test_") > 0 {
		return AndroidPayModeTest
	}
	return AndroidPayModeProduction
}
