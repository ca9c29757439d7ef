package utils

import "github.com/shopspring/decimal"

// FormatMoney renders an amount with two decimals for display.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatAsset renders a crypto amount, trimmed to eight decimals.
func FormatAsset(d decimal.Decimal) string {
	return d.Round(8).String()
}
