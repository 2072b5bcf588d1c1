package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a catalog price string to a decimal amount in major
// currency units. Catalog prices come from scraped storefronts, so thousands
// separators are tolerated and anything unparseable counts as zero.
// Examples: "10" → 10, "1,234.50" → 1234.5, "" → 0, "abc" → 0
func ParsePrice(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// LineTotal returns price * quantity using exact decimal arithmetic.
func LineTotal(price string, quantity int) decimal.Decimal {
	return ParsePrice(price).Mul(decimal.NewFromInt(int64(quantity)))
}

// FormatAmount renders an amount with two decimals, e.g. "25.00".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
