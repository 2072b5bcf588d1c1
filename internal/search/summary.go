package search

import (
	"fmt"
	"strings"
)

// MaxSummaryEntries caps how many products the text summary renders,
// whatever the page size.
const MaxSummaryEntries = 10

// Summary renders a result for clients that only display text.
func Summary(r *Result) string {
	if r.Restricted && r.Error != nil {
		return fmt.Sprintf("❌ %s [%s]", r.Error.Message, r.Error.Code)
	}
	if r.Unavailable {
		return "No store catalog is currently available."
	}
	if r.Pagination.TotalProducts == 0 {
		return "No products match your search."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d products (page %d of %d):\n",
		r.Pagination.TotalProducts, r.Pagination.CurrentPage, r.Pagination.TotalPages)

	shown := r.Products
	if len(shown) > MaxSummaryEntries {
		shown = shown[:MaxSummaryEntries]
	}
	for _, p := range shown {
		fmt.Fprintf(&b, "\n• %s\n  Price: %s\n", p.Name, p.PriceFormatted)
		if p.Category != "" {
			fmt.Fprintf(&b, "  Category: %s\n", p.Category)
		}
		fmt.Fprintf(&b, "  ID: %s\n", p.ID)
	}
	if rest := len(r.Products) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n…and %d more on this page.\n", rest)
	}
	if r.Pagination.HasNext {
		fmt.Fprintf(&b, "\nRequest page %d for more.", r.Pagination.CurrentPage+1)
	}
	return strings.TrimRight(b.String(), "\n")
}
