// Package cart holds per-session shopping carts.
package cart

import (
	"github.com/shopspring/decimal"

	"weft-mcp/internal/catalog"
	"weft-mcp/internal/model"
)

// Line is one product in a cart. Product is a snapshot taken when the line
// was created; later catalog edits do not change it.
type Line struct {
	Ref      catalog.Ref     `json:"ref"`
	Product  catalog.Product `json:"product"`
	Store    string          `json:"store"`
	Quantity int             `json:"quantity"`
}

// Cart is a session's lines in insertion order, keyed by Ref.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Find returns the index of the line for ref, or -1.
func (c *Cart) Find(ref catalog.Ref) int {
	for i, l := range c.Lines {
		if l.Ref == ref {
			return i
		}
	}
	return -1
}

// Remove deletes the line at i, preserving the order of the rest.
func (c *Cart) Remove(i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
}

// Len is the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.Lines)
}

// Total recomputes Σ price × quantity from the line snapshots.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(model.LineTotal(l.Product.Price, l.Quantity))
	}
	return total
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return &Cart{}
	}
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	return &Cart{Lines: lines}
}
