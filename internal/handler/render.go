package handler

import (
	"fmt"
	"strings"

	"weft-mcp/internal/cart"
)

// money appends the configured currency to an amount.
func (h *Handler) money(amount string) string {
	if h.opts.Currency == "" {
		return amount
	}
	return amount + " " + h.opts.Currency
}

func renderStores(out *ListStoresOutput) string {
	if len(out.Stores) == 0 {
		return "No store catalog is currently available."
	}
	var b strings.Builder
	b.WriteString("🏪 Available stores:\n")
	for _, s := range out.Stores {
		fmt.Fprintf(&b, "• %s\n  Products: %d\n", s.Name, s.ProductCount)
	}
	return b.String()
}

func (h *Handler) renderCart(v *cart.View) string {
	if v.Empty {
		return "The cart is empty 🛒"
	}
	var b strings.Builder
	b.WriteString("🛒 Your cart:\n\n")
	for _, item := range v.Items {
		fmt.Fprintf(&b, "• %s\n", item.Name)
		fmt.Fprintf(&b, "  Quantity: %d\n", item.Quantity)
		fmt.Fprintf(&b, "  Unit price: %s\n", h.money(item.Price))
		fmt.Fprintf(&b, "  Subtotal: %s\n", h.money(fmt.Sprintf("%.2f", item.LineTotal)))
		fmt.Fprintf(&b, "  ID: %s\n\n", item.ID)
	}
	fmt.Fprintf(&b, "Total: %s", h.money(fmt.Sprintf("%.2f", v.Total)))
	return b.String()
}

func (h *Handler) renderDiagnostics(d *cart.Diagnostics) string {
	var b strings.Builder
	b.WriteString("🔍 Session debug information\n\n")
	fmt.Fprintf(&b, "Current session ID: %s\n", d.SessionID)
	fmt.Fprintf(&b, "Resolved from: %s\n", d.Source)
	fmt.Fprintf(&b, "Total active sessions: %d\n", d.TotalSessions)
	fmt.Fprintf(&b, "Items in your cart: %d\n", d.LineCount)
	fmt.Fprintf(&b, "Your cart total: %s\n\n", h.money(fmt.Sprintf("%.2f", d.Total)))

	switch {
	case len(d.OtherSessions) > 0:
		b.WriteString("Other active sessions:\n")
		for _, o := range d.OtherSessions {
			fmt.Fprintf(&b, "  - %s: %d items\n", o.ID, o.Lines)
		}
	case d.TotalSessions == 0:
		b.WriteString("No active sessions.\n")
	default:
		b.WriteString("No other active sessions.\n")
	}

	if d.Fallback {
		b.WriteString("\n⚠️ WARNING: using the shared default session.\n")
		b.WriteString("⚠️ The client sent no session id, so every such caller shares this cart.\n")
	}
	return b.String()
}
