package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"weft-mcp/internal/catalog"
	"weft-mcp/internal/model"
)

// MaxQuantity caps a single line's quantity.
const MaxQuantity = 10000

// maxDiagnosticIDLength truncates other sessions' ids in diagnostics.
const maxDiagnosticIDLength = 12

// Catalog is the read path the registry needs to resolve refs.
type Catalog interface {
	LoadProducts(ctx context.Context, store string) []catalog.Product
}

// Registry owns every session's cart. Mutations run through
// Backend.Update, which serializes them per session.
type Registry struct {
	backend Backend
	catalog Catalog
	display catalog.DisplayOptions
	logger  *slog.Logger
}

// NewRegistry creates a Registry over backend.
func NewRegistry(backend Backend, c Catalog, display catalog.DisplayOptions, logger *slog.Logger) *Registry {
	return &Registry{
		backend: backend,
		catalog: c,
		display: display,
		logger:  logger,
	}
}

// AddResult describes a successful AddItem.
type AddResult struct {
	ProductID     string
	ProductName   string
	QuantityAdded int
	LineQuantity  int
	LineCount     int
	Total         decimal.Decimal
}

// AddItem adds quantity of the product at ref to the session's cart.
// Adding a product already in the cart increases that line's quantity.
func (r *Registry) AddItem(ctx context.Context, sessionID, ref string, quantity int) (*AddResult, error) {
	if quantity < 1 {
		return nil, model.NewInvalidQuantityError(quantity)
	}
	if quantity > MaxQuantity {
		return nil, model.NewQuantityLimitError(quantity, MaxQuantity)
	}
	parsed, err := catalog.ParseRef(ref)
	if err != nil {
		return nil, model.NewInvalidProductRefError(ref, err.Error())
	}

	products := r.catalog.LoadProducts(ctx, parsed.Store)
	if parsed.Index >= len(products) {
		return nil, model.NewProductNotFoundError(ref)
	}
	product := products[parsed.Index]

	result := &AddResult{
		ProductID:     parsed.String(),
		ProductName:   product.Name,
		QuantityAdded: quantity,
	}
	err = r.backend.Update(ctx, sessionID, func(c *Cart, _ bool) error {
		if i := c.Find(parsed); i >= 0 {
			if c.Lines[i].Quantity > MaxQuantity-quantity {
				return model.NewQuantityLimitError(c.Lines[i].Quantity+quantity, MaxQuantity)
			}
			c.Lines[i].Quantity += quantity
			result.LineQuantity = c.Lines[i].Quantity
		} else {
			c.Lines = append(c.Lines, Line{
				Ref:      parsed,
				Product:  product,
				Store:    parsed.Store,
				Quantity: quantity,
			})
			result.LineQuantity = quantity
		}
		result.LineCount = c.Len()
		result.Total = c.Total()
		return nil
	})
	if err != nil {
		return nil, wrapUpdateError("failed to add item", err)
	}

	r.logger.Debug("cart item added",
		slog.String("session_id", sessionID),
		slog.String("product_id", result.ProductID),
		slog.Int("quantity", quantity),
		slog.Int("line_quantity", result.LineQuantity))

	return result, nil
}

// RemoveResult describes a successful RemoveItem.
type RemoveResult struct {
	ProductID   string
	ProductName string
	LineCount   int
	Total       decimal.Decimal
	Empty       bool
}

// RemoveItem deletes the line for ref. The cart is left untouched if it
// holds no such line.
func (r *Registry) RemoveItem(ctx context.Context, sessionID, ref string) (*RemoveResult, error) {
	parsed, err := catalog.ParseRef(ref)
	if err != nil {
		return nil, model.NewItemNotInCartError(ref)
	}

	result := &RemoveResult{ProductID: parsed.String()}
	err = r.backend.Update(ctx, sessionID, func(c *Cart, known bool) error {
		i := -1
		if known {
			i = c.Find(parsed)
		}
		if i < 0 {
			return model.NewItemNotInCartError(ref)
		}
		result.ProductName = c.Lines[i].Product.Name
		c.Remove(i)
		result.LineCount = c.Len()
		result.Total = c.Total()
		result.Empty = c.Len() == 0
		return nil
	})
	if err != nil {
		return nil, wrapUpdateError("failed to remove item", err)
	}

	r.logger.Debug("cart item removed",
		slog.String("session_id", sessionID),
		slog.String("product_id", result.ProductID))

	return result, nil
}

// Clear empties the session's cart. Clearing an empty or unknown cart is not
// an error.
func (r *Registry) Clear(ctx context.Context, sessionID string) error {
	if err := r.backend.Save(ctx, sessionID, &Cart{}); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	r.logger.Debug("cart cleared", slog.String("session_id", sessionID))
	return nil
}

// wrapUpdateError passes tool errors through and wraps backend failures.
func wrapUpdateError(msg string, err error) error {
	var toolErr *model.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Item is one rendered cart line.
type Item struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          string  `json:"price"`
	PriceFormatted string  `json:"price_formatted"`
	Quantity       int     `json:"quantity"`
	Image          string  `json:"image"`
	Store          string  `json:"store"`
	LineTotal      float64 `json:"line_total"`
}

// View is a rendered cart.
type View struct {
	Items     []Item  `json:"items"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"item_count"`
	Empty     bool    `json:"empty"`
	Currency  string  `json:"currency,omitempty"`
}

// View renders the session's cart from its snapshots. Lines whose ref no
// longer resolves in the live catalog still render.
func (r *Registry) View(ctx context.Context, sessionID string) (*View, error) {
	c, _, err := r.backend.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	view := &View{
		Items:    make([]Item, 0, c.Len()),
		Empty:    c.Len() == 0,
		Currency: r.display.Currency,
	}
	for _, line := range c.Lines {
		d := catalog.ToDisplay(line.Product, line.Ref.Index, line.Ref.Store, r.display)
		lineTotal := model.LineTotal(line.Product.Price, line.Quantity)
		view.Items = append(view.Items, Item{
			ID:             d.ID,
			Name:           d.Name,
			Price:          model.FormatAmount(model.ParsePrice(line.Product.Price)),
			PriceFormatted: d.PriceFormatted,
			Quantity:       line.Quantity,
			Image:          d.Image,
			Store:          line.Store,
			LineTotal:      lineTotal.InexactFloat64(),
		})
		view.ItemCount += line.Quantity
	}
	view.Total = c.Total().InexactFloat64()
	return view, nil
}

// OtherSession is a truncated view of a session that is not the caller's.
type OtherSession struct {
	ID    string `json:"id"`
	Lines int    `json:"lines"`
}

// Diagnostics is a report of the registry as seen from one session.
type Diagnostics struct {
	SessionID     string         `json:"session_id"`
	Fallback      bool           `json:"fallback"`
	Source        string         `json:"source"`
	TotalSessions int            `json:"total_sessions"`
	LineCount     int            `json:"line_count"`
	Total         float64        `json:"total"`
	OtherSessions []OtherSession `json:"other_sessions"`
}

// Diagnostics reports the session's cart alongside every other known
// session. Callers fill Fallback and Source from session resolution.
func (r *Registry) Diagnostics(ctx context.Context, sessionID string) (*Diagnostics, error) {
	c, _, err := r.backend.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	sessions, err := r.backend.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	d := &Diagnostics{
		SessionID:     sessionID,
		TotalSessions: len(sessions),
		LineCount:     c.Len(),
		Total:         c.Total().InexactFloat64(),
		OtherSessions: make([]OtherSession, 0, len(sessions)),
	}
	for _, s := range sessions {
		if s.ID == sessionID {
			continue
		}
		d.OtherSessions = append(d.OtherSessions, OtherSession{
			ID:    truncateID(s.ID),
			Lines: s.Lines,
		})
	}
	return d, nil
}

func truncateID(id string) string {
	r := []rune(id)
	if len(r) <= maxDiagnosticIDLength {
		return id
	}
	return string(r[:maxDiagnosticIDLength]) + "…"
}
