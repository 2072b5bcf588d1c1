// Package search filters store catalogs and paginates the matches.
package search

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"weft-mcp/internal/catalog"
	"weft-mcp/internal/model"
)

// Catalog is the read path the engine needs from catalog.Loader.
type Catalog interface {
	LoadProducts(ctx context.Context, store string) []catalog.Product
	ListAvailableStores(ctx context.Context) []string
}

// Query is a search request. Zero values mean "no filter" / "default".
type Query struct {
	Text     string
	Category string
	Store    string
	Page     int
	PageSize int
}

// Filters echoes the filters applied, for the structured response.
type Filters struct {
	Search   string `json:"search"`
	Category string `json:"category,omitempty"`
	Store    string `json:"store,omitempty"`
}

// Result is one page of matches.
type Result struct {
	Products   []catalog.DisplayProduct `json:"products"`
	Pagination Pagination               `json:"pagination"`
	Filters    Filters                  `json:"filters"`

	// Unavailable is set when no store has a loadable catalog. Distinct from
	// a search that simply matched nothing.
	Unavailable bool `json:"unavailable,omitempty"`

	// Restricted is set when the store filter names a store this deployment
	// does not serve. Error explains the restriction.
	Restricted bool             `json:"restricted,omitempty"`
	Error      *model.ToolError `json:"error,omitempty"`
}

// Engine runs searches against the catalog.
type Engine struct {
	catalog Catalog
	display catalog.DisplayOptions
	logger  *slog.Logger
}

// NewEngine creates a search engine.
func NewEngine(c Catalog, display catalog.DisplayOptions, logger *slog.Logger) *Engine {
	return &Engine{catalog: c, display: display, logger: logger}
}

// Search filters by name substring and exact category (both case-insensitive),
// keeps catalog order, then paginates. A store filter outside the deployment's
// available stores yields an empty Restricted result carrying a
// RESTRICTED_STORE error, so clients still receive a product list.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	available := e.catalog.ListAvailableStores(ctx)

	filters := Filters{Search: q.Text, Category: q.Category, Store: q.Store}
	stores := available
	if q.Store != "" {
		if !slices.Contains(available, q.Store) {
			e.logger.Info("search outside permitted stores",
				slog.String("store", q.Store),
				slog.Any("permitted", available))
			return &Result{
				Products:   []catalog.DisplayProduct{},
				Pagination: Paginate(0, q.Page, q.PageSize),
				Filters:    filters,
				Restricted: true,
				Error:      model.NewRestrictedStoreError(q.Store, available),
			}, nil
		}
		stores = []string{q.Store}
	}

	if len(stores) == 0 {
		e.logger.Warn("search with no available stores")
		return &Result{
			Products:    []catalog.DisplayProduct{},
			Pagination:  Paginate(0, q.Page, q.PageSize),
			Filters:     filters,
			Unavailable: true,
		}, nil
	}

	needle := strings.ToLower(q.Text)
	category := strings.ToLower(q.Category)

	var matches []catalog.DisplayProduct
	for _, store := range stores {
		for idx, p := range e.catalog.LoadProducts(ctx, store) {
			if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
				continue
			}
			if category != "" && strings.ToLower(p.Category) != category {
				continue
			}
			matches = append(matches, catalog.ToDisplay(p, idx, store, e.display))
		}
	}

	pg := Paginate(len(matches), q.Page, q.PageSize)
	start, end := pg.Bounds()

	page := make([]catalog.DisplayProduct, end-start)
	copy(page, matches[start:end])

	e.logger.Debug("search completed",
		slog.String("query", q.Text),
		slog.String("category", q.Category),
		slog.Int("matches", len(matches)),
		slog.Int("page", pg.CurrentPage))

	return &Result{
		Products:   page,
		Pagination: pg,
		Filters:    filters,
	}, nil
}
