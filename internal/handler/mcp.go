// MCP transport for the catalog and cart tools using the official MCP Go SDK.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"weft-mcp/internal/cart"
	"weft-mcp/internal/metrics"
	"weft-mcp/internal/middleware"
	"weft-mcp/internal/model"
	"weft-mcp/internal/search"
	"weft-mcp/internal/session"
)

// Tool names.
const (
	ToolListStores     = "list_stores"
	ToolSearchProducts = "search_products"
	ToolAddToCart      = "add_to_cart"
	ToolViewCart       = "view_cart"
	ToolRemoveFromCart = "remove_from_cart"
	ToolClearCart      = "clear_cart"
	ToolDebugSession   = "debug_session"
)

// === MCP Tool Input Types ===
// Inferred schemas reject unknown properties, so every input declares the
// optional _sessionId carrier even though resolution reads it from the raw
// arguments.

// ListStoresInput is the input schema for list_stores.
type ListStoresInput struct {
	SessionID string `json:"_sessionId,omitempty" jsonschema:"optional session identifier"`
}

// SearchProductsInput is the input schema for search_products.
type SearchProductsInput struct {
	Search    string `json:"search" jsonschema:"text to match in product names; empty string lists everything"`
	Category  string `json:"category,omitempty" jsonschema:"only products in this category"`
	Store     string `json:"store,omitempty" jsonschema:"only products from this store"`
	Page      int    `json:"page,omitempty" jsonschema:"page number starting at 1"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"products per page (default 12, max 50)"`
	SessionID string `json:"_sessionId,omitempty" jsonschema:"optional session identifier"`
}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	ProductID string `json:"product_id" jsonschema:"product id in the form store:index, as returned by search_products"`
	Quantity  *int   `json:"quantity,omitempty" jsonschema:"number of items to add (default 1)"`
	SessionID string `json:"_sessionId,omitempty" jsonschema:"optional session identifier"`
}

// ViewCartInput is the input schema for view_cart.
type ViewCartInput struct {
	SessionID string `json:"_sessionId,omitempty" jsonschema:"optional session identifier"`
}

// RemoveFromCartInput is the input schema for remove_from_cart.
type RemoveFromCartInput struct {
	ProductID string `json:"product_id" jsonschema:"product id of the cart line to remove"`
	SessionID string `json:"_sessionId,omitempty" jsonschema:"optional session identifier"`
}

// ClearCartInput is the input schema for clear_cart.
type ClearCartInput struct {
	SessionID string `json:"_sessionId,omitempty" jsonschema:"optional session identifier"`
}

// DebugSessionInput is the input schema for debug_session.
type DebugSessionInput struct {
	SessionID string `json:"_sessionId,omitempty" jsonschema:"optional session identifier"`
}

// === MCP Tool Output Types ===

// StoreSummary is one entry of list_stores.
type StoreSummary struct {
	Name         string `json:"name"`
	ProductCount int    `json:"product_count"`
}

// ListStoresOutput is the structured result of list_stores.
type ListStoresOutput struct {
	Stores []StoreSummary `json:"stores"`
}

// AddToCartOutput is the structured result of add_to_cart.
type AddToCartOutput struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Quantity     int     `json:"quantity"`
	LineQuantity int     `json:"line_quantity"`
	LineCount    int     `json:"line_count"`
	Total        float64 `json:"total"`
}

// RemoveFromCartOutput is the structured result of remove_from_cart.
type RemoveFromCartOutput struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	LineCount   int     `json:"line_count"`
	Total       float64 `json:"total"`
	Empty       bool    `json:"empty"`
}

// ClearCartOutput is the structured result of clear_cart.
type ClearCartOutput struct {
	Cleared bool `json:"cleared"`
}

// NewMCPServer creates an MCP server with the catalog and cart tools and
// the widget resources registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "weft-mcp",
			Title:   "Weft Store",
			Version: h.opts.Version,
		},
		&mcp.ServerOptions{
			Instructions: "Weft store catalog and shopping cart. " +
				"Use search_products to find products, then add_to_cart with the returned product id. " +
				"view_cart shows the cart and its total.",
		},
	)

	readOnly := &mcp.ToolAnnotations{
		ReadOnlyHint:    true,
		DestructiveHint: boolPtr(false),
		OpenWorldHint:   boolPtr(false),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListStores,
		Title:       "List Stores",
		Description: "List the stores available in this deployment with their product counts.",
		Annotations: readOnly,
	}, instrument(h, ToolListStores, h.mcpListStores))

	mcp.AddTool(server, &mcp.Tool{
		Name:  ToolSearchProducts,
		Title: "Search Products",
		Description: "Search store products by name (case-insensitive substring) and optionally by category or store. " +
			"Use an empty search to see all products. Results are paginated.",
		Meta:        widgetToolMeta(ProductsWidgetURI),
		Annotations: readOnly,
	}, instrument(h, ToolSearchProducts, h.mcpSearchProducts))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAddToCart,
		Title:       "Add to Cart",
		Description: "Add a product to the shopping cart. Adding a product already in the cart increases its quantity.",
	}, instrument(h, ToolAddToCart, h.mcpAddToCart))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolViewCart,
		Title:       "View Cart",
		Description: "View the current shopping cart contents and total.",
		Meta:        widgetToolMeta(CartWidgetURI),
		Annotations: readOnly,
	}, instrument(h, ToolViewCart, h.mcpViewCart))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolRemoveFromCart,
		Title:       "Remove from Cart",
		Description: "Remove a product line from the shopping cart.",
	}, instrument(h, ToolRemoveFromCart, h.mcpRemoveFromCart))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolClearCart,
		Title:       "Clear Cart",
		Description: "Remove every item from the shopping cart.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true, OpenWorldHint: boolPtr(false)},
	}, instrument(h, ToolClearCart, h.mcpClearCart))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolDebugSession,
		Title:       "Debug Session",
		Description: "Show session information for debugging: session id, cart stats and other active sessions.",
		Annotations: readOnly,
	}, instrument(h, ToolDebugSession, h.mcpDebugSession))

	h.registerWidgets(server)
	server.AddReceivingMiddleware(structuredErrors)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		&mcp.StreamableHTTPOptions{Stateless: h.opts.Stateless},
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListStores(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListStoresInput,
) (*mcp.CallToolResult, *ListStoresOutput, error) {
	out := &ListStoresOutput{Stores: []StoreSummary{}}
	for _, store := range h.services.Catalog.ListAvailableStores(ctx) {
		out.Stores = append(out.Stores, StoreSummary{
			Name:         store,
			ProductCount: len(h.services.Catalog.LoadProducts(ctx, store)),
		})
	}
	return textResult(renderStores(out)), out, nil
}

func (h *Handler) mcpSearchProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchProductsInput,
) (*mcp.CallToolResult, *search.Result, error) {
	result, err := h.services.Search.Search(ctx, search.Query{
		Text:     input.Search,
		Category: input.Category,
		Store:    input.Store,
		Page:     input.Page,
		PageSize: input.PageSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return textResult(search.Summary(result)), result, nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *AddToCartOutput, error) {
	quantity := 1
	if input.Quantity != nil {
		quantity = *input.Quantity
	}

	sid := h.resolveSession(ctx, req).ID
	added, err := h.services.Carts.AddItem(ctx, sid, input.ProductID, quantity)
	if err != nil {
		return nil, nil, err
	}

	out := &AddToCartOutput{
		ProductID:    added.ProductID,
		ProductName:  added.ProductName,
		Quantity:     added.QuantityAdded,
		LineQuantity: added.LineQuantity,
		LineCount:    added.LineCount,
		Total:        added.Total.InexactFloat64(),
	}
	text := fmt.Sprintf("✓ Added to cart: %s\nQuantity: %d\n\nItems in cart: %d\nCart total: %s",
		added.ProductName, added.QuantityAdded, added.LineCount,
		h.money(model.FormatAmount(added.Total)))
	return textResult(text), out, nil
}

func (h *Handler) mcpViewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCartInput,
) (*mcp.CallToolResult, *cart.View, error) {
	sid := h.resolveSession(ctx, req).ID
	view, err := h.services.Carts.View(ctx, sid)
	if err != nil {
		return nil, nil, err
	}
	return textResult(h.renderCart(view)), view, nil
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveFromCartInput,
) (*mcp.CallToolResult, *RemoveFromCartOutput, error) {
	sid := h.resolveSession(ctx, req).ID
	removed, err := h.services.Carts.RemoveItem(ctx, sid, input.ProductID)
	if err != nil {
		return nil, nil, err
	}

	out := &RemoveFromCartOutput{
		ProductID:   removed.ProductID,
		ProductName: removed.ProductName,
		LineCount:   removed.LineCount,
		Total:       removed.Total.InexactFloat64(),
		Empty:       removed.Empty,
	}
	text := fmt.Sprintf("✓ Removed %s from the cart.\n\n", removed.ProductName)
	if removed.Empty {
		text += "The cart is now empty."
	} else {
		text += fmt.Sprintf("Items in cart: %d\nCart total: %s",
			removed.LineCount, h.money(model.FormatAmount(removed.Total)))
	}
	return textResult(text), out, nil
}

func (h *Handler) mcpClearCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ClearCartInput,
) (*mcp.CallToolResult, *ClearCartOutput, error) {
	sid := h.resolveSession(ctx, req).ID
	if err := h.services.Carts.Clear(ctx, sid); err != nil {
		return nil, nil, err
	}
	return textResult("✓ The cart has been cleared."), &ClearCartOutput{Cleared: true}, nil
}

func (h *Handler) mcpDebugSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input DebugSessionInput,
) (*mcp.CallToolResult, *cart.Diagnostics, error) {
	res := h.resolveSession(ctx, req)
	d, err := h.services.Carts.Diagnostics(ctx, res.ID)
	if err != nil {
		return nil, nil, err
	}
	d.Fallback = res.Fallback
	d.Source = res.Source
	return textResult(h.renderDiagnostics(d)), d, nil
}

// === Dispatch ===

// resolveSession derives the cart session from the call's _meta, the
// Weft-Session request header, and the _sessionId argument, in that order.
func (h *Handler) resolveSession(ctx context.Context, req *mcp.CallToolRequest) session.Resolution {
	var sreq session.Request
	if req.Params != nil {
		sreq.CallMeta = session.Metadata(req.Params.Meta)
		sreq.ArgSessionID = sessionArgument(req.Params.Arguments)
	}
	if req.Extra != nil && req.Extra.Header != nil {
		if raw := req.Extra.Header.Get(session.HeaderName); raw != "" {
			meta, err := session.ParseHeader(raw)
			if err != nil {
				h.logger.Warn("ignoring malformed session header",
					slog.String("error", err.Error()),
					slog.String("request_id", middleware.RequestIDFrom(ctx)))
			} else {
				sreq.RequestMeta = meta
			}
		}
	}
	return h.services.Sessions.Resolve(sreq)
}

// sessionArgument reads the _sessionId member from raw tool arguments.
func sessionArgument(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var args struct {
		SessionID string `json:"_sessionId"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ""
	}
	return args.SessionID
}

// instrument wraps a tool handler with metrics, error conversion and a
// panic catch-all. Tool failures come back as errors whose text is safe for
// the caller; the SDK turns them into IsError results and structuredErrors
// adds the code and message. Anything unexpected is logged and reported as
// INTERNAL_ERROR.
func instrument[In, Out any](h *Handler, tool string, fn mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (res *mcp.CallToolResult, out Out, err error) {
		start := time.Now()
		outcome := metrics.OutcomeOK

		defer func() {
			if p := recover(); p != nil {
				h.logger.Error("tool panic recovered",
					slog.String("tool", tool),
					slog.Any("error", p),
					slog.String("request_id", middleware.RequestIDFrom(ctx)),
					slog.String("stack", string(debug.Stack())))
				var zero Out
				toolErr := model.NewInternalError(fmt.Errorf("panic: %v", p))
				recordToolError(ctx, toolErr)
				res, out, err = nil, zero, newCallerError(toolErr)
				outcome = metrics.OutcomeError
			}
			h.services.Metrics.ObserveTool(tool, outcome, time.Since(start))
		}()

		res, out, err = fn(ctx, req, input)
		if err == nil {
			return res, out, nil
		}

		var toolErr *model.ToolError
		if errors.As(err, &toolErr) && toolErr.Code != model.CodeInternal {
			h.logger.Info("tool call rejected",
				slog.String("tool", tool),
				slog.String("code", toolErr.Code),
				slog.String("request_id", middleware.RequestIDFrom(ctx)))
			outcome = metrics.OutcomeRejected
		} else {
			h.logger.Error("tool call failed",
				slog.String("tool", tool),
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.RequestIDFrom(ctx)))
			toolErr = model.NewInternalError(err)
			outcome = metrics.OutcomeError
		}

		recordToolError(ctx, toolErr)
		var zero Out
		return nil, zero, newCallerError(toolErr)
	}
}

// The SDK builds failed tool results from the error text alone. instrument
// records the rejection in a per-call slot, and structuredErrors attaches it
// to the result as {"error": {"code", "message"}}.
type toolErrorSlot struct {
	err *model.ToolError
}

type toolErrorKey struct{}

// ToolErrorPayload is the structured content of a failed tool call.
type ToolErrorPayload struct {
	Error *model.ToolError `json:"error"`
}

func recordToolError(ctx context.Context, e *model.ToolError) {
	if slot, ok := ctx.Value(toolErrorKey{}).(*toolErrorSlot); ok {
		slot.err = e
	}
}

func structuredErrors(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		if method != "tools/call" {
			return next(ctx, method, req)
		}
		slot := &toolErrorSlot{}
		res, err := next(context.WithValue(ctx, toolErrorKey{}, slot), method, req)
		if r, ok := res.(*mcp.CallToolResult); ok && r.IsError && slot.err != nil {
			r.StructuredContent = ToolErrorPayload{Error: slot.err}
		}
		return res, err
	}
}

// callerError is the text a failed tool call shows the caller. It never
// carries the underlying cause.
type callerError struct {
	text string
}

func newCallerError(e *model.ToolError) *callerError {
	return &callerError{text: fmt.Sprintf("❌ %s [%s]", e.Message, e.Code)}
}

func (e *callerError) Error() string {
	return e.text
}

// textResult builds a successful result whose text accompanies the
// structured output.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
