package handler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Widget resources rendered by ChatGPT-style hosts.
const (
	WidgetMIMEType    = "text/html+skybridge"
	ProductsWidgetURI = "ui://widget/products.html"
	CartWidgetURI     = "ui://widget/cart.html"
	widgetDomain      = "https://chatgpt.com"
)

type widget struct {
	uri         string
	file        string
	name        string
	description string
}

var widgets = []widget{
	{
		uri:         ProductsWidgetURI,
		file:        "products.html",
		name:        "Products Widget",
		description: "Interactive product grid with images and prices",
	},
	{
		uri:         CartWidgetURI,
		file:        "cart.html",
		name:        "Cart Widget",
		description: "Interactive shopping cart with add/remove items",
	},
}

// widgetToolMeta links a tool's result to the widget that renders it.
func widgetToolMeta(uri string) mcp.Meta {
	return mcp.Meta{
		"openai/outputTemplate":         uri,
		"openai/widgetAccessible":       true,
		"openai/resultCanProduceWidget": true,
	}
}

func widgetResourceMeta(uri string) mcp.Meta {
	return mcp.Meta{
		"openai/outputTemplate":         uri,
		"openai/widgetAccessible":       true,
		"openai/resultCanProduceWidget": true,
		"openai/widgetPrefersBorder":    true,
		"openai/widgetDomain":           widgetDomain,
	}
}

// registerWidgets adds the widget resources when a widget directory is
// configured. Files are read on every request so rebuilt widgets are served
// without a restart.
func (h *Handler) registerWidgets(server *mcp.Server) {
	if h.opts.WidgetDir == "" {
		return
	}
	for _, w := range widgets {
		server.AddResource(&mcp.Resource{
			URI:         w.uri,
			Name:        w.name,
			Title:       w.name,
			Description: w.description,
			MIMEType:    WidgetMIMEType,
			Meta:        widgetResourceMeta(w.uri),
		}, h.widgetHandler(w))
	}
}

func (h *Handler) widgetHandler(w widget) mcp.ResourceHandler {
	path := filepath.Join(h.opts.WidgetDir, w.file)
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		html, err := os.ReadFile(path)
		if err != nil {
			h.logger.Error("widget unavailable",
				slog.String("uri", w.uri),
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("widget %s unavailable", w.uri)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      w.uri,
				MIMEType: WidgetMIMEType,
				Text:     string(html),
				Meta:     widgetResourceMeta(w.uri),
			}},
		}, nil
	}
}
