// weftclient is a CLI tool for exercising the weft-mcp tools.
// Each command performs a single tool call, making it composable for scripts.
//
// Commands:
//
//	weftclient stores -server URL
//	weftclient search -server URL [-query TEXT] [-category C] [-store S] [-page N] [-size N]
//	weftclient add -server URL -session ID -product store:index [-qty N]
//	weftclient view -server URL -session ID
//	weftclient remove -server URL -session ID -product store:index
//	weftclient clear -server URL -session ID
//	weftclient debug -server URL -session ID
//
// Examples:
//
//	weftclient search -server http://localhost:8080 -query almond
//	weftclient add -server http://localhost:8080 -session alice -product grocery:0 -qty 2
//	weftclient view -server http://localhost:8080 -session alice -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"weft-mcp/internal/session"
)

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	useMeta   bool
	asJSON    bool
	noColor   bool
	timeout   time.Duration
)

// ANSI color codes
var (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorCyan, colorGray = "", "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "stores":
		runSimple("stores", "list_stores", args)
	case "search":
		runSearch(args)
	case "add":
		runAdd(args)
	case "view":
		runSimple("view", "view_cart", args)
	case "remove":
		runRemove(args)
	case "clear":
		runSimple("clear", "clear_cart", args)
	case "debug":
		runSimple("debug", "debug_session", args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `weftclient - weft-mcp tool test client

Usage:
  weftclient <command> [options]

Commands:
  stores    List available stores
  search    Search products
  add       Add a product to the cart
  view      Show the cart
  remove    Remove a product line from the cart
  clear     Empty the cart
  debug     Show session diagnostics

Examples:
  weftclient search -server http://localhost:8080 -query almond
  weftclient add -server http://localhost:8080 -session alice -product grocery:0 -qty 2
  weftclient view -server http://localhost:8080 -session alice

Run 'weftclient <command> -h' for command-specific options.
`)
}

// newFlagSet registers the global flags on a command's flag set.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "weft-mcp base URL")
	fs.StringVar(&sessionID, "session", "", "Cart session id (empty uses the shared fallback cart)")
	fs.BoolVar(&useMeta, "meta", false, "Send the session in the tool call _meta instead of the Weft-Session header")
	fs.BoolVar(&asJSON, "json", false, "Print the structured result as JSON")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: weftclient %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func runSimple(name, tool string, args []string) {
	fs := newFlagSet(name, name+" [options]")
	parse(fs, args)
	call(tool, map[string]any{})
}

func runSearch(args []string) {
	fs := newFlagSet("search", "search [-query TEXT] [options]")
	var query, category, store string
	var page, size int
	fs.StringVar(&query, "query", "", "Name substring (empty lists everything)")
	fs.StringVar(&category, "category", "", "Category filter")
	fs.StringVar(&store, "store", "", "Store filter")
	fs.IntVar(&page, "page", 1, "Page number")
	fs.IntVar(&size, "size", 0, "Page size (0 uses the server default)")
	parse(fs, args)

	toolArgs := map[string]any{"search": query, "page": page}
	if category != "" {
		toolArgs["category"] = category
	}
	if store != "" {
		toolArgs["store"] = store
	}
	if size > 0 {
		toolArgs["page_size"] = size
	}
	call("search_products", toolArgs)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -product store:index [-qty N] [options]")
	var product string
	var qty int
	fs.StringVar(&product, "product", "", "Product id (required)")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	parse(fs, args)

	if product == "" {
		fs.Usage()
		os.Exit(1)
	}
	call("add_to_cart", map[string]any{"product_id": product, "quantity": qty})
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -product store:index [options]")
	var product string
	fs.StringVar(&product, "product", "", "Product id (required)")
	parse(fs, args)

	if product == "" {
		fs.Usage()
		os.Exit(1)
	}
	call("remove_from_cart", map[string]any{"product_id": product})
}

// =============================================================================
// MCP HELPERS
// =============================================================================

// sessionHeader adds the Weft-Session header to every outgoing request.
type sessionHeader struct {
	value string
	next  http.RoundTripper
}

func (s *sessionHeader) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(session.HeaderName, s.value)
	return s.next.RoundTrip(req)
}

func call(tool string, args map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpClient := &http.Client{}
	params := &mcp.CallToolParams{Name: tool, Arguments: args}
	if sessionID != "" {
		if useMeta {
			params.Meta = mcp.Meta{session.KeySessionID: sessionID}
		} else {
			value, err := session.FormatHeader(sessionID)
			if err != nil {
				fatal("Invalid session id: %v", err)
			}
			httpClient.Transport = &sessionHeader{value: value, next: http.DefaultTransport}
		}
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "weftclient", Version: "dev"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   strings.TrimSuffix(serverURL, "/") + "/mcp",
		HTTPClient: httpClient,
	}, nil)
	if err != nil {
		fatal("Failed to connect: %v", err)
	}
	defer cs.Close()

	start := time.Now()
	res, err := cs.CallTool(ctx, params)
	if err != nil {
		fatal("Tool call failed: %v", err)
	}
	duration := time.Since(start)

	if asJSON && !res.IsError {
		out, err := json.MarshalIndent(res.StructuredContent, "", "  ")
		if err != nil {
			fatal("Encoding result: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			if res.IsError {
				fmt.Printf("%s%s%s\n", colorRed, text.Text, colorReset)
			} else {
				fmt.Println(text.Text)
			}
		}
	}
	fmt.Printf("%s→ %s%s%s (%v)%s\n", colorGray, colorCyan, tool, colorGray, duration.Round(time.Millisecond), colorReset)

	if res.IsError {
		os.Exit(2)
	}
	fmt.Printf("%s✓ done%s\n", colorGreen, colorReset)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
