package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrStoreNotFound is returned by a Source when a store has no catalog document.
var ErrStoreNotFound = errors.New("store catalog not found")

// Source reads raw catalog documents. Implementations must not cache:
// the loader re-reads on every call so catalog edits are picked up.
type Source interface {
	// Read returns the raw products document for a store.
	Read(ctx context.Context, store string) ([]byte, error)

	// Stores enumerates candidate store names. Candidates may still have
	// missing or empty catalogs; the loader filters those out.
	Stores(ctx context.Context) ([]string, error)
}

// validStoreName rejects names that could escape the catalog root or URL path.
func validStoreName(store string) bool {
	if store == "" || store == "." || store == ".." {
		return false
	}
	return !strings.ContainsAny(store, `/\`) && !strings.Contains(store, "..")
}

// FileSource reads {Root}/{store}/data/products.json.
type FileSource struct {
	Root string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Root: dir}
}

// Path returns the catalog document path for a store.
func (s *FileSource) Path(store string) string {
	return filepath.Join(s.Root, store, "data", "products.json")
}

func (s *FileSource) Read(ctx context.Context, store string) ([]byte, error) {
	if !validStoreName(store) {
		return nil, fmt.Errorf("%w: invalid store name %q", ErrStoreNotFound, store)
	}
	data, err := os.ReadFile(s.Path(store))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, s.Path(store))
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return data, nil
}

// Stores lists the subdirectories of Root, sorted by name.
func (s *FileSource) Stores(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("list catalog root: %w", err)
	}
	stores := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			stores = append(stores, e.Name())
		}
	}
	sort.Strings(stores)
	return stores, nil
}

// MaxDocumentSize caps remote catalog documents at 16MB.
const MaxDocumentSize = 16 << 20

// HTTPSource reads catalogs published under a base URL:
//
//	{BaseURL}/stores.json            {"stores": ["a", "b"]}
//	{BaseURL}/{store}/products.json  {"products": [...]}
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates an HTTPSource. A nil transport uses http.DefaultTransport.
func NewHTTPSource(baseURL string, rt http.RoundTripper, timeout time.Duration) *HTTPSource {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Transport: rt, Timeout: timeout},
	}
}

func (s *HTTPSource) Read(ctx context.Context, store string) ([]byte, error) {
	if !validStoreName(store) {
		return nil, fmt.Errorf("%w: invalid store name %q", ErrStoreNotFound, store)
	}
	return s.get(ctx, s.BaseURL+"/"+url.PathEscape(store)+"/products.json")
}

func (s *HTTPSource) Stores(ctx context.Context) ([]string, error) {
	data, err := s.get(ctx, s.BaseURL+"/stores.json")
	if err != nil {
		return nil, err
	}
	var index struct {
		Stores []string `json:"stores"`
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse store index: %w", err)
	}
	sort.Strings(index.Stores)
	return index.Stores, nil
}

func (s *HTTPSource) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, target)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return data, nil
}
