package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// StorePolicy selects which stores a deployment exposes.
type StorePolicy string

const (
	// PolicySingle exposes only the configured default store.
	PolicySingle StorePolicy = "single"

	// PolicyDirectory exposes every store the source enumerates that has a
	// non-empty catalog.
	PolicyDirectory StorePolicy = "directory"
)

// ParseStorePolicy validates a policy name from configuration.
func ParseStorePolicy(s string) (StorePolicy, error) {
	switch StorePolicy(s) {
	case PolicySingle, PolicyDirectory:
		return StorePolicy(s), nil
	case "":
		return PolicySingle, nil
	default:
		return "", fmt.Errorf("unknown store policy %q (want single or directory)", s)
	}
}

// Loader reads store catalogs and applies the deployment's store policy.
// Every failure degrades to an empty result; callers treat "no products" as
// a normal outcome.
type Loader struct {
	source       Source
	policy       StorePolicy
	defaultStore string
	logger       *slog.Logger
}

// NewLoader creates a Loader. defaultStore is required for PolicySingle.
func NewLoader(source Source, policy StorePolicy, defaultStore string, logger *slog.Logger) *Loader {
	if policy == "" {
		policy = PolicySingle
	}
	return &Loader{
		source:       source,
		policy:       policy,
		defaultStore: defaultStore,
		logger:       logger,
	}
}

// Policy returns the configured store policy.
func (l *Loader) Policy() StorePolicy {
	return l.policy
}

// LoadProducts returns a store's products in document order.
// Missing or unparseable catalogs are logged and yield an empty slice.
func (l *Loader) LoadProducts(ctx context.Context, store string) []Product {
	data, err := l.source.Read(ctx, store)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			l.logger.Warn("store catalog not found",
				slog.String("store", store),
				slog.String("error", err.Error()))
		} else {
			l.logger.Error("store catalog unavailable",
				slog.String("store", store),
				slog.String("error", err.Error()))
		}
		return []Product{}
	}

	products, err := parseDocument(data)
	if err != nil {
		l.logger.Error("store catalog unparseable",
			slog.String("store", store),
			slog.String("error", err.Error()))
		return []Product{}
	}
	if products == nil {
		return []Product{}
	}
	return products
}

// ListAvailableStores returns the stores this deployment serves.
func (l *Loader) ListAvailableStores(ctx context.Context) []string {
	var candidates []string
	switch l.policy {
	case PolicyDirectory:
		stores, err := l.source.Stores(ctx)
		if err != nil {
			l.logger.Error("listing stores failed", slog.String("error", err.Error()))
			return []string{}
		}
		candidates = stores
	default:
		if l.defaultStore == "" {
			return []string{}
		}
		candidates = []string{l.defaultStore}
	}

	available := make([]string, 0, len(candidates))
	for _, store := range candidates {
		if len(l.LoadProducts(ctx, store)) > 0 {
			available = append(available, store)
		}
	}
	return available
}

// Permitted reports whether store is one of the deployment's available stores.
func (l *Loader) Permitted(ctx context.Context, store string) bool {
	return slices.Contains(l.ListAvailableStores(ctx), store)
}
