// Package catalog loads store product lists and projects them for display.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultProductName is used when a catalog entry has no name.
const DefaultProductName = "Unknown Product"

// SupportedMajorVersion is the newest catalog document major version this
// loader understands. Documents without a version are treated as v1.
const SupportedMajorVersion = "v1"

// Product is one catalog entry as loaded from a store's products.json.
// Store-scoped: identity outside the store comes from Ref.
type Product struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Image    string `json:"image"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

// UnmarshalJSON accepts numbers wherever strings are expected.
// Scrapers emit prices both as "10.50" and 10.5.
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     looseString `json:"name"`
		Price    looseString `json:"price"`
		Image    looseString `json:"image"`
		Category looseString `json:"category"`
		URL      looseString `json:"url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Product{
		Name:     string(raw.Name),
		Price:    string(raw.Price),
		Image:    string(raw.Image),
		Category: string(raw.Category),
		URL:      string(raw.URL),
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = DefaultProductName
	}
	return nil
}

// looseString decodes a JSON string, number, or null into a string.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = looseString(n.String())
	return nil
}

// document is the on-disk shape of a store catalog.
type document struct {
	Version  string    `json:"version,omitempty"`
	Products []Product `json:"products"`
}

// parseDocument decodes a catalog document and checks its schema version.
func parseDocument(data []byte) ([]Product, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if doc.Version != "" {
		if !semver.IsValid(doc.Version) {
			return nil, fmt.Errorf("invalid catalog version %q", doc.Version)
		}
		if semver.Compare(semver.Major(doc.Version), SupportedMajorVersion) > 0 {
			return nil, fmt.Errorf("catalog version %s is newer than supported %s", doc.Version, SupportedMajorVersion)
		}
	}
	return doc.Products, nil
}
