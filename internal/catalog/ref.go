package catalog

import (
	"errors"
	"strconv"
	"strings"
)

// Ref is the composite product identifier "{store}:{index}".
// Index is the product's position in the store's list at load time, so a Ref
// goes stale if the catalog is reordered or shortened.
type Ref struct {
	Store string
	Index int
}

// String renders the ref in its wire form.
func (r Ref) String() string {
	return r.Store + ":" + strconv.Itoa(r.Index)
}

// ParseRef parses "{store}:{index}". The store is everything before the first
// separator; the remainder must be a non-negative integer.
func ParseRef(s string) (Ref, error) {
	store, index, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{}, errors.New("missing ':' separator")
	}
	if store == "" {
		return Ref{}, errors.New("missing store name")
	}
	n, err := strconv.Atoi(index)
	if err != nil {
		return Ref{}, errors.New("index is not a number")
	}
	if n < 0 {
		return Ref{}, errors.New("index is negative")
	}
	return Ref{Store: store, Index: n}, nil
}
