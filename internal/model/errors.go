package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotInCart   = errors.New("item not in cart")
	ErrRestrictedStore = errors.New("store restricted")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Error codes surfaced to tool callers.
const (
	CodeInvalidProductRef = "INVALID_PRODUCT_REF"
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeItemNotInCart     = "ITEM_NOT_IN_CART"
	CodeRestrictedStore   = "RESTRICTED_STORE"
	CodeInternal          = "INTERNAL_ERROR"
)

// ToolError is a user-facing failure of a tool operation.
// Message is safe to show to the chat client; Err carries the cause for logs
// and errors.Is() matching.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewInvalidProductRefError rejects a product id that is not "store:index".
// Wraps ErrProductNotFound: a malformed id never names a product.
func NewInvalidProductRefError(ref, reason string) *ToolError {
	return &ToolError{
		Code:    CodeInvalidProductRef,
		Message: fmt.Sprintf("invalid product id %q: %s; use an id returned by search_products", ref, reason),
		Err:     ErrProductNotFound,
	}
}

// NewProductNotFoundError is returned when a well-formed id points past the
// end of its store's catalog.
func NewProductNotFoundError(ref string) *ToolError {
	return &ToolError{
		Code:    CodeProductNotFound,
		Message: fmt.Sprintf("product %s not found", ref),
		Err:     ErrProductNotFound,
	}
}

// NewInvalidQuantityError rejects quantities below one.
func NewInvalidQuantityError(quantity int) *ToolError {
	return &ToolError{
		Code:    CodeInvalidQuantity,
		Message: fmt.Sprintf("invalid quantity %d: must be at least 1", quantity),
		Err:     ErrInvalidRequest,
	}
}

// NewQuantityLimitError rejects an add that would take a line above max.
func NewQuantityLimitError(quantity, max int) *ToolError {
	return &ToolError{
		Code:    CodeInvalidQuantity,
		Message: fmt.Sprintf("invalid quantity %d: a cart line holds at most %d", quantity, max),
		Err:     ErrInvalidRequest,
	}
}

// NewItemNotInCartError is returned when removing a line the cart does not hold.
func NewItemNotInCartError(ref string) *ToolError {
	return &ToolError{
		Code:    CodeItemNotInCart,
		Message: fmt.Sprintf("product %s is not in the cart", ref),
		Err:     ErrItemNotInCart,
	}
}

// NewRestrictedStoreError signals a deployment restriction, not missing data.
func NewRestrictedStoreError(store string, permitted []string) *ToolError {
	msg := fmt.Sprintf("store %q is not available in this deployment", store)
	if len(permitted) > 0 {
		msg = fmt.Sprintf("%s; searchable stores: %v", msg, permitted)
	}
	return &ToolError{
		Code:    CodeRestrictedStore,
		Message: msg,
		Err:     ErrRestrictedStore,
	}
}

// NewInternalError wraps unexpected failures. The message never includes err.
func NewInternalError(err error) *ToolError {
	return &ToolError{
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Err:     err,
	}
}
