// Package session derives the cart session id for a tool call.
package session

import (
	"log/slog"
	"strings"
)

// FallbackID is shared by every caller whose session cannot be resolved.
// All such callers see the same cart; this degraded mode is always logged.
const FallbackID = "default"

// Metadata key names clients have used for the session identifier.
const (
	KeySessionID      = "sessionId"
	KeyConversationID = "conversationId"
	KeySnakeSessionID = "session_id"
)

// Metadata is loosely-typed key/value metadata attached to a request.
type Metadata map[string]any

// String returns the trimmed string value at key, or "" when absent or not a string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Request is everything a tool call carries that may identify its session.
type Request struct {
	// CallMeta is the tool call's own metadata (params._meta).
	CallMeta Metadata
	// RequestMeta is transport-level metadata (the Weft-Session header).
	RequestMeta Metadata
	// ArgSessionID is the "_sessionId" tool argument, the last-resort carrier.
	ArgSessionID string
}

// Rule extracts a session id candidate from a request.
type Rule struct {
	Name    string
	Extract func(Request) string
}

// DefaultRules is the resolution order: call metadata, then request
// metadata, then the argument field.
var DefaultRules = []Rule{
	{Name: "call_meta." + KeySessionID, Extract: func(r Request) string { return r.CallMeta.String(KeySessionID) }},
	{Name: "call_meta." + KeyConversationID, Extract: func(r Request) string { return r.CallMeta.String(KeyConversationID) }},
	{Name: "call_meta." + KeySnakeSessionID, Extract: func(r Request) string { return r.CallMeta.String(KeySnakeSessionID) }},
	{Name: "request_meta." + KeySessionID, Extract: func(r Request) string { return r.RequestMeta.String(KeySessionID) }},
	{Name: "request_meta." + KeyConversationID, Extract: func(r Request) string { return r.RequestMeta.String(KeyConversationID) }},
	{Name: "arguments._sessionId", Extract: func(r Request) string { return strings.TrimSpace(r.ArgSessionID) }},
}

// Resolution is the outcome of resolving a session id.
type Resolution struct {
	ID       string
	Source   string // rule name, or "fallback"
	Fallback bool
}

// Resolver applies rules in order; the first non-empty value wins.
type Resolver struct {
	rules      []Rule
	logger     *slog.Logger
	onFallback func()
}

// NewResolver creates a resolver with DefaultRules.
// onFallback, if non-nil, is called each time the fallback id is used.
func NewResolver(logger *slog.Logger, onFallback func()) *Resolver {
	return &Resolver{rules: DefaultRules, logger: logger, onFallback: onFallback}
}

// Resolve returns the session id for req.
func (r *Resolver) Resolve(req Request) Resolution {
	for _, rule := range r.rules {
		if id := rule.Extract(req); id != "" {
			r.logger.Debug("session resolved",
				slog.String("session_id", id),
				slog.String("source", rule.Name))
			return Resolution{ID: id, Source: rule.Name}
		}
	}

	r.logger.Warn("no session id in request; all unidentified callers share one cart",
		slog.String("fallback_session_id", FallbackID))
	if r.onFallback != nil {
		r.onFallback()
	}
	return Resolution{ID: FallbackID, Source: "fallback", Fallback: true}
}
