package session

import (
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// HeaderName carries transport-level session metadata as an RFC 8941
// dictionary, e.g.:
//
//	Weft-Session: session-id="abc123", conversation-id="conv-9"
const HeaderName = "Weft-Session"

// Dictionary member names mapped onto metadata keys. Structured field keys
// must be lowercase, so they cannot reuse the camelCase metadata names.
var headerKeys = map[string]string{
	"session-id":      KeySessionID,
	"conversation-id": KeyConversationID,
}

// ParseHeader decodes a Weft-Session header into Metadata.
// Members may be strings or tokens; parameters are ignored. An empty header
// yields nil metadata and no error.
func ParseHeader(header string) (Metadata, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", HeaderName, err)
	}

	meta := Metadata{}
	for member, key := range headerKeys {
		m, ok := dict.Get(member)
		if !ok {
			continue
		}
		item, ok := m.(httpsfv.Item)
		if !ok {
			return nil, fmt.Errorf("%s member %q must be an item", HeaderName, member)
		}
		switch v := item.Value.(type) {
		case string:
			meta[key] = v
		case httpsfv.Token:
			meta[key] = string(v)
		default:
			return nil, fmt.Errorf("%s member %q must be a string or token", HeaderName, member)
		}
	}
	return meta, nil
}

// FormatHeader renders a Weft-Session header value for a session id.
func FormatHeader(sessionID string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("session-id", httpsfv.NewItem(sessionID))
	return httpsfv.Marshal(dict)
}
