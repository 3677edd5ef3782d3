package response

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// Page is one entry of the "pages" list in a query body. Fixed identity
// fields are decoded eagerly; per-module payloads (categories, extlinks, ...)
// stay raw until a query descriptor extracts them.
type Page struct {
	PageID  int
	NS      int
	Title   string
	Missing bool
	Invalid bool

	// Modules holds the remaining fields keyed by prop module name.
	Modules map[string]jsoniter.RawMessage
}

// pageIdentityKeys are decoded into named fields and excluded from Modules.
var pageIdentityKeys = map[string]bool{
	"pageid":       true,
	"ns":           true,
	"title":        true,
	"missing":      true,
	"invalid":      true,
	"invalidreason": true,
}

// UnmarshalJSON decodes a page object, splitting identity fields from
// module payloads.
func (p *Page) UnmarshalJSON(data []byte) error {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: page object: %v", ErrMalformed, err)
	}

	if raw, ok := fields["pageid"]; ok {
		if err := json.Unmarshal(raw, &p.PageID); err != nil {
			return fmt.Errorf("%w: pageid: %v", ErrMalformed, err)
		}
	}
	if raw, ok := fields["ns"]; ok {
		if err := json.Unmarshal(raw, &p.NS); err != nil {
			return fmt.Errorf("%w: ns: %v", ErrMalformed, err)
		}
	}
	if raw, ok := fields["title"]; ok {
		if err := json.Unmarshal(raw, &p.Title); err != nil {
			return fmt.Errorf("%w: title: %v", ErrMalformed, err)
		}
	}

	// formatversion=2 sends booleans, older servers send "".
	if raw, ok := fields["missing"]; ok {
		p.Missing = truthyFlag(raw)
	}
	if raw, ok := fields["invalid"]; ok {
		p.Invalid = truthyFlag(raw)
	}

	p.Modules = make(map[string]jsoniter.RawMessage)
	for k, v := range fields {
		if !pageIdentityKeys[k] {
			p.Modules[k] = v
		}
	}
	return nil
}

func truthyFlag(raw jsoniter.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	// legacy format: presence of the key (as "") means true
	return true
}

// Module returns the raw payload of the given prop module on this page.
func (p *Page) Module(name string) (jsoniter.RawMessage, bool) {
	raw, ok := p.Modules[name]
	return raw, ok
}
