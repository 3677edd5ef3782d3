package query

import (
	"context"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

// Invoker is the transport dependency of the query engine. One call issues
// one action=query request and returns the validated envelope; retry and
// rate limiting happen behind this interface.
type Invoker interface {
	Invoke(ctx context.Context, params map[string]string) (*response.Envelope, error)
}

// Mode selects where a descriptor's results live in the response body.
type Mode int

const (
	// ModeProp queries are scoped to titles; results hang off each entry
	// of the pages list.
	ModeProp Mode = iota

	// ModeList queries are keyless; results are a flat list directly under
	// the query body.
	ModeList

	// ModeMeta queries return a single object under the query body.
	ModeMeta
)

// SyntheticKey attributes items of keyless (list/meta) queries in result
// maps and stream units.
const SyntheticKey = ""

// Descriptor is an immutable description of one logical query operation: the
// query module name, its fixed parameters, and how to extract typed items
// from a response.
type Descriptor[T any] struct {
	// Name is the query module name, e.g. "categories" or "categorymembers".
	Name string

	// Mode selects title-scoped (prop) or keyless (list/meta) semantics.
	Mode Mode

	// Params are fixed parameters sent with every request of this query.
	Params map[string]string

	// LimitKey is the module's per-request limit parameter, e.g. "cllimit".
	// Empty for modules without one.
	LimitKey string

	// ExtractPage pulls this module's items off one page entry (ModeProp).
	ExtractPage func(p response.Page) ([]T, error)

	// ExtractList decodes the module's flat result list (ModeList/ModeMeta).
	ExtractList func(raw jsoniter.RawMessage) ([]T, error)
}

// baseParams builds the request parameters for one driver run over the given
// keys (nil for keyless queries).
func (d Descriptor[T]) baseParams(keys []string) map[string]string {
	params := make(map[string]string, len(d.Params)+4)
	for k, v := range d.Params {
		params[k] = v
	}
	if d.LimitKey != "" {
		params[d.LimitKey] = "max"
	}

	switch d.Mode {
	case ModeProp:
		params["prop"] = d.Name
		params["titles"] = strings.Join(keys, "|")
	case ModeList:
		params["list"] = d.Name
	case ModeMeta:
		params["meta"] = d.Name
	}
	return params
}

// decodeItems is a convenience extractor for modules whose items decode
// directly into a slice of T.
func decodeItems[T any](raw jsoniter.RawMessage) ([]T, error) {
	var items []T
	if err := jsonAPI.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// pageModule decodes the named module payload on a page into a slice of T.
// Pages without the module yield no items.
func pageModule[T any](p response.Page, name string) ([]T, error) {
	raw, ok := p.Module(name)
	if !ok {
		return nil, nil
	}
	return decodeItems[T](raw)
}
