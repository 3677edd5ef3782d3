// Package response decodes and validates replies from the MediaWiki Action API.
//
// The API returns loosely structured JSON whose shape depends on the query
// modules that were requested. This package normalizes every reply into an
// Envelope at the transport boundary so that the query engine never has to
// deal with missing or oddly typed fields deep inside merge logic.
package response

import (
	"errors"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed indicates the server reply did not have the expected structure.
var ErrMalformed = errors.New("malformed API response")

// APIError is the error object the API returns under "error".
type APIError struct {
	Code string  `json:"code"`
	Info string  `json:"info"`
	Lag  float64 `json:"lag"` // seconds, set for maxlag errors
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error %s: %s", e.Code, e.Info)
}

// FromTo is one entry of the "normalized" or "redirects" sections, mapping a
// title as submitted to the title the server resolved it to.
type FromTo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Envelope is one decoded API reply: the query body, the continuation cursor
// if any, and the error/warning sections.
type Envelope struct {
	// BatchComplete is true when the server finished a batch of pages for
	// all requested prop modules.
	BatchComplete bool

	// Continue holds the raw continuation cursor. Empty map means the
	// server signalled exhaustion. Values are opaque and must be merged
	// verbatim into the next request.
	Continue map[string]string

	// Error is non-nil when the API rejected the request.
	Error *APIError

	// Warnings holds raw per-module warning sections, if any.
	Warnings map[string]jsoniter.RawMessage

	query map[string]jsoniter.RawMessage
}

// Decode parses raw response bytes into an Envelope. It fails with
// ErrMalformed when the payload is not a JSON object or when required
// sections have the wrong shape.
func Decode(data []byte) (*Envelope, error) {
	var top map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	env := &Envelope{Continue: map[string]string{}}

	if raw, ok := top["error"]; ok {
		var apiErr APIError
		if err := json.Unmarshal(raw, &apiErr); err != nil {
			return nil, fmt.Errorf("%w: error section: %v", ErrMalformed, err)
		}
		env.Error = &apiErr
	}

	if raw, ok := top["warnings"]; ok {
		if err := json.Unmarshal(raw, &env.Warnings); err != nil {
			return nil, fmt.Errorf("%w: warnings section: %v", ErrMalformed, err)
		}
	}

	if raw, ok := top["batchcomplete"]; ok {
		// formatversion=2 sends a bool, older servers send "".
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			env.BatchComplete = b
		} else {
			env.BatchComplete = true
		}
	}

	if raw, ok := top["continue"]; ok {
		cont, err := decodeContinue(raw)
		if err != nil {
			return nil, err
		}
		env.Continue = cont
	}

	if raw, ok := top["query"]; ok {
		if err := json.Unmarshal(raw, &env.query); err != nil {
			return nil, fmt.Errorf("%w: query section: %v", ErrMalformed, err)
		}
	}

	return env, nil
}

// decodeContinue normalizes the continuation object into string values.
// Servers emit both strings and numbers here (e.g. rvcontinue vs. plcontinue).
func decodeContinue(raw jsoniter.RawMessage) (map[string]string, error) {
	var loose map[string]interface{}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("%w: continue section: %v", ErrMalformed, err)
	}

	cont := make(map[string]string, len(loose))
	for k, v := range loose {
		switch t := v.(type) {
		case string:
			cont[k] = t
		case float64:
			cont[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("%w: continue value %q has type %T", ErrMalformed, k, v)
		}
	}
	return cont, nil
}

// HasContinue reports whether the server supplied a continuation cursor.
func (e *Envelope) HasContinue() bool {
	return len(e.Continue) > 0
}

// Pages decodes the "pages" list of the query body. Returns an empty slice
// when the reply carried no pages section.
func (e *Envelope) Pages() ([]Page, error) {
	raw, ok := e.query["pages"]
	if !ok {
		return nil, nil
	}

	var pages []Page
	if err := json.Unmarshal(raw, &pages); err != nil {
		return nil, fmt.Errorf("%w: pages section: %v", ErrMalformed, err)
	}
	return pages, nil
}

// Normalized returns the title normalization pairs of this reply.
func (e *Envelope) Normalized() ([]FromTo, error) {
	return e.fromToSection("normalized")
}

// Redirects returns the redirect resolution pairs of this reply.
func (e *Envelope) Redirects() ([]FromTo, error) {
	return e.fromToSection("redirects")
}

func (e *Envelope) fromToSection(name string) ([]FromTo, error) {
	raw, ok := e.query[name]
	if !ok {
		return nil, nil
	}

	var pairs []FromTo
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("%w: %s section: %v", ErrMalformed, name, err)
	}
	return pairs, nil
}

// Section returns the raw query body section with the given name, e.g.
// "categorymembers" for a list query or "userinfo" for a meta query.
func (e *Envelope) Section(name string) (jsoniter.RawMessage, bool) {
	raw, ok := e.query[name]
	return raw, ok
}
