package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached API response by its full request parameters.
type CacheKey struct {
	// Params is the complete parameter set of the request, including the
	// action and format parameters.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: mwq:param1=val1:param2=val2
//
// Example:
//
//	mwq:action=query:cmtitle=Category:Pages:list=categorymembers
func (k CacheKey) String() string {
	parts := []string{"mwq"}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Params[key], "|")))
		}
	}

	return strings.Join(parts, ":")
}
