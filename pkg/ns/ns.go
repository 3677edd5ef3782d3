// Package ns resolves wiki namespace names to their numeric IDs and builds
// namespace filters for query parameters.
//
// The sixteen built-in namespaces are available as constants without a
// server round trip. Wiki-specific namespaces and localized aliases need a
// Manager loaded via Fetch.
package ns

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/wikibatch/mediawiki-query-client/pkg/logging"
	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

// Built-in namespace IDs, identical on every MediaWiki installation.
const (
	Main          = 0
	Talk          = 1
	User          = 2
	UserTalk      = 3
	Project       = 4
	ProjectTalk   = 5
	File          = 6
	FileTalk      = 7
	MediaWiki     = 8
	MediaWikiTalk = 9
	Template      = 10
	TemplateTalk  = 11
	Help          = 12
	HelpTalk      = 13
	Category      = 14
	CategoryTalk  = 15
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Invoker performs one query API request. *client.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, params map[string]string) (*response.Envelope, error)
}

// Manager caches the namespace table of one wiki.
type Manager struct {
	inv    Invoker
	logger zerolog.Logger

	mu    sync.RWMutex
	byID  map[int]string
	byKey map[string]int
}

// NewManager creates an empty Manager. Call Fetch before resolving names.
func NewManager(inv Invoker) *Manager {
	return &Manager{
		inv:    inv,
		logger: logging.NewLogger("ns"),
	}
}

// Fetch loads the namespace table and aliases from the wiki. Safe to call
// again to refresh.
func (m *Manager) Fetch(ctx context.Context) error {
	env, err := m.inv.Invoke(ctx, map[string]string{
		"meta":   "siteinfo",
		"siprop": "namespaces|namespacealiases",
	})
	if err != nil {
		return fmt.Errorf("fetching namespace table: %w", err)
	}

	byID := make(map[int]string)
	byKey := make(map[string]int)

	if raw, ok := env.Section("namespaces"); ok {
		var entries []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("decoding namespaces: %w", err)
		}
		for _, e := range entries {
			byID[e.ID] = e.Name
			byKey[normalizeName(e.Name)] = e.ID
		}
	}

	if raw, ok := env.Section("namespacealiases"); ok {
		var aliases []struct {
			ID    int    `json:"id"`
			Alias string `json:"alias"`
		}
		if err := json.Unmarshal(raw, &aliases); err != nil {
			return fmt.Errorf("decoding namespace aliases: %w", err)
		}
		for _, a := range aliases {
			byKey[normalizeName(a.Alias)] = a.ID
		}
	}

	m.mu.Lock()
	m.byID = byID
	m.byKey = byKey
	m.mu.Unlock()

	m.logger.Debug().Int("namespaces", len(byID)).Int("aliases", len(byKey)-len(byID)).Msg("Loaded namespace table")
	return nil
}

// ID resolves a namespace name or alias, case-insensitively.
func (m *Manager) ID(name string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[normalizeName(name)]
	return id, ok
}

// Name returns the canonical name of a namespace ID. The main namespace
// maps to the empty string.
func (m *Manager) Name(id int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.byID[id]
	return name, ok
}

// Filter builds a pipe-fenced namespace ID list from names, for parameters
// like cmnamespace and srnamespace.
func (m *Manager) Filter(names ...string) (string, error) {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		id, ok := m.ID(name)
		if !ok {
			return "", fmt.Errorf("unknown namespace %q", name)
		}
		ids = append(ids, id)
	}
	return IDFilter(ids...), nil
}

// Strip removes the namespace prefix from a title, if the prefix names a
// known namespace. "Category:Physics" becomes "Physics".
func (m *Manager) Strip(title string) string {
	prefix, rest, found := strings.Cut(title, ":")
	if !found {
		return title
	}
	if _, ok := m.ID(prefix); !ok {
		return title
	}
	return rest
}

// IDFilter builds a pipe-fenced list from numeric namespace IDs.
func IDFilter(ids ...int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "|")
}

func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}
