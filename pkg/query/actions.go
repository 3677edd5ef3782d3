package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wikibatch/mediawiki-query-client/pkg/logging"
	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

// Actions bundles the caller-facing bulk query methods. Batch methods accept
// any number of titles and hide chunking and continuation; streaming methods
// return a Stream for incremental consumption of large scans.
type Actions struct {
	inv    Invoker
	opts   Options
	logger zerolog.Logger
}

// NewActions creates the query method collection over a transport client.
func NewActions(inv Invoker, opts Options) *Actions {
	return &Actions{
		inv:    inv,
		opts:   opts,
		logger: logging.NewLogger("query-actions"),
	}
}

// titleExtractor builds a page extractor for modules whose entries carry
// just page identity (categories, links, templates, ...).
func titleExtractor(name string) func(p response.Page) ([]string, error) {
	return func(p response.Page) ([]string, error) {
		entries, err := pageModule[response.TitleEntry](p, name)
		if err != nil {
			return nil, err
		}
		titles := make([]string, len(entries))
		for i, e := range entries {
			titles[i] = e.Title
		}
		return titles, nil
	}
}

// titleListDescriptor describes a continuation-following prop module whose
// items are page titles.
func titleListDescriptor(name, limitKey string) Descriptor[string] {
	return Descriptor[string]{
		Name:        name,
		Mode:        ModeProp,
		LimitKey:    limitKey,
		ExtractPage: titleExtractor(name),
	}
}

// firstOrZero reduces an aggregate of single-item sequences to a scalar map.
func firstOrZero[T any](m map[string][]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, items := range m {
		var v T
		if len(items) > 0 {
			v = items[0]
		}
		out[k] = v
	}
	return out
}

// PageText fetches the current wikitext of each title. Missing pages map to
// the empty string.
func (a *Actions) PageText(ctx context.Context, titles []string) (map[string]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching page text")

	desc := Descriptor[string]{
		Name: "revisions",
		Mode: ModeProp,
		Params: map[string]string{
			"rvprop":  "content",
			"rvslots": "main",
		},
		ExtractPage: func(p response.Page) ([]string, error) {
			revs, err := pageModule[response.Revision](p, "revisions")
			if err != nil || len(revs) == 0 {
				return nil, err
			}
			return []string{revs[0].Text()}, nil
		},
	}

	agg, err := Aggregate(ctx, a.inv, desc, titles, a.opts)
	if err != nil {
		return nil, err
	}
	return firstOrZero(agg), nil
}

// Exists reports whether each title exists on the wiki.
func (a *Actions) Exists(ctx context.Context, titles []string) (map[string]bool, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Checking page existence")

	desc := Descriptor[bool]{
		Name: "info",
		Mode: ModeProp,
		ExtractPage: func(p response.Page) ([]bool, error) {
			return []bool{!p.Missing && !p.Invalid}, nil
		},
	}

	agg, err := Aggregate(ctx, a.inv, desc, titles, a.opts)
	if err != nil {
		return nil, err
	}
	return firstOrZero(agg), nil
}

// CategorySize returns the member count of each category title.
func (a *Actions) CategorySize(ctx context.Context, titles []string) (map[string]int, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching category sizes")

	desc := Descriptor[int]{
		Name: "categoryinfo",
		Mode: ModeProp,
		ExtractPage: func(p response.Page) ([]int, error) {
			raw, ok := p.Module("categoryinfo")
			if !ok {
				return nil, nil
			}
			var info struct {
				Size int `json:"size"`
			}
			if err := jsonAPI.Unmarshal(raw, &info); err != nil {
				return nil, err
			}
			return []int{info.Size}, nil
		},
	}

	agg, err := Aggregate(ctx, a.inv, desc, titles, a.opts)
	if err != nil {
		return nil, err
	}
	return firstOrZero(agg), nil
}

// CategoriesOnPage fetches the categories each title belongs to.
func (a *Actions) CategoriesOnPage(ctx context.Context, titles []string) (map[string][]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching categories on pages")
	return Aggregate(ctx, a.inv, titleListDescriptor("categories", "cllimit"), titles, a.opts)
}

// LinksOnPage fetches the wikilinks on each title.
func (a *Actions) LinksOnPage(ctx context.Context, titles []string) (map[string][]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching links on pages")
	return Aggregate(ctx, a.inv, titleListDescriptor("links", "pllimit"), titles, a.opts)
}

// TemplatesOnPage fetches the templates transcluded on each title.
func (a *Actions) TemplatesOnPage(ctx context.Context, titles []string) (map[string][]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching templates on pages")
	return Aggregate(ctx, a.inv, titleListDescriptor("templates", "tllimit"), titles, a.opts)
}

// ImagesOnPage fetches the files used on each title.
func (a *Actions) ImagesOnPage(ctx context.Context, titles []string) (map[string][]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching images on pages")
	return Aggregate(ctx, a.inv, titleListDescriptor("images", "imlimit"), titles, a.opts)
}

// FileUsage fetches the pages embedding each file title.
func (a *Actions) FileUsage(ctx context.Context, titles []string) (map[string][]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching file usage")
	return Aggregate(ctx, a.inv, titleListDescriptor("fileusage", "fulimit"), titles, a.opts)
}

// WhatLinksHere fetches the pages linking to each title.
func (a *Actions) WhatLinksHere(ctx context.Context, titles []string) (map[string][]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching what links here")
	return Aggregate(ctx, a.inv, titleListDescriptor("linkshere", "lhlimit"), titles, a.opts)
}

// ExternalLinks fetches the external URLs on each title.
func (a *Actions) ExternalLinks(ctx context.Context, titles []string) (map[string][]string, error) {
	a.logger.Debug().Int("titles", len(titles)).Msg("Fetching external links")

	desc := Descriptor[string]{
		Name:     "extlinks",
		Mode:     ModeProp,
		LimitKey: "ellimit",
		ExtractPage: func(p response.Page) ([]string, error) {
			entries, err := pageModule[struct {
				URL string `json:"url"`
			}](p, "extlinks")
			if err != nil {
				return nil, err
			}
			urls := make([]string, len(entries))
			for i, e := range entries {
				urls[i] = e.URL
			}
			return urls, nil
		},
	}

	return Aggregate(ctx, a.inv, desc, titles, a.opts)
}

// NormalizeTitles maps each title to its canonical form (capitalization,
// underscores). Titles the server leaves untouched map to themselves.
func (a *Actions) NormalizeTitles(ctx context.Context, titles []string) (map[string]string, error) {
	return a.pairQuery(ctx, "normalized", nil, titles)
}

// ResolveRedirects maps each title to its redirect target. Non-redirects map
// to themselves.
func (a *Actions) ResolveRedirects(ctx context.Context, titles []string) (map[string]string, error) {
	return a.pairQuery(ctx, "redirects", map[string]string{"redirects": "1"}, titles)
}

// pairQuery performs a chunked titles query whose result is a from/to pair
// list directly under the query body, seeded with identity mappings.
func (a *Actions) pairQuery(ctx context.Context, section string, extra map[string]string, titles []string) (map[string]string, error) {
	chunks, err := Chunks(titles, a.opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(titles))
	for _, t := range titles {
		out[t] = t
	}

	for chunk := range chunks {
		params := map[string]string{"titles": strings.Join(chunk, "|")}
		for k, v := range extra {
			params[k] = v
		}

		env, err := a.inv.Invoke(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("%s query: %w", section, err)
		}

		raw, ok := env.Section(section)
		if !ok {
			continue
		}
		pairs, err := decodeItems[response.FromTo](raw)
		if err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			out[pair.From] = pair.To
		}
	}

	return out, nil
}

// ListUserRights fetches the group memberships of each user (without the
// "User:" prefix). Unknown and anonymous users map to nil.
func (a *Actions) ListUserRights(ctx context.Context, users []string) (map[string][]string, error) {
	a.logger.Debug().Int("users", len(users)).Msg("Fetching user rights")

	chunks, err := Chunks(users, a.opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(users))
	for _, u := range users {
		out[u] = nil
	}

	for chunk := range chunks {
		params := map[string]string{
			"list":    "users",
			"usprop":  "groups",
			"ususers": strings.Join(chunk, "|"),
		}

		env, err := a.inv.Invoke(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("users query: %w", err)
		}

		raw, ok := env.Section("users")
		if !ok {
			continue
		}
		entries, err := decodeItems[struct {
			Name    string   `json:"name"`
			Groups  []string `json:"groups"`
			Missing bool     `json:"missing"`
		}](raw)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.Missing {
				out[e.Name] = e.Groups
			}
		}
	}

	return out, nil
}

// Whoami returns the logged-in username, or the caller's IP address when the
// session is anonymous.
func (a *Actions) Whoami(ctx context.Context) (string, error) {
	env, err := a.inv.Invoke(ctx, map[string]string{"meta": "userinfo"})
	if err != nil {
		return "", err
	}

	raw, ok := env.Section("userinfo")
	if !ok {
		return "", fmt.Errorf("%w: missing userinfo section", response.ErrMalformed)
	}
	var info struct {
		Name string `json:"name"`
	}
	if err := jsonAPI.Unmarshal(raw, &info); err != nil {
		return "", err
	}
	return info.Name, nil
}

// UploadableFiletypes returns the set of file extensions the wiki accepts
// for upload, "." prefix included.
func (a *Actions) UploadableFiletypes(ctx context.Context) (map[string]bool, error) {
	env, err := a.inv.Invoke(ctx, map[string]string{
		"meta":   "siteinfo",
		"siprop": "fileextensions",
	})
	if err != nil {
		return nil, err
	}

	raw, ok := env.Section("fileextensions")
	if !ok {
		return nil, fmt.Errorf("%w: missing fileextensions section", response.ErrMalformed)
	}
	entries, err := decodeItems[struct {
		Ext string `json:"ext"`
	}](raw)
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out["."+e.Ext] = true
	}
	return out, nil
}

// CategoryMembers streams the members of a category. nsFilter optionally
// restricts results to a pipe-fenced namespace ID list (see pkg/ns).
func (a *Actions) CategoryMembers(title, nsFilter string) *Stream[response.TitleEntry] {
	params := map[string]string{"cmtitle": title}
	if nsFilter != "" {
		params["cmnamespace"] = nsFilter
	}
	return NewStream(a.inv, Descriptor[response.TitleEntry]{
		Name:        "categorymembers",
		Mode:        ModeList,
		Params:      params,
		LimitKey:    "cmlimit",
		ExtractList: decodeItems[response.TitleEntry],
	}, nil, a.opts)
}

// PrefixIndex streams all titles in a namespace starting with prefix.
// Append "/" to the prefix to scan subpages only.
func (a *Actions) PrefixIndex(nsID, prefix string) *Stream[response.TitleEntry] {
	return NewStream(a.inv, Descriptor[response.TitleEntry]{
		Name: "allpages",
		Mode: ModeList,
		Params: map[string]string{
			"apnamespace": nsID,
			"apprefix":    prefix,
		},
		LimitKey:    "aplimit",
		ExtractList: decodeItems[response.TitleEntry],
	}, nil, a.opts)
}

// Search streams full-text search results for a phrase.
func (a *Actions) Search(phrase, nsFilter string) *Stream[response.TitleEntry] {
	params := map[string]string{"srsearch": phrase}
	if nsFilter != "" {
		params["srnamespace"] = nsFilter
	}
	return NewStream(a.inv, Descriptor[response.TitleEntry]{
		Name:        "search",
		Mode:        ModeList,
		Params:      params,
		LimitKey:    "srlimit",
		ExtractList: decodeItems[response.TitleEntry],
	}, nil, a.opts)
}

// Random streams random page titles.
func (a *Actions) Random(nsFilter string) *Stream[response.TitleEntry] {
	params := map[string]string{}
	if nsFilter != "" {
		params["rnnamespace"] = nsFilter
	}
	return NewStream(a.inv, Descriptor[response.TitleEntry]{
		Name:        "random",
		Mode:        ModeList,
		Params:      params,
		LimitKey:    "rnlimit",
		ExtractList: decodeItems[response.TitleEntry],
	}, nil, a.opts)
}

// UserUploads streams the files uploaded by a user (without the "User:"
// prefix).
func (a *Actions) UserUploads(user string) *Stream[response.TitleEntry] {
	return NewStream(a.inv, Descriptor[response.TitleEntry]{
		Name:        "allimages",
		Mode:        ModeList,
		Params:      map[string]string{"aiuser": user, "aisort": "timestamp"},
		LimitKey:    "ailimit",
		ExtractList: decodeItems[response.TitleEntry],
	}, nil, a.opts)
}

// ContribsQuery narrows a user contributions scan.
type ContribsQuery struct {
	User       string
	NSFilter   string
	OlderFirst bool
}

// Contribs streams the edits of a user, newest first by default.
func (a *Actions) Contribs(q ContribsQuery) *Stream[response.Contribution] {
	params := map[string]string{"ucuser": q.User}
	if q.NSFilter != "" {
		params["ucnamespace"] = q.NSFilter
	}
	if q.OlderFirst {
		params["ucdir"] = "newer"
	}
	return NewStream(a.inv, Descriptor[response.Contribution]{
		Name:        "usercontribs",
		Mode:        ModeList,
		Params:      params,
		LimitKey:    "uclimit",
		ExtractList: decodeItems[response.Contribution],
	}, nil, a.opts)
}

// LogsQuery narrows a log events scan. All fields are optional.
type LogsQuery struct {
	Title      string
	Type       string
	Action     string
	User       string
	NSFilter   string
	Tag        string
	OlderFirst bool
}

// Logs streams log events matching the query, newest first by default.
func (a *Actions) Logs(q LogsQuery) *Stream[response.LogEvent] {
	params := map[string]string{}
	if q.Title != "" {
		params["letitle"] = q.Title
	}
	if q.Type != "" {
		params["letype"] = q.Type
	}
	if q.Action != "" {
		params["leaction"] = q.Action
	}
	if q.User != "" {
		params["leuser"] = q.User
	}
	if q.NSFilter != "" {
		params["lenamespace"] = q.NSFilter
	}
	if q.Tag != "" {
		params["letag"] = q.Tag
	}
	if q.OlderFirst {
		params["ledir"] = "newer"
	}
	return NewStream(a.inv, Descriptor[response.LogEvent]{
		Name:        "logevents",
		Mode:        ModeList,
		Params:      params,
		LimitKey:    "lelimit",
		ExtractList: decodeItems[response.LogEvent],
	}, nil, a.opts)
}

// RevisionsQuery narrows a page history scan. When Start and End are both
// set, Start must occur before End.
type RevisionsQuery struct {
	OlderFirst  bool
	Start       time.Time
	End         time.Time
	IncludeText bool
}

// Revisions streams the revision history of one page, newest first by
// default.
func (a *Actions) Revisions(title string, q RevisionsQuery) *Stream[response.Revision] {
	params := map[string]string{"rvprop": "ids|comment|timestamp|user"}
	if q.OlderFirst {
		params["rvdir"] = "newer"
	}
	if !q.Start.IsZero() {
		params["rvstart"] = q.Start.UTC().Format(time.RFC3339)
	}
	if !q.End.IsZero() {
		params["rvend"] = q.End.UTC().Format(time.RFC3339)
	}
	if q.IncludeText {
		params["rvprop"] += "|content"
		params["rvslots"] = "main"
	}
	return NewStream(a.inv, Descriptor[response.Revision]{
		Name:     "revisions",
		Mode:     ModeProp,
		Params:   params,
		LimitKey: "rvlimit",
		ExtractPage: func(p response.Page) ([]response.Revision, error) {
			return pageModule[response.Revision](p, "revisions")
		},
	}, []string{title}, a.opts)
}
