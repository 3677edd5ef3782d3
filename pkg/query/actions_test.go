package query

import (
	"context"
	"testing"

	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

func TestActionsPageText(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{"pages":[
			    {"pageid":1,"ns":0,"title":"Alpha","revisions":[
			      {"revid":10,"slots":{"main":{"contentmodel":"wikitext","content":"Hello"}}}
			    ]},
			    {"ns":0,"title":"Ghost","missing":true}
			  ]}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	out, err := a.PageText(context.Background(), []string{"Alpha", "Ghost"})
	if err != nil {
		t.Fatalf("PageText() error = %v", err)
	}

	if out["Alpha"] != "Hello" {
		t.Errorf(`out["Alpha"] = %q, want "Hello"`, out["Alpha"])
	}
	// Missing pages map to the empty string, not a missing key.
	if text, ok := out["Ghost"]; !ok || text != "" {
		t.Errorf(`out["Ghost"] = %q (present=%t), want empty string`, text, ok)
	}

	req := inv.callAt(t, 0)
	if req["prop"] != "revisions" || req["rvprop"] != "content" || req["rvslots"] != "main" {
		t.Errorf("Request parameters wrong: %v", req)
	}
}

func TestActionsExists(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{"pages":[
			    {"pageid":1,"ns":0,"title":"Alpha"},
			    {"ns":0,"title":"Ghost","missing":true},
			    {"ns":0,"title":"<bad>","invalid":true}
			  ]}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	out, err := a.Exists(context.Background(), []string{"Alpha", "Ghost", "<bad>"})
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}

	tests := []struct {
		title string
		want  bool
	}{
		{"Alpha", true},
		{"Ghost", false},
		{"<bad>", false},
	}
	for _, tt := range tests {
		if out[tt.title] != tt.want {
			t.Errorf("Exists[%q] = %t, want %t", tt.title, out[tt.title], tt.want)
		}
	}
}

func TestActionsCategorySize(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{"pages":[
			    {"pageid":5,"ns":14,"title":"Category:Stars","categoryinfo":{"size":12,"pages":10,"files":0,"subcats":2}}
			  ]}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	out, err := a.CategorySize(context.Background(), []string{"Category:Stars"})
	if err != nil {
		t.Fatalf("CategorySize() error = %v", err)
	}
	if out["Category:Stars"] != 12 {
		t.Errorf("Size = %d, want 12", out["Category:Stars"])
	}
}

func TestActionsNormalizeTitles(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{
			    "normalized":[{"from":"alpha_centauri","to":"Alpha centauri"}],
			    "pages":[]}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	out, err := a.NormalizeTitles(context.Background(), []string{"alpha_centauri", "Beta"})
	if err != nil {
		t.Fatalf("NormalizeTitles() error = %v", err)
	}

	if out["alpha_centauri"] != "Alpha centauri" {
		t.Errorf("Normalized form = %q, want %q", out["alpha_centauri"], "Alpha centauri")
	}
	// Untouched titles map to themselves.
	if out["Beta"] != "Beta" {
		t.Errorf("out[Beta] = %q, want identity", out["Beta"])
	}
}

func TestActionsResolveRedirects(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{
			    "redirects":[{"from":"UK","to":"United Kingdom"}],
			    "pages":[]}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	out, err := a.ResolveRedirects(context.Background(), []string{"UK", "France"})
	if err != nil {
		t.Fatalf("ResolveRedirects() error = %v", err)
	}

	if out["UK"] != "United Kingdom" {
		t.Errorf("Redirect target = %q, want %q", out["UK"], "United Kingdom")
	}
	if out["France"] != "France" {
		t.Errorf("Non-redirect = %q, want identity", out["France"])
	}

	if req := inv.callAt(t, 0); req["redirects"] != "1" {
		t.Errorf("Request missing redirects flag: %v", req)
	}
}

func TestActionsListUserRights(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{"users":[
			    {"userid":1,"name":"Ada","groups":["sysop","autoconfirmed"]},
			    {"name":"Nobody","missing":true}
			  ]}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	out, err := a.ListUserRights(context.Background(), []string{"Ada", "Nobody"})
	if err != nil {
		t.Fatalf("ListUserRights() error = %v", err)
	}

	if groups := out["Ada"]; len(groups) != 2 || groups[0] != "sysop" {
		t.Errorf("Ada groups = %v, want [sysop autoconfirmed]", groups)
	}
	if groups, ok := out["Nobody"]; !ok || groups != nil {
		t.Errorf("Unknown user groups = %v (present=%t), want nil", groups, ok)
	}
}

func TestActionsWhoami(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,"query":{"userinfo":{"id":0,"name":"127.0.0.1","anon":true}}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	name, err := a.Whoami(context.Background())
	if err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if name != "127.0.0.1" {
		t.Errorf("Whoami() = %q, want the anonymous IP", name)
	}
}

func TestActionsUploadableFiletypes(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{"fileextensions":[{"ext":"png"},{"ext":"svg"},{"ext":"png"}]}}`,
		},
	}

	a := NewActions(inv, DefaultOptions())
	exts, err := a.UploadableFiletypes(context.Background())
	if err != nil {
		t.Fatalf("UploadableFiletypes() error = %v", err)
	}
	if !exts[".png"] || !exts[".svg"] {
		t.Errorf("Extensions = %v, want .png and .svg", exts)
	}
	if len(exts) != 2 {
		t.Errorf("Extension set size = %d, want 2 (deduplicated)", len(exts))
	}
}

func TestActionsStreamParameters(t *testing.T) {
	tests := []struct {
		name string
		want map[string]string
	}{
		{"categorymembers", map[string]string{
			"list": "categorymembers", "cmtitle": "Category:Stars", "cmnamespace": "0|14", "cmlimit": "max",
		}},
		{"allpages", map[string]string{
			"list": "allpages", "apnamespace": "2", "apprefix": "Ada/", "aplimit": "max",
		}},
		{"search", map[string]string{
			"list": "search", "srsearch": "red dwarf", "srlimit": "max",
		}},
		{"usercontribs", map[string]string{
			"list": "usercontribs", "ucuser": "Ada", "ucdir": "newer", "uclimit": "max",
		}},
		{"logevents", map[string]string{
			"list": "logevents", "letype": "delete", "leuser": "Ada", "lelimit": "max",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &scriptedInvoker{}
			a := NewActions(inv, DefaultOptions())

			var s *Stream[response.TitleEntry]
			switch tt.name {
			case "categorymembers":
				s = a.CategoryMembers("Category:Stars", "0|14")
			case "allpages":
				s = a.PrefixIndex("2", "Ada/")
			case "search":
				s = a.Search("red dwarf", "")
			}

			if s != nil {
				for s.Next(context.Background()) {
				}
				if s.Err() != nil {
					t.Fatalf("Stream error = %v", s.Err())
				}
			}

			switch tt.name {
			case "usercontribs":
				cs := a.Contribs(ContribsQuery{User: "Ada", OlderFirst: true})
				for cs.Next(context.Background()) {
				}
				if cs.Err() != nil {
					t.Fatalf("Stream error = %v", cs.Err())
				}
			case "logevents":
				ls := a.Logs(LogsQuery{Type: "delete", User: "Ada"})
				for ls.Next(context.Background()) {
				}
				if ls.Err() != nil {
					t.Fatalf("Stream error = %v", ls.Err())
				}
			}

			req := inv.callAt(t, 0)
			for k, v := range tt.want {
				if req[k] != v {
					t.Errorf("Request[%q] = %q, want %q", k, req[k], v)
				}
			}
		})
	}
}
