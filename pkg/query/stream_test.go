package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

func memberPage(offset, n int, cursor string) string {
	var items []string
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"pageid":%d,"ns":0,"title":"Page %d"}`, offset+i, offset+i))
	}
	cont := ""
	if cursor != "" {
		cont = fmt.Sprintf(`"continue":{"cmcontinue":%q,"continue":"-||"},`, cursor)
	}
	return fmt.Sprintf(`{"batchcomplete":%t,%s"query":{"categorymembers":[%s]}}`,
		cursor == "", cont, strings.Join(items, ","))
}

func membersDescriptor() Descriptor[response.TitleEntry] {
	return Descriptor[response.TitleEntry]{
		Name:        "categorymembers",
		Mode:        ModeList,
		Params:      map[string]string{"cmtitle": "Category:Stars"},
		LimitKey:    "cmlimit",
		ExtractList: decodeItems[response.TitleEntry],
	}
}

func TestStreamYieldsAllUnits(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			memberPage(0, 10, "c1"),
			memberPage(10, 10, "c2"),
			memberPage(20, 10, ""),
		},
	}

	s := NewStream(inv, membersDescriptor(), nil, DefaultOptions())
	ctx := context.Background()

	var got []string
	for s.Next(ctx) {
		u := s.Unit()
		if u.Key != SyntheticKey {
			t.Fatalf("Unit key = %q, want synthetic key", u.Key)
		}
		got = append(got, u.Item.Title)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v after clean exhaustion", err)
	}

	if len(got) != 30 {
		t.Fatalf("Streamed %d units, want 30", len(got))
	}
	// Server order is preserved.
	for i, title := range got {
		if want := fmt.Sprintf("Page %d", i); title != want {
			t.Fatalf("Unit %d = %q, want %q", i, title, want)
		}
	}
	if inv.callCount() != 3 {
		t.Errorf("Expected 3 requests, got %d", inv.callCount())
	}

	// Exhausted streams stay exhausted.
	if s.Next(ctx) {
		t.Error("Next() = true after exhaustion")
	}
}

func TestStreamFetchesLazily(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			memberPage(0, 10, "c1"),
			memberPage(10, 10, ""),
		},
	}

	s := NewStream(inv, membersDescriptor(), nil, DefaultOptions())
	ctx := context.Background()

	// Consuming within the first page must not trigger the second request.
	for i := 0; i < 10; i++ {
		if !s.Next(ctx) {
			t.Fatalf("Next() = false at unit %d", i)
		}
	}
	if inv.callCount() != 1 {
		t.Errorf("Requests after first page = %d, want 1", inv.callCount())
	}

	if !s.Next(ctx) {
		t.Fatal("Next() = false entering second page")
	}
	if inv.callCount() != 2 {
		t.Errorf("Requests after crossing page boundary = %d, want 2", inv.callCount())
	}
}

func TestStreamAbandonment(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			memberPage(0, 10, "c1"),
			memberPage(10, 10, ""),
		},
	}

	s := NewStream(inv, membersDescriptor(), nil, DefaultOptions())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !s.Next(ctx) {
			t.Fatalf("Next() = false at unit %d", i)
		}
	}
	s.Close()
	s.Close() // idempotent

	if s.Next(ctx) {
		t.Error("Next() = true after Close")
	}
	if inv.callCount() != 1 {
		t.Errorf("Requests after abandonment = %d, want 1", inv.callCount())
	}
}

func TestStreamPropagatesError(t *testing.T) {
	cause := errors.New("transport failed")
	inv := &scriptedInvoker{
		bodies: []string{memberPage(0, 5, "c1"), ""},
		errs:   []error{nil, cause},
	}

	s := NewStream(inv, membersDescriptor(), nil, DefaultOptions())
	ctx := context.Background()

	n := 0
	for s.Next(ctx) {
		n++
	}
	if n != 5 {
		t.Errorf("Streamed %d units before failure, want 5", n)
	}
	if !errors.Is(s.Err(), cause) {
		t.Errorf("Err() = %v, want wrapped %v", s.Err(), cause)
	}

	// A failed stream stays failed.
	if s.Next(ctx) {
		t.Error("Next() = true after error")
	}
}

func TestStreamPropMode(t *testing.T) {
	inv := &scriptedInvoker{
		bodies: []string{
			`{"batchcomplete":true,
			  "query":{"pages":[
			    {"pageid":1,"ns":0,"title":"Alpha","revisions":[
			      {"revid":2,"comment":"second","user":"Ada"},
			      {"revid":1,"comment":"first","user":"Ada"}
			    ]}
			  ]}}`,
		},
	}

	desc := Descriptor[response.Revision]{
		Name:     "revisions",
		Mode:     ModeProp,
		LimitKey: "rvlimit",
		ExtractPage: func(p response.Page) ([]response.Revision, error) {
			return pageModule[response.Revision](p, "revisions")
		},
	}

	s := NewStream(inv, desc, []string{"Alpha"}, DefaultOptions())
	ctx := context.Background()

	var revs []response.Revision
	for s.Next(ctx) {
		if s.Unit().Key != "Alpha" {
			t.Fatalf("Unit key = %q, want Alpha", s.Unit().Key)
		}
		revs = append(revs, s.Unit().Item)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(revs) != 2 || revs[0].RevID != 2 || revs[1].RevID != 1 {
		t.Errorf("Revisions = %+v, want revids [2 1]", revs)
	}
}
