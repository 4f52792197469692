package wiki

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/engine"
)

// newTestWiki поднимает фейковый api.php и возвращает клиент и домен вики.
func newTestWiki(t *testing.T, handler http.HandlerFunc) (*MediaWiki, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{HTTPClient: srv.Client(), Scheme: "http", UserAgent: "test-agent", Maxlag: 5})
	return c, strings.TrimPrefix(srv.URL, "http://")
}

func param(r *http.Request, name string) string {
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.Form.Get(name)
}

// --- FetchPages Tests ---

func TestFetchPages(t *testing.T) {
	c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/w/api.php" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if param(r, "maxlag") != "5" || param(r, "redirects") != "1" {
			t.Errorf("params = %v", r.Form)
		}
		if got := param(r, "titles"); got != "a page|Redirect|Gone" {
			t.Errorf("titles = %q", got)
		}
		w.Write([]byte(`{
			"curtimestamp": "2024-03-01T10:00:00Z",
			"query": {
				"normalized": [{"from": "a page", "to": "A page"}],
				"redirects": [{"from": "Redirect", "to": "Target"}],
				"pages": [
					{"pageid": 1, "title": "A page", "revisions": [{"revid": 10, "timestamp": "2024-02-01T00:00:00Z", "slots": {"main": {"content": "Text A"}}}]},
					{"pageid": 2, "title": "Target", "revisions": [{"revid": 20, "timestamp": "2024-02-02T00:00:00Z", "slots": {"main": {"content": "Text B"}}}]},
					{"title": "Gone", "missing": true}
				]
			}
		}`))
	})

	pages, err := c.Session(host, domain.Credentials{AccessToken: "secret"}).
		FetchPages(context.Background(), []string{"a page", "Redirect", "Gone"}, true)
	if err != nil {
		t.Fatalf("FetchPages: %v", err)
	}

	want := map[string]Page{
		"a page": {
			Title: "A page", PageID: 1, Wikitext: "Text A",
			BaseRevisionID: 10, BaseTimestamp: "2024-02-01T00:00:00Z", StartTimestamp: "2024-03-01T10:00:00Z",
		},
		"Redirect": {
			Title: "Target", PageID: 2, Wikitext: "Text B",
			BaseRevisionID: 20, BaseTimestamp: "2024-02-02T00:00:00Z", StartTimestamp: "2024-03-01T10:00:00Z",
		},
		"Gone": {Title: "Gone", Missing: true, StartTimestamp: "2024-03-01T10:00:00Z"},
	}
	if diff := cmp.Diff(want, pages); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchPages_Limits(t *testing.T) {
	var calls atomic.Int32
	c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	s := c.Session(host, domain.Credentials{})

	pages, err := s.FetchPages(context.Background(), nil, false)
	if err != nil || len(pages) != 0 {
		t.Errorf("FetchPages(nil) = %v, %v", pages, err)
	}

	titles := make([]string, MaxTitlesPerFetch+1)
	for i := range titles {
		titles[i] = "P"
	}
	if _, err := s.FetchPages(context.Background(), titles, false); err == nil {
		t.Error("expected error for too many titles")
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}

// --- Error Tests ---

func TestCall_Errors(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		body       string
		wantCode   string
		wantRetry  time.Duration
		wantReason string
		wantBlock  *BlockDetails
	}{
		{
			name:      "maxlag with Retry-After",
			header:    "7",
			body:      `{"error": {"code": "maxlag", "info": "Waiting for db: 9 seconds lagged", "lag": 9}}`,
			wantCode:  "maxlag",
			wantRetry: 7 * time.Second,
		},
		{
			name:      "maxlag falls back to lag",
			body:      `{"error": {"code": "maxlag", "info": "lagged", "lag": 3}}`,
			wantCode:  "maxlag",
			wantRetry: 3 * time.Second,
		},
		{
			name:       "readonly",
			body:       `{"error": {"code": "readonly", "info": "The wiki is in read-only mode", "readonlyreason": "Maintenance"}}`,
			wantCode:   "readonly",
			wantReason: "Maintenance",
		},
		{
			name:      "blocked",
			body:      `{"error": {"code": "partialblocked", "info": "blocked", "blockinfo": {"blockid": 42, "blockedby": "Admin", "blockreason": "spam", "blockexpiry": "infinite", "blockpartial": true}}}`,
			wantCode:  "partialblocked",
			wantBlock: &BlockDetails{ID: 42, By: "Admin", Reason: "spam", Expiry: "infinite", Partial: true},
		},
		{
			name:     "edit conflict",
			body:     `{"error": {"code": "editconflict", "info": "Edit conflict detected"}}`,
			wantCode: "editconflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.Write([]byte(tt.body))
			})

			_, err := c.Session(host, domain.Credentials{}).FetchPages(context.Background(), []string{"P"}, false)
			we, ok := AsError(err)
			if !ok {
				t.Fatalf("error = %v, want *Error", err)
			}
			if we.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", we.Code, tt.wantCode)
			}
			if we.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %s, want %s", we.RetryAfter, tt.wantRetry)
			}
			if we.ReadOnlyReason != tt.wantReason {
				t.Errorf("ReadOnlyReason = %q, want %q", we.ReadOnlyReason, tt.wantReason)
			}
			if diff := cmp.Diff(tt.wantBlock, we.Block); diff != "" {
				t.Errorf("Block mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCall_BadResponse(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"json":   func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>")) },
		"absent": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"query": {"pages": []}}`)) },
	} {
		t.Run(name, func(t *testing.T) {
			c, host := newTestWiki(t, handler)
			_, err := c.Session(host, domain.Credentials{}).FetchPages(context.Background(), []string{"P"}, false)
			if !errors.Is(err, ErrBadResponse) {
				t.Errorf("error = %v, want ErrBadResponse", err)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{" 12 ", 12 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{"Mon, 01 Jan 2001 00:00:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// --- EditPage Tests ---

func TestEditPage(t *testing.T) {
	var tokenCalls atomic.Int32
	c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
		switch param(r, "action") {
		case "query":
			tokenCalls.Add(1)
			w.Write([]byte(`{"query": {"tokens": {"csrftoken": "tok+\\"}}}`))
		case "edit":
			if r.Method != http.MethodPost {
				t.Errorf("method = %s", r.Method)
			}
			checks := map[string]string{
				"pageid": "7", "text": "New text", "summary": "+[[Category:A]]",
				"baserevid": "10", "basetimestamp": "2024-02-01T00:00:00Z",
				"starttimestamp": "2024-03-01T10:00:00Z", "minor": "1",
				"nocreate": "1", "token": `tok+\`,
			}
			for k, v := range checks {
				if got := param(r, k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
			w.Write([]byte(`{"edit": {"result": "Success", "pageid": 7, "oldrevid": 10, "newrevid": 11}}`))
		}
	})

	s := c.Session(host, domain.Credentials{AccessToken: "secret"})
	req := EditRequest{
		PageID: 7, Text: "New text", Summary: "+[[Category:A]]", Minor: true,
		BaseRevisionID: 10, BaseTimestamp: "2024-02-01T00:00:00Z", StartTimestamp: "2024-03-01T10:00:00Z",
	}
	for range 2 {
		res, err := s.EditPage(context.Background(), req)
		if err != nil {
			t.Fatalf("EditPage: %v", err)
		}
		if res != (EditResult{OldRevisionID: 10, NewRevisionID: 11}) {
			t.Errorf("result = %+v", res)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("token requests = %d, want 1", tokenCalls.Load())
	}
}

func TestEditPage_NoChange(t *testing.T) {
	c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
		if param(r, "action") == "query" {
			w.Write([]byte(`{"query": {"tokens": {"csrftoken": "tok"}}}`))
			return
		}
		w.Write([]byte(`{"edit": {"result": "Success", "pageid": 7, "nochange": true}}`))
	})

	res, err := c.Session(host, domain.Credentials{AccessToken: "x"}).EditPage(context.Background(), EditRequest{PageID: 7})
	if err != nil {
		t.Fatalf("EditPage: %v", err)
	}
	if !res.NoChange {
		t.Error("NoChange = false")
	}
}

// --- CategoryInfo Tests ---

func TestCategoryInfo_Cached(t *testing.T) {
	var calls atomic.Int32
	c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"query": {
			"namespaces": {
				"0": {"id": 0, "case": "first-letter", "name": ""},
				"14": {"id": 14, "case": "case-sensitive", "name": "Kategorie", "canonical": "Category"}
			},
			"namespacealiases": [{"id": 14, "alias": "Kat"}, {"id": 4, "alias": "WP"}]
		}}`))
	})

	want := engine.CategoryInfo{
		PrimaryName: "Kategorie",
		Names:       []string{"Kategorie", "Category", "Kat"},
		Case:        engine.CaseSensitive,
	}
	for range 3 {
		info, err := c.Session(host, domain.Credentials{}).CategoryInfo(context.Background())
		if err != nil {
			t.Fatalf("CategoryInfo: %v", err)
		}
		if diff := cmp.Diff(want, info); diff != "" {
			t.Errorf("info mismatch (-want +got):\n%s", diff)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("siteinfo requests = %d, want 1", calls.Load())
	}
}

func TestCategoryInfo_ErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"query": {"namespaces": {"14": {"id": 14, "case": "first-letter", "name": "Category", "canonical": "Category"}}}}`))
	})

	s := c.Session(host, domain.Credentials{})
	if _, err := s.CategoryInfo(context.Background()); err == nil {
		t.Fatal("expected error on first call")
	}
	info, err := s.CategoryInfo(context.Background())
	if err != nil {
		t.Fatalf("CategoryInfo: %v", err)
	}
	if diff := cmp.Diff(engine.DefaultCategoryInfo(), info); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
}

// --- CurrentUser Tests ---

func TestCurrentUser(t *testing.T) {
	c, host := newTestWiki(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Write([]byte(`{"query": {"userinfo": {"id": 0, "name": "127.0.0.1", "anon": true}}}`))
			return
		}
		w.Write([]byte(`{"query": {"userinfo": {"id": 12, "name": "Editor"}, "globaluserinfo": {"id": 34, "name": "Editor"}}}`))
	})

	user, err := c.Session(host, domain.Credentials{AccessToken: "secret"}).CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	want := domain.LocalUser{Domain: host, LocalUserID: 12, GlobalUserID: 34, UserName: "Editor"}
	if user != want {
		t.Errorf("user = %+v, want %+v", user, want)
	}

	_, err = c.Session(host, domain.Credentials{}).CurrentUser(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("anonymous error = %v, want ErrNotAuthenticated", err)
	}
}
