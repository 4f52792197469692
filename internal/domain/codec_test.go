package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCommand_JSON(t *testing.T) {
	cmd := Command{
		Page: Page{Title: "Page", ResolveRedirects: RedirectsFollow},
		Actions: []Action{
			AddCategory{"A"},
			AddCategoryReplaceSortKey{"B", ""},
			RemoveCategoryWithSortKey{"C", "k"},
		},
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `{"page":{"title":"Page","resolve_redirects":"follow"},"actions":[` +
		`{"type":"add_category","category":"A"},` +
		`{"type":"add_category_replace_sort_key","category":"B","sort_key":""},` +
		`{"type":"remove_category_with_sort_key","category":"C","sort_key":"k"}]}`
	if string(data) != want {
		t.Errorf("Marshal =\n%s\nwant\n%s", data, want)
	}

	var got Command
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(cmd, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalActions_UnknownType(t *testing.T) {
	_, err := UnmarshalActions([]byte(`[{"type":"rename_category","category":"A"}]`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("error = %v, want ErrUnknownAction", err)
	}
}

func TestStatusCodec(t *testing.T) {
	retryAfter := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	statuses := []Status{
		Plan{},
		Pending{},
		Edit{BaseRevision: 1, Revision: 2},
		Noop{Revision: 5},
		NewMaxlagFailure(retryAfter),
		NewBlockedFailure(BlockInfo{ID: 3, By: "Admin", Reason: "spam"}),
	}

	for _, s := range statuses {
		kind, outcome, err := EncodeStatus(s)
		if err != nil {
			t.Fatalf("EncodeStatus(%v): %v", s, err)
		}
		if kind != s.Kind() {
			t.Errorf("kind = %s, want %s", kind, s.Kind())
		}

		got, err := DecodeStatus(kind, outcome)
		if err != nil {
			t.Fatalf("DecodeStatus(%s): %v", kind, err)
		}
		if diff := cmp.Diff(s, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", kind, diff)
		}
	}
}

func TestDecodeStatus_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		kind    StatusKind
		outcome string
	}{
		{"unknown kind", "DONE", ``},
		{"edit order", StatusEdit, `{"base_revision":5,"revision":5}`},
		{"unknown failure", StatusFailure, `{"type":"mystery"}`},
		{"broken json", StatusNoop, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeStatus(tt.kind, []byte(tt.outcome)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
