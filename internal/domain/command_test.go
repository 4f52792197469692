package domain

import (
	"errors"
	"testing"
)

func TestCommand_Apply_NoopFlags(t *testing.T) {
	cmd := Command{
		Page: Page{Title: "Page"},
		Actions: []Action{
			AddCategory{"Added cat"},
			AddCategory{"Already present cat"},
			RemoveCategory{"Removed cat"},
			RemoveCategory{"Not present cat"},
		},
	}
	text := "Text\n[[Category:Already present cat]]\n[[Category:Removed cat]]"

	got, results := cmd.Apply(text, enwiki)

	want := "Text\n[[Category:Already present cat]]\n[[Category:Added cat]]"
	if got != want {
		t.Errorf("Apply() text = %q, want %q", got, want)
	}

	wantNoop := []bool{false, true, false, true}
	if len(results) != len(wantNoop) {
		t.Fatalf("expected %d results, got %d", len(wantNoop), len(results))
	}
	for i, r := range results {
		if r.Noop != wantNoop[i] {
			t.Errorf("results[%d].Noop = %v, want %v", i, r.Noop, wantNoop[i])
		}
		if r.Action != cmd.Actions[i] {
			t.Errorf("results[%d].Action = %v, want %v", i, r.Action, cmd.Actions[i])
		}
	}
}

func TestSummary(t *testing.T) {
	results := []ActionResult{
		{Action: AddCategory{"A"}},
		{Action: AddCategory{"B"}, Noop: true},
		{Action: RemoveCategoryWithSortKey{"C", "k"}},
	}

	got := Summary(results, enwiki)
	want := "+[[Category:A]], (+[[Category:B]]), -[[Category:C|k]]"
	if got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

func TestIsMinorEdit(t *testing.T) {
	tests := []struct {
		name    string
		results []ActionResult
		want    bool
	}{
		{"only adds", []ActionResult{{Action: AddCategory{"A"}}}, true},
		{"remove", []ActionResult{{Action: AddCategory{"A"}}, {Action: RemoveCategory{"B"}}}, false},
		{"remove noop", []ActionResult{{Action: AddCategory{"A"}}, {Action: RemoveCategory{"B"}, Noop: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMinorEdit(tt.results); got != tt.want {
				t.Errorf("IsMinorEdit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"valid", Command{Page: Page{Title: "P"}, Actions: []Action{AddCategory{"A"}}}, nil},
		{"no actions", Command{Page: Page{Title: "P"}}, ErrNoActions},
		{"empty title", Command{Actions: []Action{AddCategory{"A"}}}, ErrEmptyTitle},
		{"sentinel title", Command{Page: Page{Title: "!P"}, Actions: []Action{AddCategory{"A"}}}, ErrTitleSentinel},
		{"pipe in title", Command{Page: Page{Title: "A|B"}, Actions: []Action{AddCategory{"A"}}}, ErrTitleChars},
		{"link as title", Command{Page: Page{Title: "[[P]]"}, Actions: []Action{AddCategory{"A"}}}, ErrTitleChars},
		{"template as title", Command{Page: Page{Title: "{{P}}"}, Actions: []Action{AddCategory{"A"}}}, ErrTitleChars},
		{"tag in title", Command{Page: Page{Title: "P<br>"}, Actions: []Action{AddCategory{"A"}}}, ErrTitleChars},
		{"punctuation title", Command{Page: Page{Title: "Rock & Roll (1955): A/B"}, Actions: []Action{AddCategory{"A"}}}, nil},
		{"invalid action", Command{Page: Page{Title: "P"}, Actions: []Action{AddCategory{"A"}, RemoveCategory{""}}}, ErrEmptyCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cmd.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCommand_Cleanup(t *testing.T) {
	cmd := Command{
		Page:    Page{Title: "Some_page"},
		Actions: []Action{RemoveCategory{"Some_cat"}},
	}

	got := cmd.Cleanup()

	if got.Page.Title != "Some page" {
		t.Errorf("Page.Title = %q", got.Page.Title)
	}
	if got.Actions[0] != (RemoveCategory{"Some cat"}) {
		t.Errorf("Actions[0] = %v", got.Actions[0])
	}
	if cmd.Page.Title != "Some_page" || cmd.Actions[0] != (RemoveCategory{"Some_cat"}) {
		t.Error("Cleanup must not modify the original command")
	}
}

func TestCommand_String(t *testing.T) {
	cmd := Command{
		Page: Page{Title: "Page", ResolveRedirects: RedirectsLiteral},
		Actions: []Action{
			AddCategory{"A"},
			AddCategoryWithSortKey{"B", "k"},
			RemoveCategory{"C"},
		},
	}

	if got, want := cmd.String(), "!Page|+A|+B#k|-C"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNewBatch_Validate(t *testing.T) {
	valid := Command{Page: Page{Title: "P"}, Actions: []Action{AddCategory{"A"}}}

	if err := (NewBatch{}).Validate(); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty batch error = %v, want ErrEmptyBatch", err)
	}

	nb := NewBatch{Commands: []Command{
		valid,
		{Page: Page{Title: ""}, Actions: []Action{AddCategory{"A"}}},
		valid,
		{Page: Page{Title: "P"}, Actions: []Action{AddCategoryWithSortKey{"A", ""}}},
	}}

	err := nb.Validate()

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].Index != 1 || errs[1].Index != 3 {
		t.Errorf("indexes = %d, %d; want 1, 3", errs[0].Index, errs[1].Index)
	}
	if !errors.Is(err, ErrEmptySortKey) {
		t.Error("errors.Is must see individual errors")
	}
}

func TestLocalUser_Equal(t *testing.T) {
	a := LocalUser{Domain: "en.wikipedia.org", LocalUserID: 1, GlobalUserID: 2, UserName: "Old"}
	b := a
	b.UserName = "New"

	if !a.Equal(b) {
		t.Error("rename must not change identity")
	}

	b.GlobalUserID = 3
	if a.Equal(b) {
		t.Error("different global id must not be equal")
	}
}
