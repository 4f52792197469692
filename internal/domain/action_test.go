package domain

import (
	"errors"
	"testing"

	"github.com/shaiso/quickcategories/internal/engine"
)

var enwiki = engine.DefaultCategoryInfo()

// --- Apply Tests ---

func TestAction_Apply(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		text   string
		want   string
	}{
		{"add to empty", AddCategory{"Test"}, "", "[[Category:Test]]"},
		{"add to text", AddCategory{"Test"}, "end of article", "end of article\n[[Category:Test]]"},
		{"add after last category", AddCategory{"Test"}, "text\n[[Category:A]]\n[[Category:B]]\n{{stub}}", "text\n[[Category:A]]\n[[Category:B]]\n[[Category:Test]]\n{{stub}}"},
		{"add existing", AddCategory{"Test"}, "[[Category:Test|key]]", "[[Category:Test|key]]"},
		{"add existing lowercase first letter", AddCategory{"Test"}, "[[category:test]]", "[[category:test]]"},
		{"add ignores colon link", AddCategory{"Test"}, "[[:Category:Test]]", "[[:Category:Test]]\n[[Category:Test]]"},

		{"with sort key", AddCategoryWithSortKey{"Test", "key"}, "", "[[Category:Test|key]]"},
		{"with sort key existing", AddCategoryWithSortKey{"Test", "key"}, "[[Category:Test]]", "[[Category:Test]]"},

		{"provide sort key", AddCategoryProvideSortKey{"Test", "sort key"}, "[[Category:Test]]", "[[Category:Test|sort key]]"},
		{"provide sort key other", AddCategoryProvideSortKey{"Test", "sort key"}, "[[Category:Test|other]]", "[[Category:Test|other]]"},
		{"provide sort key empty label", AddCategoryProvideSortKey{"Test", "sort key"}, "[[Category:Test|]]", "[[Category:Test|sort key]]"},
		{"provide sort key missing", AddCategoryProvideSortKey{"Test", "sort key"}, "x", "x\n[[Category:Test|sort key]]"},

		{"replace sort key", AddCategoryReplaceSortKey{"Test", "new"}, "[[Category:Test|old]]", "[[Category:Test|new]]"},
		{"replace sort key bare", AddCategoryReplaceSortKey{"Test", "new"}, "[[Category:Test]]", "[[Category:Test|new]]"},
		{"replace sort key drop", AddCategoryReplaceSortKey{"Test", ""}, "[[Category:Test|old]]", "[[Category:Test]]"},
		{"replace sort key missing", AddCategoryReplaceSortKey{"Test", ""}, "", "[[Category:Test]]"},

		{"remove only", RemoveCategory{"Test"}, "[[Category:Test]]", ""},
		{"remove middle", RemoveCategory{"Test"}, "[[Category:Start]]\n[[Category:Test]]\n[[Category:End]]", "[[Category:Start]]\n[[Category:End]]"},
		{"remove with any sort key", RemoveCategory{"Test"}, "a\n[[Category:Test|k]]", "a"},
		{"remove first only", RemoveCategory{"Test"}, "[[Category:Test]]\n[[Category:Test|k]]", "[[Category:Test|k]]"},
		{"remove missing", RemoveCategory{"Test"}, "[[Category:Other]]", "[[Category:Other]]"},
		{"remove underscore", RemoveCategory{"Some name"}, "[[Category:Some_name]]", ""},

		{"remove with sort key", RemoveCategoryWithSortKey{"Test", "k"}, "a\n[[Category:Test|k]]", "a"},
		{"remove with sort key other", RemoveCategoryWithSortKey{"Test", "k"}, "[[Category:Test|x]]", "[[Category:Test|x]]"},
		{"remove with sort key none", RemoveCategoryWithSortKey{"Test", "k"}, "[[Category:Test]]", "[[Category:Test]]"},
		{"remove with sort key skips", RemoveCategoryWithSortKey{"Test", "k"}, "[[Category:Test]]\n[[Category:Test|k]]", "[[Category:Test]]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.action.Apply(tt.text, enwiki); got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestAction_Apply_Idempotent(t *testing.T) {
	actions := []Action{
		AddCategory{"Test"},
		AddCategoryWithSortKey{"Test", "key"},
		AddCategoryProvideSortKey{"Test", "key"},
		AddCategoryReplaceSortKey{"Test", "key"},
		AddCategoryReplaceSortKey{"Test", ""},
		RemoveCategory{"Test"},
		RemoveCategoryWithSortKey{"Test", "key"},
	}
	texts := []string{
		"",
		"end of article",
		"[[Category:Test]]",
		"[[Category:Test|other]]",
		"[[Category:Test|]]",
		"a\n[[Category:Start]]\n[[Category:Test|key]]\n{{footer}}",
		"[[:Category:Test]]",
		"<!-- [[Category:Test]] -->",
		"<!--{{t|[[Category:Test]]}}",
		"text\n<nowiki>[[Category:Test]]",
		"[[Category:Other]]\n<pre>open",
	}

	for _, a := range actions {
		for _, text := range texts {
			once := a.Apply(text, enwiki)
			twice := a.Apply(once, enwiki)
			if once != twice {
				t.Errorf("%s on %q: first %q, second %q", a.Kind(), text, once, twice)
			}
		}
	}
}

func TestAction_Apply_LocalNamespace(t *testing.T) {
	dewiki := engine.CategoryInfo{
		PrimaryName: "Kategorie",
		Names:       []string{"Kategorie", "Category"},
		Case:        engine.CaseFirstLetter,
	}

	got := AddCategory{"Neu"}.Apply("[[Category:Alt]]", dewiki)
	if want := "[[Category:Alt]]\n[[Kategorie:Neu]]"; got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}

	got = RemoveCategory{"Alt"}.Apply(got, dewiki)
	if want := "[[Kategorie:Neu]]"; got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
}

// --- Validation Tests ---

func TestValidateAction(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr error
	}{
		{"valid", AddCategory{"Test"}, nil},
		{"empty", AddCategory{""}, ErrEmptyCategory},
		{"blank", RemoveCategory{"  "}, ErrEmptyCategory},
		{"wikilink", AddCategory{"[[Category:Test]]"}, ErrCategoryWikilink},
		{"pipe", AddCategory{"Test|key"}, ErrCategoryWikilink},
		{"namespace", AddCategory{"Category:Test"}, ErrCategoryNamespace},
		{"sort key required", AddCategoryWithSortKey{"Test", ""}, ErrEmptySortKey},
		{"provide sort key required", AddCategoryProvideSortKey{"Test", ""}, ErrEmptySortKey},
		{"remove sort key required", RemoveCategoryWithSortKey{"Test", ""}, ErrEmptySortKey},
		{"replace sort key may be empty", AddCategoryReplaceSortKey{"Test", ""}, nil},
		{"sort key brackets", AddCategoryWithSortKey{"Test", "a]]b"}, ErrInvalidSortKey},
		{"sort key newline", AddCategoryReplaceSortKey{"Test", "a\nb"}, ErrInvalidSortKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAction(tt.action)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewAddCategory_Invalid(t *testing.T) {
	_, err := NewAddCategory("Category:Test")

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Field != "category" {
		t.Errorf("Field = %q, want category", ve.Field)
	}
}

// --- Metadata Tests ---

func TestAction_SummaryFragment(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{AddCategory{"A"}, "+[[Category:A]]"},
		{AddCategoryWithSortKey{"A", "k"}, "+[[Category:A|k]]"},
		{AddCategoryProvideSortKey{"A", "k"}, "+[[Category:A|k]]"},
		{AddCategoryReplaceSortKey{"A", "k"}, "±[[Category:A|k]]"},
		{AddCategoryReplaceSortKey{"A", ""}, "±[[Category:A]]"},
		{RemoveCategory{"A"}, "-[[Category:A]]"},
		{RemoveCategoryWithSortKey{"A", "k"}, "-[[Category:A|k]]"},
	}

	for _, tt := range tests {
		if got := tt.action.SummaryFragment(enwiki); got != tt.want {
			t.Errorf("%s.SummaryFragment() = %q, want %q", tt.action.Kind(), got, tt.want)
		}
	}
}

func TestAction_IsMinor(t *testing.T) {
	if !(AddCategory{"A"}).IsMinor() || !(AddCategoryReplaceSortKey{"A", ""}).IsMinor() {
		t.Error("add actions must be minor")
	}
	if (RemoveCategory{"A"}).IsMinor() || (RemoveCategoryWithSortKey{"A", "k"}).IsMinor() {
		t.Error("remove actions must not be minor")
	}
}

func TestAction_Cleanup(t *testing.T) {
	a := AddCategoryWithSortKey{"Some_name", "key_1"}
	got := a.Cleanup()

	want := AddCategoryWithSortKey{"Some name", "key_1"}
	if got != want {
		t.Errorf("Cleanup() = %#v, want %#v", got, want)
	}
	if a.Category != "Some_name" {
		t.Error("Cleanup must not modify the receiver")
	}
}
