package engine

import (
	"testing"
)

func TestCategoryInfo_CategoryName(t *testing.T) {
	info := CategoryInfo{
		PrimaryName: "Kategorie",
		Names:       []string{"Kategorie", "Category"},
		Case:        CaseFirstLetter,
	}

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"primary", "[[Kategorie:Test]]", "Test", true},
		{"alias", "[[Category:Test]]", "Test", true},
		{"lowercase namespace", "[[category:Test]]", "Test", true},
		{"underscores and spaces", "[[ Category _:_Some_name ]]", "Some name", true},
		{"leading colon", "[[:Category:Test]]", "", false},
		{"other namespace", "[[File:Test.png]]", "", false},
		{"no namespace", "[[Test]]", "", false},
		{"sort key", "[[Category:Test|key]]", "Test", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := info.CategoryName(Parse(tt.text)[0])
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("CategoryName(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCategoryInfo_SameCategory(t *testing.T) {
	firstLetter := CategoryInfo{Case: CaseFirstLetter}
	sensitive := CategoryInfo{Case: CaseSensitive}

	tests := []struct {
		a, b        string
		firstLetter bool
		sensitive   bool
	}{
		{"Test", "Test", true, true},
		{"test", "Test", true, false},
		{"TEST", "Test", false, false},
		{"Some_name", "Some name", true, true},
		{"éclair", "Éclair", true, false},
	}

	for _, tt := range tests {
		if got := firstLetter.SameCategory(tt.a, tt.b); got != tt.firstLetter {
			t.Errorf("first-letter SameCategory(%q, %q) = %v", tt.a, tt.b, got)
		}
		if got := sensitive.SameCategory(tt.a, tt.b); got != tt.sensitive {
			t.Errorf("case-sensitive SameCategory(%q, %q) = %v", tt.a, tt.b, got)
		}
	}
}

func TestDocument_InsertCategory(t *testing.T) {
	info := DefaultCategoryInfo()
	link := info.NewCategoryLink("New", "", false)

	tests := []struct {
		text string
		want string
	}{
		{"", "[[Category:New]]"},
		{"end of article", "end of article\n[[Category:New]]"},
		{"text\n[[Category:A]]\n{{footer}}", "text\n[[Category:A]]\n[[Category:New]]\n{{footer}}"},
		{"[[Category:A]][[Category:B]] tail", "[[Category:A]][[Category:B]]\n[[Category:New]] tail"},
		{"<!-- only a comment -->", "<!-- only a comment -->\n[[Category:New]]"},
		{"<!--{{t|[[Category:New]]}}", "[[Category:New]]\n<!--{{t|[[Category:New]]}}"},
		{"text <!-- open", "text \n[[Category:New]]\n<!-- open"},
		{"text\n<nowiki>open", "text\n\n[[Category:New]]\n<nowiki>open"},
		{"[[Category:A]]\n<!-- open", "[[Category:A]]\n[[Category:New]]\n<!-- open"},
	}

	for _, tt := range tests {
		if got := Parse(tt.text).InsertCategory(info, link).String(); got != tt.want {
			t.Errorf("InsertCategory(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestDocument_RemoveAt(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"[[Category:Test]]", ""},
		{"a\n[[Category:Test]]\nb", "a\nb"},
		{"[[Category:Test]]\nb", "b"},
		{"a [[Category:Test]] b", "a  b"},
		{"<!--c-->[[Category:Test]]\nb", "<!--c-->b"},
	}

	info := DefaultCategoryInfo()
	for _, tt := range tests {
		doc := Parse(tt.text)
		idx, ok := doc.FindCategory(info, "Test")
		if !ok {
			t.Fatalf("category not found in %q", tt.text)
		}
		if got := doc.RemoveAt(idx).String(); got != tt.want {
			t.Errorf("RemoveAt(%q) = %q, want %q", tt.text, got, tt.want)
		}
		// исходный документ не меняется
		if doc.String() != tt.text {
			t.Errorf("source document mutated: %q", doc.String())
		}
	}
}

func TestDocument_FindCategory_IgnoresOpaque(t *testing.T) {
	doc := Parse("{{T|[[Category:Test]]}}<!-- [[Category:Test]] -->")
	if _, ok := doc.FindCategory(DefaultCategoryInfo(), "Test"); ok {
		t.Error("links inside templates and comments must not match")
	}
}
