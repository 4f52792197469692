package engine

import (
	"testing"
)

func TestParse_RoundTrip(t *testing.T) {
	tests := []string{
		"",
		"plain text",
		"[[Category:Test]]",
		"intro\n[[Category:A|key]]\n[[Category:B]]",
		"{{Infobox|x=[[Category:Hidden]]}}\n[[Category:Visible]]",
		"<!-- [[Category:Commented]] -->",
		"<nowiki>[[Category:Literal]]</nowiki> and <nowiki/> [[Category:Real]]",
		"<pre>\n[[Category:InPre]]\n</pre>",
		"unclosed [[link and {{template",
		"[[File:X.png|thumb|caption with [[link]]]]",
	}

	for _, text := range tests {
		if got := Parse(text).String(); got != text {
			t.Errorf("round trip mismatch:\n got: %q\nwant: %q", got, text)
		}
	}
}

func TestParse_Segments(t *testing.T) {
	doc := Parse("a [[Category:X|k]] {{T|[[Category:Y]]}} <!-- c -->")

	var kinds []SegmentKind
	for _, seg := range doc {
		kinds = append(kinds, seg.Kind)
	}
	want := []SegmentKind{SegmentText, SegmentLink, SegmentText, SegmentOpaque, SegmentText, SegmentOpaque}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d segments, got %d (%v)", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("segment %d: expected kind %d, got %d", i, want[i], kinds[i])
		}
	}

	link := doc[1]
	if link.Target != "Category:X" || link.Label != "k" || !link.HasLabel {
		t.Errorf("unexpected link segment: %+v", link)
	}
}

func TestParse_Unterminated(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"a <!-- open [[Category:X]]", true},
		{"a <nowiki>open", true},
		{"a <pre class=\"x\">open", true},
		{"a <!-- closed -->", false},
		{"a <nowiki>closed</nowiki>", false},
		{"a <nowiki/>", false},
	}

	for _, tt := range tests {
		doc := Parse(tt.text)
		last := doc[len(doc)-1]
		if last.Kind != SegmentOpaque {
			t.Fatalf("Parse(%q): last segment kind = %d, want opaque", tt.text, last.Kind)
		}
		if last.Unterminated != tt.want {
			t.Errorf("Parse(%q): Unterminated = %v, want %v", tt.text, last.Unterminated, tt.want)
		}
	}
}

func TestParse_EmptyLabel(t *testing.T) {
	doc := Parse("[[Category:X|]]")
	if len(doc) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(doc))
	}
	if !doc[0].HasLabel || doc[0].Label != "" {
		t.Errorf("expected empty label, got %+v", doc[0])
	}
}

func TestSegment_WithLabel(t *testing.T) {
	seg := Parse("[[ category : Test ]]")[0]

	if got := seg.WithLabel("key", true).Raw; got != "[[ category : Test |key]]" {
		t.Errorf("unexpected render: %q", got)
	}
	if got := seg.WithLabel("", false).Raw; got != "[[ category : Test ]]" {
		t.Errorf("unexpected render: %q", got)
	}
}
