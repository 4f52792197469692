package engine

import (
	"strings"
)

// SegmentKind — тип сегмента викитекста.
type SegmentKind int

const (
	// SegmentText — обычный текст.
	SegmentText SegmentKind = iota

	// SegmentLink — викиссылка верхнего уровня [[target|label]].
	SegmentLink

	// SegmentOpaque — фрагмент, внутри которого ссылки не ищутся:
	// комментарии, шаблоны, <nowiki>, <pre> и похожие теги.
	SegmentOpaque
)

// Segment — неизменяемый фрагмент викитекста.
type Segment struct {
	Kind SegmentKind

	// Raw — исходный текст сегмента. Для изменённых ссылок — отрендеренная ссылка.
	Raw string

	// Target — цель ссылки (текст между [[ и первым |), только для SegmentLink.
	Target string

	// Label — текст после первого |. Для категорий это ключ сортировки.
	Label string

	// HasLabel — есть ли в ссылке |, даже с пустым Label.
	HasLabel bool

	// Unterminated — непрозрачный сегмент без закрывающей части,
	// поглотивший весь остаток текста (например, незакрытый <!--).
	Unterminated bool
}

// Text создаёт текстовый сегмент.
func Text(s string) Segment {
	return Segment{Kind: SegmentText, Raw: s}
}

// Link создаёт сегмент ссылки из цели и необязательной подписи.
func Link(target, label string, hasLabel bool) Segment {
	seg := Segment{Kind: SegmentLink, Target: target, Label: label, HasLabel: hasLabel}
	seg.Raw = seg.render()
	return seg
}

// WithLabel возвращает копию ссылки с новой подписью.
// Цель ссылки сохраняется побайтно.
func (s Segment) WithLabel(label string, hasLabel bool) Segment {
	return Link(s.Target, label, hasLabel)
}

func (s Segment) render() string {
	if s.HasLabel {
		return "[[" + s.Target + "|" + s.Label + "]]"
	}
	return "[[" + s.Target + "]]"
}

// Document — викитекст как последовательность сегментов.
// Сегменты конкатенируются обратно в исходный текст без потерь.
type Document []Segment

// String собирает документ обратно в викитекст.
func (d Document) String() string {
	var b strings.Builder
	for _, seg := range d {
		b.WriteString(seg.Raw)
	}
	return b.String()
}

// IsEmpty возвращает true, если документ не содержит ни одного символа.
func (d Document) IsEmpty() bool {
	for _, seg := range d {
		if seg.Raw != "" {
			return false
		}
	}
	return true
}

// opaqueTags — теги, содержимое которых не разбирается как викитекст.
var opaqueTags = []string{"nowiki", "pre", "syntaxhighlight", "source", "math", "includeonly", "noinclude"}

// Parse разбирает викитекст на сегменты.
//
// Parse никогда не возвращает ошибку: всё, что не удалось распознать
// (незакрытые [[, {{ и т.п.), остаётся текстом.
func Parse(text string) Document {
	var doc Document
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			doc = append(doc, Text(buf.String()))
			buf.Reset()
		}
	}

	for i := 0; i < len(text); {
		rest := text[i:]

		if strings.HasPrefix(rest, "<!--") {
			end := strings.Index(rest[4:], "-->")
			n := len(rest)
			if end >= 0 {
				n = 4 + end + 3
			}
			flush()
			doc = append(doc, Segment{Kind: SegmentOpaque, Raw: rest[:n], Unterminated: end < 0})
			i += n
			continue
		}

		if rest[0] == '<' {
			if n, closed := matchOpaqueTag(rest); n > 0 {
				flush()
				doc = append(doc, Segment{Kind: SegmentOpaque, Raw: rest[:n], Unterminated: !closed})
				i += n
				continue
			}
		}

		if strings.HasPrefix(rest, "{{") {
			if n := matchBalanced(rest, "{{", "}}"); n > 0 {
				flush()
				doc = append(doc, Segment{Kind: SegmentOpaque, Raw: rest[:n]})
				i += n
				continue
			}
		}

		if strings.HasPrefix(rest, "[[") {
			if n := matchBalanced(rest, "[[", "]]"); n > 0 {
				flush()
				doc = append(doc, parseLink(rest[:n]))
				i += n
				continue
			}
		}

		buf.WriteByte(text[i])
		i++
	}
	flush()

	return doc
}

// parseLink разбирает [[...]] в сегмент ссылки, сохраняя Raw.
func parseLink(raw string) Segment {
	inner := raw[2 : len(raw)-2]
	seg := Segment{Kind: SegmentLink, Raw: raw, Target: inner}
	if pipe := strings.IndexByte(inner, '|'); pipe >= 0 {
		seg.Target = inner[:pipe]
		seg.Label = inner[pipe+1:]
		seg.HasLabel = true
	}
	return seg
}

// matchBalanced возвращает длину сбалансированной конструкции open...close
// в начале s (с учётом вложенности), либо 0.
func matchBalanced(s, open, close string) int {
	depth := 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], open):
			depth++
			i += len(open)
		case strings.HasPrefix(s[i:], close):
			depth--
			i += len(close)
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return 0
}

// matchOpaqueTag возвращает длину тега из opaqueTags вместе с содержимым
// и закрывающим тегом в начале s, либо 0. closed == false, если закрывающего
// тега нет и тег занимает весь остаток s.
func matchOpaqueTag(s string) (n int, closed bool) {
	lower := strings.ToLower(s)
	for _, tag := range opaqueTags {
		if !strings.HasPrefix(lower, "<"+tag) {
			continue
		}
		after := lower[len(tag)+1:]
		if after == "" || !(after[0] == '>' || after[0] == '/' || after[0] == ' ' || after[0] == '\t' || after[0] == '\n') {
			continue
		}
		gt := strings.IndexByte(after, '>')
		if gt < 0 {
			return 0, false
		}
		openLen := len(tag) + 1 + gt + 1
		if gt > 0 && after[gt-1] == '/' {
			// самозакрывающийся тег, например <nowiki/>
			return openLen, true
		}
		closing := "</" + tag + ">"
		end := strings.Index(lower[openLen:], closing)
		if end < 0 {
			return len(s), false
		}
		return openLen + end + len(closing), true
	}
	return 0, false
}

// mergeText склеивает соседние текстовые сегменты и выбрасывает пустые.
func mergeText(d Document) Document {
	out := make(Document, 0, len(d))
	for _, seg := range d {
		if seg.Kind == SegmentText {
			if seg.Raw == "" {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Kind == SegmentText {
				out[n-1] = Text(out[n-1].Raw + seg.Raw)
				continue
			}
		}
		out = append(out, seg)
	}
	return out
}
