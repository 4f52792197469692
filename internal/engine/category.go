package engine

import (
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CaseRule — правило сравнения названий страниц в пространстве категорий.
type CaseRule string

const (
	// CaseFirstLetter — первая буква без учёта регистра, остальные с учётом.
	CaseFirstLetter CaseRule = "first-letter"

	// CaseSensitive — сравнение с учётом регистра целиком.
	CaseSensitive CaseRule = "case-sensitive"
)

// CategoryInfo — сведения о пространстве имён категорий конкретной вики.
type CategoryInfo struct {
	// PrimaryName — каноническое имя пространства ("Category", "Kategorie").
	// Используется при вставке новых ссылок.
	PrimaryName string `json:"primary_name"`

	// Names — все распознаваемые имена: каноническое, локальное, алиасы.
	Names []string `json:"names"`

	// Case — правило сравнения названий категорий.
	Case CaseRule `json:"case"`
}

// DefaultCategoryInfo — сведения, совпадающие с англоязычной вики по умолчанию.
func DefaultCategoryInfo() CategoryInfo {
	return CategoryInfo{
		PrimaryName: "Category",
		Names:       []string{"Category"},
		Case:        CaseFirstLetter,
	}
}

// normalizeName заменяет подчёркивания пробелами и обрезает пробелы по краям.
func normalizeName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}

// upperFirst переводит в верхний регистр только первый символ строки.
func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	// cases.Caser хранит состояние, поэтому создаётся на каждый вызов.
	return cases.Upper(language.Und).String(string(r)) + s[size:]
}

// SameCategory сравнивает два названия категории по правилам вики.
// Подчёркивание и пробел всегда считаются одинаковыми.
func (info CategoryInfo) SameCategory(a, b string) bool {
	a, b = normalizeName(a), normalizeName(b)
	if info.Case == CaseSensitive {
		return a == b
	}
	return upperFirst(a) == upperFirst(b)
}

// CategoryName возвращает название категории, если ссылка ведёт
// на страницу категории. Ссылки вида [[:Category:X]] категориями не являются.
func (info CategoryInfo) CategoryName(seg Segment) (string, bool) {
	if seg.Kind != SegmentLink {
		return "", false
	}
	target := strings.TrimSpace(seg.Target)
	if strings.HasPrefix(target, ":") {
		return "", false
	}
	colon := strings.IndexByte(target, ':')
	if colon < 0 {
		return "", false
	}
	prefix := normalizeName(target[:colon])
	for _, name := range info.Names {
		if strings.EqualFold(prefix, normalizeName(name)) {
			return normalizeName(target[colon+1:]), true
		}
	}
	return "", false
}

// NewCategoryLink создаёт ссылку [[Primary:name]] или [[Primary:name|sortKey]].
func (info CategoryInfo) NewCategoryLink(name, sortKey string, hasSortKey bool) Segment {
	return Link(info.PrimaryName+":"+name, sortKey, hasSortKey)
}

// FindCategory возвращает индекс первой ссылки на категорию name.
func (d Document) FindCategory(info CategoryInfo, name string) (int, bool) {
	return d.FindCategoryFunc(info, name, nil)
}

// FindCategoryFunc возвращает индекс первой ссылки на категорию name,
// которую дополнительно принимает match (nil принимает любую).
func (d Document) FindCategoryFunc(info CategoryInfo, name string, match func(Segment) bool) (int, bool) {
	for i, seg := range d {
		got, ok := info.CategoryName(seg)
		if !ok || !info.SameCategory(got, name) {
			continue
		}
		if match == nil || match(seg) {
			return i, true
		}
	}
	return -1, false
}

// SortKey возвращает ключ сортировки ссылки. Пустая подпись [[Category:X|]]
// считается отсутствием ключа.
func (s Segment) SortKey() (string, bool) {
	if !s.HasLabel || s.Label == "" {
		return "", false
	}
	return s.Label, true
}

// lastCategory возвращает индекс последней ссылки на любую категорию, либо -1.
func (d Document) lastCategory(info CategoryInfo) int {
	last := -1
	for i, seg := range d {
		if _, ok := info.CategoryName(seg); ok {
			last = i
		}
	}
	return last
}

// InsertCategory вставляет ссылку сразу после последней ссылки на категорию
// (через перевод строки). Если категорий нет, ссылка дописывается в конец,
// а непустой документ предварительно отделяется переводом строки.
//
// Незакрытый комментарий или тег в конце документа поглощает всё, что
// дописано после него, поэтому ссылка в этом случае ставится перед ним.
func (d Document) InsertCategory(info CategoryInfo, link Segment) Document {
	if last := d.lastCategory(info); last >= 0 {
		out := make(Document, 0, len(d)+2)
		out = append(out, d[:last+1]...)
		out = append(out, Text("\n"), link)
		out = append(out, d[last+1:]...)
		return mergeText(out)
	}

	head, tail := d, Document(nil)
	if n := len(d); n > 0 && d[n-1].Unterminated {
		head, tail = d[:n-1], d[n-1:]
	}

	out := slices.Clone(head)
	if !head.IsEmpty() {
		out = append(out, Text("\n"))
	}
	out = append(out, link)
	if tail != nil {
		out = append(out, Text("\n"))
		out = append(out, tail...)
	}
	return mergeText(out)
}

// ReplaceAt возвращает документ, в котором сегмент idx заменён на seg.
func (d Document) ReplaceAt(idx int, seg Segment) Document {
	out := slices.Clone(d)
	out[idx] = seg
	return out
}

// RemoveAt удаляет сегмент idx вместе с одним соседним переводом строки:
// сначала проверяется текст перед сегментом, затем после него.
func (d Document) RemoveAt(idx int) Document {
	out := slices.Clone(d)

	switch {
	case idx > 0 && out[idx-1].Kind == SegmentText && strings.HasSuffix(out[idx-1].Raw, "\n"):
		out[idx-1] = Text(strings.TrimSuffix(out[idx-1].Raw, "\n"))
	case idx+1 < len(out) && out[idx+1].Kind == SegmentText && strings.HasPrefix(out[idx+1].Raw, "\n"):
		out[idx+1] = Text(strings.TrimPrefix(out[idx+1].Raw, "\n"))
	}

	out = slices.Delete(out, idx, idx+1)
	return mergeText(out)
}
