package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// illegalTitleChars — символы, недопустимые в названиях страниц MediaWiki.
// "|" к тому же разделяет названия в запросах к API.
const illegalTitleChars = "|[]{}<>"

// NoRedirectMarker — символ в начале названия, которым во входном формате
// обозначается "не разрешать перенаправления". В самом названии недопустим.
const NoRedirectMarker = "!"

// ResolveRedirects — политика разрешения перенаправлений для страницы.
type ResolveRedirects int

const (
	// RedirectsDefault — использовать настройку по умолчанию.
	RedirectsDefault ResolveRedirects = iota

	// RedirectsFollow — редактировать цель перенаправления.
	RedirectsFollow

	// RedirectsLiteral — редактировать саму страницу-перенаправление.
	RedirectsLiteral
)

// String возвращает строковое представление политики.
func (r ResolveRedirects) String() string {
	switch r {
	case RedirectsFollow:
		return "follow"
	case RedirectsLiteral:
		return "literal"
	default:
		return "default"
	}
}

// Resolve возвращает true, если перенаправление нужно разрешить.
func (r ResolveRedirects) Resolve(byDefault bool) bool {
	switch r {
	case RedirectsFollow:
		return true
	case RedirectsLiteral:
		return false
	default:
		return byDefault
	}
}

// MarshalText реализует encoding.TextMarshaler.
func (r ResolveRedirects) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (r *ResolveRedirects) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "default":
		*r = RedirectsDefault
	case "follow":
		*r = RedirectsFollow
	case "literal":
		*r = RedirectsLiteral
	default:
		return fmt.Errorf("unknown resolve_redirects value %q", b)
	}
	return nil
}

// Page — страница, к которой применяется команда.
type Page struct {
	// Title — название страницы в том виде, в каком его ввёл пользователь.
	Title string `json:"title"`

	// ResolveRedirects — политика перенаправлений.
	ResolveRedirects ResolveRedirects `json:"resolve_redirects"`
}

// NewPage создаёт страницу, проверяя название.
func NewPage(title string, resolve ResolveRedirects) (Page, error) {
	page := Page{Title: title, ResolveRedirects: resolve}
	if err := page.Validate(); err != nil {
		return Page{}, err
	}
	return page, nil
}

// Validate проверяет инварианты страницы.
func (p Page) Validate() error {
	if p.Title == "" {
		return NewValidationError("page.title", ErrEmptyTitle)
	}
	if strings.HasPrefix(p.Title, NoRedirectMarker) {
		return NewValidationError("page.title", ErrTitleSentinel)
	}
	if strings.ContainsAny(p.Title, illegalTitleChars) {
		return NewValidationError("page.title", ErrTitleChars)
	}
	return nil
}

// Cleanup заменяет подчёркивания пробелами.
// Это только удобство для отображения, а не серверная нормализация.
func (p *Page) Cleanup() {
	p.Title = strings.ReplaceAll(p.Title, "_", " ")
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
