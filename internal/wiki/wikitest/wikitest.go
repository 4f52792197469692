// Package wikitest — вики в памяти для тестов пакетов, использующих wiki.Client.
package wikitest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/engine"
	"github.com/shaiso/quickcategories/internal/wiki"
)

type page struct {
	id   int64
	rev  int64
	text string
}

// Fake — вики в памяти. Безопасна для конкурентного использования.
type Fake struct {
	mu sync.Mutex

	info      engine.CategoryInfo
	pages     map[string]*page
	redirects map[string]string
	users     map[string]domain.LocalUser
	nextID    int64
	nextRev   int64

	editErrors  map[string][]error
	fetchErrors []error
	infoErr     error

	fetches [][]string
	edits   []wiki.EditRequest
}

// New создаёт пустую вики с англоязычным пространством категорий.
func New() *Fake {
	return &Fake{
		info:       engine.DefaultCategoryInfo(),
		pages:      make(map[string]*page),
		redirects:  make(map[string]string),
		users:      make(map[string]domain.LocalUser),
		nextID:     1,
		nextRev:    100,
		editErrors: make(map[string][]error),
	}
}

// SetCategoryInfo задаёт сведения о пространстве категорий.
func (f *Fake) SetCategoryInfo(info engine.CategoryInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
}

// AddPage создаёт страницу.
func (f *Fake) AddPage(title, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[title] = &page{id: f.nextID, rev: f.nextRev, text: text}
	f.nextID++
	f.nextRev++
}

// AddRedirect создаёт перенаправление from -> to.
func (f *Fake) AddRedirect(from, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects[from] = to
}

// AddUser связывает токен с пользователем.
func (f *Fake) AddUser(token string, user domain.LocalUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[token] = user
}

// Text возвращает текущий текст страницы.
func (f *Fake) Text(title string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pages[title]; ok {
		return p.text
	}
	return ""
}

// Revision возвращает текущую ревизию страницы.
func (f *Fake) Revision(title string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pages[title]; ok {
		return p.rev
	}
	return 0
}

// FailEdit задаёт ошибки, которые вернут следующие правки страницы, по одной на правку.
func (f *Fake) FailEdit(title string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editErrors[title] = append(f.editErrors[title], errs...)
}

// FailFetch задаёт ошибки следующих чтений страниц.
func (f *Fake) FailFetch(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErrors = append(f.fetchErrors, errs...)
}

// FailCategoryInfo задаёт ошибку чтения сведений о категориях (nil — снять).
func (f *Fake) FailCategoryInfo(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoErr = err
}

// Fetches возвращает запрошенные наборы названий.
func (f *Fake) Fetches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.fetches)
}

// Edits возвращает все запросы на правку, включая неудачные.
func (f *Fake) Edits() []wiki.EditRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.edits)
}

// Session реализует wiki.Client.
func (f *Fake) Session(wikiDomain string, creds domain.Credentials) wiki.Session {
	return &session{fake: f, domain: wikiDomain, creds: creds}
}

type session struct {
	fake   *Fake
	domain string
	creds  domain.Credentials
}

func invalidTitle(title string) bool {
	return strings.TrimSpace(title) == "" || strings.ContainsAny(title, "<>[]{}|#")
}

func (s *session) FetchPages(_ context.Context, titles []string, resolveRedirects bool) (map[string]wiki.Page, error) {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches = append(f.fetches, slices.Clone(titles))
	if len(f.fetchErrors) > 0 {
		err := f.fetchErrors[0]
		f.fetchErrors = f.fetchErrors[1:]
		return nil, err
	}
	if len(titles) > wiki.MaxTitlesPerFetch {
		return nil, fmt.Errorf("too many titles: %d", len(titles))
	}

	result := make(map[string]wiki.Page, len(titles))
	for _, title := range titles {
		if invalidTitle(title) {
			result[title] = wiki.Page{Title: title, Invalid: true}
			continue
		}
		resolved := title
		if to, ok := f.redirects[title]; ok && resolveRedirects {
			resolved = to
		}
		p, ok := f.pages[resolved]
		if !ok {
			result[title] = wiki.Page{Title: resolved, Missing: true}
			continue
		}
		result[title] = wiki.Page{
			Title:          resolved,
			PageID:         p.id,
			Wikitext:       p.text,
			BaseRevisionID: p.rev,
			BaseTimestamp:  fmt.Sprintf("rev-%d", p.rev),
			StartTimestamp: "now",
		}
	}
	return result, nil
}

func (s *session) EditPage(_ context.Context, req wiki.EditRequest) (wiki.EditResult, error) {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()

	f.edits = append(f.edits, req)

	var (
		title string
		p     *page
	)
	for t, candidate := range f.pages {
		if candidate.id == req.PageID {
			title, p = t, candidate
			break
		}
	}
	if p == nil {
		return wiki.EditResult{}, &wiki.Error{Code: "missingtitle", Info: "The page you specified doesn't exist."}
	}
	if errs := f.editErrors[title]; len(errs) > 0 {
		f.editErrors[title] = errs[1:]
		return wiki.EditResult{}, errs[0]
	}
	if req.BaseRevisionID != p.rev {
		return wiki.EditResult{}, &wiki.Error{Code: "editconflict", Info: "Edit conflict detected."}
	}
	if req.Text == p.text {
		return wiki.EditResult{NoChange: true}, nil
	}

	old := p.rev
	p.rev = f.nextRev
	p.text = req.Text
	f.nextRev++
	return wiki.EditResult{OldRevisionID: old, NewRevisionID: p.rev}, nil
}

func (s *session) CategoryInfo(context.Context) (engine.CategoryInfo, error) {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return engine.CategoryInfo{}, f.infoErr
	}
	return f.info, nil
}

func (s *session) CurrentUser(context.Context) (domain.LocalUser, error) {
	f := s.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[s.creds.AccessToken]
	if !ok || s.creds.IsZero() {
		return domain.LocalUser{}, wiki.ErrNotAuthenticated
	}
	user.Domain = s.domain
	return user, nil
}
