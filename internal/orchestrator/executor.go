package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/engine"
	"github.com/shaiso/quickcategories/internal/wiki"
)

// ExecutorConfig — настройки выполнения команд.
type ExecutorConfig struct {
	// ResolveRedirects — политика для страниц с RedirectsDefault.
	ResolveRedirects bool

	// SummarySuffix добавляется к описанию правки в скобках.
	// %d заменяется ID батча, название батча дописывается через двоеточие.
	SummarySuffix string

	Now func() time.Time
}

// Executor выполняет одну команду против вики.
type Executor struct {
	resolveRedirects bool
	summarySuffix    string
	now              func() time.Time
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		resolveRedirects: cfg.ResolveRedirects,
		summarySuffix:    cfg.SummarySuffix,
		now:              now,
	}
}

// Summary собирает описание правки для батча.
func (e *Executor) Summary(results []domain.ActionResult, info engine.CategoryInfo, batch domain.StoredBatch) string {
	summary := domain.Summary(results, info)
	if e.summarySuffix == "" {
		return summary
	}
	suffix := e.summarySuffix
	if strings.Contains(suffix, "%d") {
		suffix = fmt.Sprintf(suffix, batch.ID)
	}
	if batch.Title != "" {
		suffix += ": " + batch.Title
	}
	return summary + " (" + suffix + ")"
}

// ResolveRedirects возвращает, нужно ли разрешать перенаправления для страницы.
func (e *Executor) ResolveRedirects(page domain.Page) bool {
	return page.ResolveRedirects.Resolve(e.resolveRedirects)
}

// Execute применяет команду к уже прочитанной странице.
//
// Возвращает классифицированный результат или ошибку, обёрнутую в
// ErrUnclassified, если вики ответила чем-то вне таксономии.
func (e *Executor) Execute(ctx context.Context, sess wiki.Session, info engine.CategoryInfo, batch domain.StoredBatch, cmd domain.Command, page wiki.Page) (domain.Finish, error) {
	if f, ok := classifyPage(page); ok {
		return f, nil
	}

	text, results := cmd.Apply(page.Wikitext, info)
	if text == page.Wikitext {
		return domain.Noop{Revision: page.BaseRevisionID}, nil
	}

	res, err := sess.EditPage(ctx, wiki.EditRequest{
		PageID:         page.PageID,
		Text:           text,
		Summary:        e.Summary(results, info, batch),
		Minor:          domain.IsMinorEdit(results),
		BaseRevisionID: page.BaseRevisionID,
		BaseTimestamp:  page.BaseTimestamp,
		StartTimestamp: page.StartTimestamp,
	})
	if err != nil {
		return e.classify(err)
	}
	if res.NoChange {
		return domain.Noop{Revision: page.BaseRevisionID}, nil
	}

	edit, err := domain.NewEdit(res.OldRevisionID, res.NewRevisionID)
	if err != nil {
		return nil, fmt.Errorf("%w: edit result: %w", ErrUnclassified, err)
	}
	return edit, nil
}

// ExecuteCommand читает страницу и сведения о категориях заново и выполняет
// команду. Используется фоновым выполнением, где каждая попытка независима.
func (e *Executor) ExecuteCommand(ctx context.Context, sess wiki.Session, batch domain.StoredBatch, cmd domain.Command) (domain.Finish, error) {
	info, err := sess.CategoryInfo(ctx)
	if err != nil {
		return e.classify(err)
	}

	pages, err := sess.FetchPages(ctx, []string{cmd.Page.Title}, e.ResolveRedirects(cmd.Page))
	if err != nil {
		return e.classify(err)
	}
	page, ok := pages[cmd.Page.Title]
	if !ok {
		return nil, fmt.Errorf("%w: page %q: %w", ErrUnclassified, cmd.Page.Title, wiki.ErrBadResponse)
	}
	return e.Execute(ctx, sess, info, batch, cmd, page)
}

func (e *Executor) classify(err error) (domain.Finish, error) {
	if f, ok := Classify(err, e.now()); ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnclassified, err)
}

// OutcomeLabel — значение метки outcome для метрик.
func OutcomeLabel(f domain.Finish) string {
	if failure, ok := f.(domain.Failure); ok {
		return string(failure.Type)
	}
	return strings.ToLower(string(f.Kind()))
}

// --- Page cache ---

type pageKey struct {
	title   string
	resolve bool
}

// pageCache хранит прочитанные страницы в рамках одного RunSlice.
// Страницы читаются пачками до wiki.MaxTitlesPerFetch.
type pageCache struct {
	sess  wiki.Session
	exec  *Executor
	pages map[pageKey]wiki.Page
}

func newPageCache(sess wiki.Session, exec *Executor) *pageCache {
	return &pageCache{sess: sess, exec: exec, pages: make(map[pageKey]wiki.Page)}
}

func (c *pageCache) key(cmd domain.Command) pageKey {
	return pageKey{title: cmd.Page.Title, resolve: c.exec.ResolveRedirects(cmd.Page)}
}

// get возвращает страницу команды records[i], при промахе читая её вместе
// со следующими непрочитанными страницами с той же политикой перенаправлений.
func (c *pageCache) get(ctx context.Context, records []domain.CommandRecord, i int) (wiki.Page, error) {
	k := c.key(records[i].Command)
	if p, ok := c.pages[k]; ok {
		return p, nil
	}

	titles := []string{k.title}
	seen := map[string]bool{k.title: true}
	for _, rec := range records[i+1:] {
		if len(titles) == wiki.MaxTitlesPerFetch {
			break
		}
		other := c.key(rec.Command)
		if other.resolve != k.resolve || seen[other.title] {
			continue
		}
		if _, ok := c.pages[other]; ok {
			continue
		}
		seen[other.title] = true
		titles = append(titles, other.title)
	}

	pages, err := c.sess.FetchPages(ctx, titles, k.resolve)
	if err != nil {
		return wiki.Page{}, err
	}
	for title, p := range pages {
		c.pages[pageKey{title: title, resolve: k.resolve}] = p
	}
	p, ok := c.pages[k]
	if !ok {
		return wiki.Page{}, fmt.Errorf("page %q: %w", k.title, wiki.ErrBadResponse)
	}
	return p, nil
}

// forget удаляет страницу команды: после попытки правки текст устарел.
func (c *pageCache) forget(cmd domain.Command) {
	delete(c.pages, c.key(cmd))
}
