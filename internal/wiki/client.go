package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/engine"
	"github.com/shaiso/quickcategories/internal/telemetry"
)

// MaxTitlesPerFetch — сколько страниц можно запросить одним FetchPages.
const MaxTitlesPerFetch = 50

// maxResponseBytes ограничивает размер читаемого ответа.
const maxResponseBytes = 64 << 20

// Page — состояние страницы на момент чтения.
type Page struct {
	// Title — название после нормализации и разрешения перенаправлений.
	Title    string
	PageID   int64
	Wikitext string

	// BaseRevisionID и BaseTimestamp — последняя ревизия страницы.
	BaseRevisionID int64
	BaseTimestamp  string

	// StartTimestamp — время сервера в момент чтения.
	StartTimestamp string

	Missing bool
	Invalid bool
}

// EditRequest — параметры правки.
type EditRequest struct {
	PageID         int64
	Text           string
	Summary        string
	Minor          bool
	BaseRevisionID int64
	BaseTimestamp  string
	StartTimestamp string
}

// EditResult — результат правки.
type EditResult struct {
	OldRevisionID int64
	NewRevisionID int64

	// NoChange — вики не создала ревизию, текст совпал с текущим.
	NoChange bool
}

// Session — операции над одной вики от имени одного пользователя.
type Session interface {
	// FetchPages читает страницы (не больше MaxTitlesPerFetch).
	// Результат индексирован названиями в том виде, в каком они запрошены.
	FetchPages(ctx context.Context, titles []string, resolveRedirects bool) (map[string]Page, error)

	// EditPage сохраняет новый текст страницы.
	EditPage(ctx context.Context, req EditRequest) (EditResult, error)

	// CategoryInfo возвращает сведения о пространстве категорий.
	CategoryInfo(ctx context.Context) (engine.CategoryInfo, error)

	// CurrentUser определяет владельца токена.
	CurrentUser(ctx context.Context) (domain.LocalUser, error)
}

// Client открывает сессии для конкретной вики.
type Client interface {
	Session(wikiDomain string, creds domain.Credentials) Session
}

// Config — настройки клиента.
type Config struct {
	// HTTPClient — базовый HTTP-клиент. По умолчанию с таймаутом 30s.
	HTTPClient *http.Client

	UserAgent string

	// Maxlag — параметр maxlag в секундах (0 — не передавать).
	Maxlag int

	// Scheme и APIPath задают адрес API: Scheme://<домен>APIPath.
	Scheme  string
	APIPath string

	// SiteInfoTTL и SiteInfoCacheSize — параметры кэша сведений о категориях.
	SiteInfoTTL       time.Duration
	SiteInfoCacheSize int
}

// MediaWiki — реализация Client поверх MediaWiki Action API.
type MediaWiki struct {
	cfg      Config
	siteInfo *expirable.LRU[string, engine.CategoryInfo]
	loads    singleflight.Group
}

// New создаёт клиент.
func New(cfg Config) *MediaWiki {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "QuickCategories/1.0"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.APIPath == "" {
		cfg.APIPath = "/w/api.php"
	}
	if cfg.SiteInfoTTL <= 0 {
		cfg.SiteInfoTTL = time.Hour
	}
	if cfg.SiteInfoCacheSize <= 0 {
		cfg.SiteInfoCacheSize = 256
	}
	return &MediaWiki{
		cfg:      cfg,
		siteInfo: expirable.NewLRU[string, engine.CategoryInfo](cfg.SiteInfoCacheSize, nil, cfg.SiteInfoTTL),
	}
}

// Session открывает сессию. Пустые creds — анонимные запросы.
func (c *MediaWiki) Session(wikiDomain string, creds domain.Credentials) Session {
	httpClient := c.cfg.HTTPClient
	if !creds.IsZero() {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient = &http.Client{
			Timeout: c.cfg.HTTPClient.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"}),
				Base:   base,
			},
		}
	}
	return &session{
		client:   c,
		domain:   wikiDomain,
		http:     httpClient,
		endpoint: c.cfg.Scheme + "://" + wikiDomain + c.cfg.APIPath,
	}
}

type session struct {
	client   *MediaWiki
	domain   string
	http     *http.Client
	endpoint string

	mu        sync.Mutex
	csrfToken string
}

// --- Transport ---

type apiError struct {
	Code           string        `json:"code"`
	Info           string        `json:"info"`
	ReadOnlyReason string        `json:"readonlyreason"`
	Lag            float64       `json:"lag"`
	BlockInfo      *BlockDetails `json:"blockinfo"`
}

func (e *apiError) toError(retryAfter string) *Error {
	err := &Error{
		Code:           e.Code,
		Info:           e.Info,
		RetryAfter:     parseRetryAfter(retryAfter),
		ReadOnlyReason: e.ReadOnlyReason,
		Block:          e.BlockInfo,
	}
	if err.RetryAfter == 0 && e.Lag > 0 {
		err.RetryAfter = time.Duration(e.Lag * float64(time.Second))
	}
	return err
}

// parseRetryAfter разбирает Retry-After: число секунд или HTTP-дату.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// call выполняет запрос к API и декодирует ответ в out.
func (s *session) call(ctx context.Context, op, method string, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	if s.client.cfg.Maxlag > 0 {
		params.Set("maxlag", strconv.Itoa(s.client.cfg.Maxlag))
	}

	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, s.endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, s.endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("User-Agent", s.client.cfg.UserAgent)

	started := time.Now()
	resp, err := s.http.Do(req)
	telemetry.ObserveWikiRequest(op, started)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %w", op, resp.StatusCode, ErrBadResponse)
	}

	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode: %w: %v", op, ErrBadResponse, err)
	}
	if envelope.Error != nil {
		return envelope.Error.toError(resp.Header.Get("Retry-After"))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w: %v", op, ErrBadResponse, err)
	}
	return nil
}

// --- Pages ---

type titleMapping struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type queryPage struct {
	PageID    int64  `json:"pageid"`
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	Invalid   bool   `json:"invalid"`
	Revisions []struct {
		RevID     int64  `json:"revid"`
		Timestamp string `json:"timestamp"`
		Slots     struct {
			Main struct {
				Content string `json:"content"`
			} `json:"main"`
		} `json:"slots"`
	} `json:"revisions"`
}

type pagesResponse struct {
	CurTimestamp string `json:"curtimestamp"`
	Query        struct {
		Normalized []titleMapping `json:"normalized"`
		Redirects  []titleMapping `json:"redirects"`
		Pages      []queryPage    `json:"pages"`
	} `json:"query"`
}

func follow(title string, mappings []titleMapping) string {
	for _, m := range mappings {
		if m.From == title {
			return m.To
		}
	}
	return title
}

func (s *session) FetchPages(ctx context.Context, titles []string, resolveRedirects bool) (map[string]Page, error) {
	if len(titles) == 0 {
		return map[string]Page{}, nil
	}
	if len(titles) > MaxTitlesPerFetch {
		return nil, fmt.Errorf("fetch pages: %d titles, at most %d allowed", len(titles), MaxTitlesPerFetch)
	}

	params := url.Values{
		"action":       {"query"},
		"prop":         {"revisions"},
		"rvprop":       {"ids|timestamp|content"},
		"rvslots":      {"main"},
		"titles":       {strings.Join(titles, "|")},
		"curtimestamp": {"1"},
	}
	if resolveRedirects {
		params.Set("redirects", "1")
	}

	var resp pagesResponse
	if err := s.call(ctx, "fetch_pages", http.MethodGet, params, &resp); err != nil {
		return nil, err
	}

	byTitle := make(map[string]Page, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		page := Page{
			Title:          p.Title,
			PageID:         p.PageID,
			Missing:        p.Missing,
			Invalid:        p.Invalid,
			StartTimestamp: resp.CurTimestamp,
		}
		if len(p.Revisions) > 0 {
			rev := p.Revisions[0]
			page.BaseRevisionID = rev.RevID
			page.BaseTimestamp = rev.Timestamp
			page.Wikitext = rev.Slots.Main.Content
		}
		byTitle[p.Title] = page
	}

	result := make(map[string]Page, len(titles))
	for _, title := range titles {
		resolved := follow(follow(title, resp.Query.Normalized), resp.Query.Redirects)
		page, ok := byTitle[resolved]
		if !ok {
			return nil, fmt.Errorf("fetch pages: %q not in response: %w", title, ErrBadResponse)
		}
		result[title] = page
	}
	return result, nil
}

// --- Edit ---

func (s *session) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.csrfToken != "" {
		return s.csrfToken, nil
	}

	var resp struct {
		Query struct {
			Tokens struct {
				CSRF string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"tokens"}, "type": {"csrf"}}
	if err := s.call(ctx, "csrf_token", http.MethodGet, params, &resp); err != nil {
		return "", err
	}
	if resp.Query.Tokens.CSRF == "" {
		return "", fmt.Errorf("csrf token: empty: %w", ErrBadResponse)
	}
	s.csrfToken = resp.Query.Tokens.CSRF
	return s.csrfToken, nil
}

func (s *session) EditPage(ctx context.Context, req EditRequest) (EditResult, error) {
	token, err := s.token(ctx)
	if err != nil {
		return EditResult{}, err
	}

	params := url.Values{
		"action":         {"edit"},
		"pageid":         {strconv.FormatInt(req.PageID, 10)},
		"text":           {req.Text},
		"summary":        {req.Summary},
		"basetimestamp":  {req.BaseTimestamp},
		"starttimestamp": {req.StartTimestamp},
		"baserevid":      {strconv.FormatInt(req.BaseRevisionID, 10)},
		"nocreate":       {"1"},
		"assert":         {"user"},
		"token":          {token},
	}
	if req.Minor {
		params.Set("minor", "1")
	} else {
		params.Set("notminor", "1")
	}

	var resp struct {
		Edit struct {
			Result   string `json:"result"`
			OldRevID int64  `json:"oldrevid"`
			NewRevID int64  `json:"newrevid"`
			NoChange bool   `json:"nochange"`
		} `json:"edit"`
	}
	if err := s.call(ctx, "edit_page", http.MethodPost, params, &resp); err != nil {
		return EditResult{}, err
	}
	if resp.Edit.Result != "Success" {
		return EditResult{}, fmt.Errorf("edit page: result %q: %w", resp.Edit.Result, ErrBadResponse)
	}
	return EditResult{
		OldRevisionID: resp.Edit.OldRevID,
		NewRevisionID: resp.Edit.NewRevID,
		NoChange:      resp.Edit.NoChange,
	}, nil
}

// --- Site info ---

// categoryNamespace — ID пространства имён категорий в MediaWiki.
const categoryNamespace = 14

func (s *session) CategoryInfo(ctx context.Context) (engine.CategoryInfo, error) {
	c := s.client
	if info, ok := c.siteInfo.Get(s.domain); ok {
		return info, nil
	}
	v, err, _ := c.loads.Do(s.domain, func() (any, error) {
		info, err := s.fetchCategoryInfo(ctx)
		if err != nil {
			return nil, err
		}
		c.siteInfo.Add(s.domain, info)
		return info, nil
	})
	if err != nil {
		return engine.CategoryInfo{}, err
	}
	return v.(engine.CategoryInfo), nil
}

func (s *session) fetchCategoryInfo(ctx context.Context) (engine.CategoryInfo, error) {
	var resp struct {
		Query struct {
			Namespaces map[string]struct {
				ID        int    `json:"id"`
				Case      string `json:"case"`
				Name      string `json:"name"`
				Canonical string `json:"canonical"`
			} `json:"namespaces"`
			Aliases []struct {
				ID    int    `json:"id"`
				Alias string `json:"alias"`
			} `json:"namespacealiases"`
		} `json:"query"`
	}
	params := url.Values{
		"action": {"query"},
		"meta":   {"siteinfo"},
		"siprop": {"namespaces|namespacealiases"},
	}
	if err := s.call(ctx, "site_info", http.MethodGet, params, &resp); err != nil {
		return engine.CategoryInfo{}, err
	}

	ns, ok := resp.Query.Namespaces[strconv.Itoa(categoryNamespace)]
	if !ok || ns.Name == "" {
		return engine.CategoryInfo{}, fmt.Errorf("site info: no category namespace: %w", ErrBadResponse)
	}

	info := engine.CategoryInfo{PrimaryName: ns.Name, Case: engine.CaseFirstLetter}
	if ns.Case == string(engine.CaseSensitive) {
		info.Case = engine.CaseSensitive
	}
	names := []string{ns.Name, ns.Canonical}
	for _, a := range resp.Query.Aliases {
		if a.ID == categoryNamespace {
			names = append(names, a.Alias)
		}
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		info.Names = append(info.Names, name)
	}
	return info, nil
}

// --- User ---

func (s *session) CurrentUser(ctx context.Context) (domain.LocalUser, error) {
	var resp struct {
		Query struct {
			UserInfo struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
				Anon bool   `json:"anon"`
			} `json:"userinfo"`
			GlobalUserInfo struct {
				ID int64 `json:"id"`
			} `json:"globaluserinfo"`
		} `json:"query"`
	}
	params := url.Values{"action": {"query"}, "meta": {"userinfo|globaluserinfo"}}
	if err := s.call(ctx, "current_user", http.MethodGet, params, &resp); err != nil {
		return domain.LocalUser{}, err
	}

	ui := resp.Query.UserInfo
	if ui.Anon || ui.ID == 0 {
		return domain.LocalUser{}, ErrNotAuthenticated
	}
	return domain.LocalUser{
		Domain:       s.domain,
		LocalUserID:  ui.ID,
		GlobalUserID: resp.Query.GlobalUserInfo.ID,
		UserName:     ui.Name,
	}, nil
}
