package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// User — пользователь вики.
type User struct {
	Domain      string `json:"domain"`
	LocalUserID int64  `json:"local_user_id"`
	UserName    string `json:"user_name"`
}

// BatchResponse — батч из API.
type BatchResponse struct {
	ID            int64     `json:"id"`
	Owner         User      `json:"owner"`
	Domain        string    `json:"domain"`
	Title         string    `json:"title,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// BackgroundRunResponse — фоновый запуск из API.
type BackgroundRunResponse struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	StartedBy      User       `json:"started_by"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
	StoppedBy      *User      `json:"stopped_by,omitempty"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
}

// OverviewResponse — батч со сводкой из API.
type OverviewResponse struct {
	BatchResponse
	Counts     map[string]int          `json:"counts"`
	Background *BackgroundRunResponse  `json:"background,omitempty"`
	Runs       []BackgroundRunResponse `json:"runs"`
}

// CommandResponse — запись команды из API.
type CommandResponse struct {
	ID      int64           `json:"id"`
	Line    string          `json:"line"`
	Status  string          `json:"status"`
	Outcome json.RawMessage `json:"outcome,omitempty"`
}

// RunSliceResponse — результат синхронного выполнения.
type RunSliceResponse struct {
	Finished []CommandResponse `json:"finished"`
	Error    string            `json:"error,omitempty"`
}

// --- Request types ---

// SubmitBatchRequest — создание батча. Commands передаются как есть.
type SubmitBatchRequest struct {
	Title    string          `json:"title,omitempty"`
	Commands json.RawMessage `json:"commands"`
}

type runSliceRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type suspendRequest struct {
	Until   *time.Time `json:"until,omitempty"`
	Seconds int        `json:"seconds,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Fields  []struct {
			Index   int    `json:"index"`
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"fields"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для QuickCategories API.
type Client struct {
	baseURL    string
	token      string
	wikiDomain string
	httpClient *http.Client
}

// ClientConfig — параметры клиента.
type ClientConfig struct {
	BaseURL string
	// Token — OAuth-токен вики. Нужен только изменяющим командам.
	Token  string
	Domain string
}

// NewClient создаёт клиент для API.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		wikiDomain: cfg.Domain,
		httpClient: &http.Client{
			// синхронное выполнение длинного окна может занять минуты
			Timeout: 10 * time.Minute,
		},
	}
}

// --- Batches ---

// SubmitBatch создаёт батч.
func (c *Client) SubmitBatch(req SubmitBatchRequest) (*BatchResponse, error) {
	var batch BatchResponse
	err := c.post("/api/v1/batches", req, &batch)
	return &batch, err
}

// ListBatches возвращает последние батчи.
func (c *Client) ListBatches(limit int) ([]BatchResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var batches []BatchResponse
	err := c.list("/api/v1/batches", params, &batches)
	return batches, err
}

// GetBatch возвращает батч со сводкой.
func (c *Client) GetBatch(id int64) (*OverviewResponse, error) {
	var overview OverviewResponse
	err := c.get(batchPath(id), &overview)
	return &overview, err
}

// ListCommands возвращает записи батча в окне.
func (c *Client) ListCommands(id int64, offset, limit int) ([]CommandResponse, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var commands []CommandResponse
	err := c.list(batchPath(id)+"/commands", params, &commands)
	return commands, err
}

// RunSlice синхронно выполняет окно записей.
func (c *Client) RunSlice(id int64, offset, limit int) (*RunSliceResponse, error) {
	var resp RunSliceResponse
	err := c.post(batchPath(id)+"/run", runSliceRequest{Offset: offset, Limit: limit}, &resp)
	return &resp, err
}

// --- Background ---

// StartBackground запускает фоновое выполнение.
func (c *Client) StartBackground(id int64) (*OverviewResponse, error) {
	var overview OverviewResponse
	err := c.post(batchPath(id)+"/background/start", nil, &overview)
	return &overview, err
}

// StopBackground останавливает фоновое выполнение.
func (c *Client) StopBackground(id int64) (*OverviewResponse, error) {
	var overview OverviewResponse
	err := c.post(batchPath(id)+"/background/stop", nil, &overview)
	return &overview, err
}

// SuspendBackground приостанавливает фоновое выполнение на d.
func (c *Client) SuspendBackground(id int64, d time.Duration) (*OverviewResponse, error) {
	var overview OverviewResponse
	req := suspendRequest{Seconds: int(d.Round(time.Second) / time.Second)}
	err := c.post(batchPath(id)+"/background/suspend", req, &overview)
	return &overview, err
}

func batchPath(id int64) string {
	return "/api/v1/batches/" + strconv.FormatInt(id, 10)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.wikiDomain != "" {
		req.Header.Set("X-Wiki-Domain", c.wikiDomain)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	msg := fmt.Sprintf("%s: %s", er.Error.Code, er.Error.Message)
	for _, f := range er.Error.Fields {
		msg += fmt.Sprintf("\n  command %d: %s: %s", f.Index, f.Field, f.Message)
	}
	return errors.New(msg)
}
