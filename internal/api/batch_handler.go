package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/orchestrator"
)

// defaultCommandsLimit — размер страницы записей без явного limit.
const defaultCommandsLimit = 50

// SubmitBatch создаёт батч от имени пользователя.
// POST /api/v1/batches
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())

	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	batch, err := h.service.SubmitBatch(r.Context(), domain.NewBatch{Title: req.Title, Commands: req.Commands}, c.user)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Created(w, BatchFromDomain(*batch))
}

// ListBatches возвращает последние батчи.
// GET /api/v1/batches?limit=...
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	batches, err := h.service.LatestBatches(r.Context(), limit)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	result := make([]BatchResponse, len(batches))
	for i, b := range batches {
		result[i] = BatchFromDomain(b)
	}
	List(w, result, len(result))
}

// GetBatch возвращает батч со сводкой.
// GET /api/v1/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	overview, err := h.service.Overview(r.Context(), id)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, OverviewFromDomain(overview))
}

// ListCommands возвращает записи батча в окне.
// GET /api/v1/batches/{id}/commands?offset=...&limit=...
func (h *Handler) ListCommands(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultCommandsLimit)
	if !ok {
		return
	}

	records, err := h.service.Commands(r.Context(), id, offset, limit)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	result := make([]CommandResponse, 0, len(records))
	for _, rec := range records {
		cr, err := CommandFromDomain(rec)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		result = append(result, cr)
	}
	List(w, result, len(result))
}

// RunSlice синхронно выполняет окно записей от имени владельца.
// POST /api/v1/batches/{id}/run
//
// Если выполнение прервано неклассифицированной ошибкой, ответ 200 содержит
// уже сохранённые результаты и текст ошибки.
func (h *Handler) RunSlice(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req RunSliceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	finishes, err := h.service.RunSlice(r.Context(), id, req.Offset, req.Limit, c.user, c.creds)
	if err != nil && !errors.Is(err, orchestrator.ErrUnclassified) {
		HandleServiceError(w, h.logger, err)
		return
	}

	resp := RunSliceResponse{Finished: make([]FinishResponse, 0, len(finishes))}
	for _, f := range finishes {
		fr, ferr := FinishFromDomain(f)
		if ferr != nil {
			InternalError(w, h.logger, ferr)
			return
		}
		resp.Finished = append(resp.Finished, fr)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	Success(w, resp)
}

// StartBackground запускает фоновое выполнение.
// POST /api/v1/batches/{id}/background/start
func (h *Handler) StartBackground(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := h.service.StartBackground(r.Context(), id, c.user, c.creds)
	if HandleServiceError(w, h.logger, err) {
		return
	}
	h.respondOverview(w, r, id)
}

// StopBackground останавливает фоновое выполнение.
// POST /api/v1/batches/{id}/background/stop
func (h *Handler) StopBackground(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := h.service.StopBackground(r.Context(), id, c.user)
	if HandleServiceError(w, h.logger, err) {
		return
	}
	h.respondOverview(w, r, id)
}

// SuspendBackground приостанавливает фоновое выполнение.
// POST /api/v1/batches/{id}/background/suspend
func (h *Handler) SuspendBackground(w http.ResponseWriter, r *http.Request) {
	c, _ := callerFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req SuspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	var until time.Time
	switch {
	case req.Until != nil:
		until = *req.Until
	case req.Seconds > 0:
		until = time.Now().Add(time.Duration(req.Seconds) * time.Second)
	default:
		BadRequest(w, "until or seconds required")
		return
	}

	err := h.service.SuspendBackground(r.Context(), id, c.user, until)
	if HandleServiceError(w, h.logger, err) {
		return
	}
	h.respondOverview(w, r, id)
}

func (h *Handler) respondOverview(w http.ResponseWriter, r *http.Request, id int64) {
	overview, err := h.service.Overview(r.Context(), id)
	if HandleServiceError(w, h.logger, err) {
		return
	}
	Success(w, OverviewFromDomain(overview))
}

// --- Helpers ---

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(w, "invalid batch id")
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		BadRequest(w, "invalid "+name)
		return 0, false
	}
	return v, true
}
