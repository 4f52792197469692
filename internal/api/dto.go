package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/quickcategories/internal/domain"
	"github.com/shaiso/quickcategories/internal/orchestrator"
)

// Batch DTOs

// SubmitBatchRequest — запрос на создание батча.
type SubmitBatchRequest struct {
	Title    string           `json:"title,omitempty"`
	Commands []domain.Command `json:"commands"`
}

// BatchResponse — ответ с батчем.
type BatchResponse struct {
	ID            int64            `json:"id"`
	Owner         domain.LocalUser `json:"owner"`
	Domain        string           `json:"domain"`
	Title         string           `json:"title,omitempty"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	LastUpdatedAt time.Time        `json:"last_updated_at"`
}

// BatchFromDomain конвертирует domain.StoredBatch в BatchResponse.
func BatchFromDomain(b domain.StoredBatch) BatchResponse {
	return BatchResponse{
		ID:            b.ID,
		Owner:         b.Owner,
		Domain:        b.Domain,
		Title:         b.Title,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt,
		LastUpdatedAt: b.LastUpdatedAt,
	}
}

// OverviewResponse — батч со сводкой по статусам и фоновыми запусками.
type OverviewResponse struct {
	BatchResponse
	Counts     map[string]int          `json:"counts"`
	Background *BackgroundRunResponse  `json:"background,omitempty"`
	Runs       []BackgroundRunResponse `json:"runs"`
}

// OverviewFromDomain конвертирует orchestrator.Overview в OverviewResponse.
func OverviewFromDomain(o *orchestrator.Overview) OverviewResponse {
	resp := OverviewResponse{
		BatchResponse: BatchFromDomain(o.Batch),
		Counts:        make(map[string]int, len(o.Counts)),
		Runs:          make([]BackgroundRunResponse, len(o.Runs)),
	}
	for kind, n := range o.Counts {
		resp.Counts[string(kind)] = n
	}
	for i, run := range o.Runs {
		resp.Runs[i] = BackgroundRunFromDomain(run)
	}
	if active := o.ActiveRun(); active != nil {
		run := BackgroundRunFromDomain(*active)
		resp.Background = &run
	}
	return resp
}

// Background DTOs

// BackgroundRunResponse — фоновый запуск.
type BackgroundRunResponse struct {
	ID             uuid.UUID         `json:"id"`
	StartedAt      time.Time         `json:"started_at"`
	StartedBy      domain.LocalUser  `json:"started_by"`
	StoppedAt      *time.Time        `json:"stopped_at,omitempty"`
	StoppedBy      *domain.LocalUser `json:"stopped_by,omitempty"`
	SuspendedUntil *time.Time        `json:"suspended_until,omitempty"`
}

// BackgroundRunFromDomain конвертирует domain.BackgroundRun в BackgroundRunResponse.
func BackgroundRunFromDomain(r domain.BackgroundRun) BackgroundRunResponse {
	return BackgroundRunResponse{
		ID:             r.ID,
		StartedAt:      r.StartedAt,
		StartedBy:      r.StartedBy,
		StoppedAt:      r.StoppedAt,
		StoppedBy:      r.StoppedBy,
		SuspendedUntil: r.SuspendedUntil,
	}
}

// SuspendRequest — приостановка фонового выполнения.
// Until имеет приоритет над Seconds.
type SuspendRequest struct {
	Until   *time.Time `json:"until,omitempty"`
	Seconds int        `json:"seconds,omitempty"`
}

// Command DTOs

// CommandResponse — запись команды батча.
type CommandResponse struct {
	ID      int64           `json:"id"`
	Command domain.Command  `json:"command"`
	Line    string          `json:"line"`
	Status  string          `json:"status"`
	Outcome json.RawMessage `json:"outcome,omitempty"`
}

// CommandFromDomain конвертирует domain.CommandRecord в CommandResponse.
func CommandFromDomain(r domain.CommandRecord) (CommandResponse, error) {
	kind, outcome, err := domain.EncodeStatus(r.Status)
	if err != nil {
		return CommandResponse{}, err
	}
	return CommandResponse{
		ID:      r.ID,
		Command: r.Command,
		Line:    r.Command.String(),
		Status:  string(kind),
		Outcome: outcome,
	}, nil
}

// RunSliceRequest — синхронное выполнение окна записей.
type RunSliceRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// FinishResponse — результат выполнения одной записи.
type FinishResponse struct {
	ID      int64           `json:"id"`
	Line    string          `json:"line"`
	Status  string          `json:"status"`
	Outcome json.RawMessage `json:"outcome,omitempty"`
}

// FinishFromDomain конвертирует domain.CommandFinish в FinishResponse.
func FinishFromDomain(f domain.CommandFinish) (FinishResponse, error) {
	kind, outcome, err := domain.EncodeStatus(f.Finish)
	if err != nil {
		return FinishResponse{}, err
	}
	return FinishResponse{
		ID:      f.ID,
		Line:    f.Command.String(),
		Status:  string(kind),
		Outcome: outcome,
	}, nil
}

// RunSliceResponse — результаты RunSlice. Error заполнен, если выполнение
// прервано неклассифицированной ошибкой после части сохранённых результатов.
type RunSliceResponse struct {
	Finished []FinishResponse `json:"finished"`
	Error    string           `json:"error,omitempty"`
}
