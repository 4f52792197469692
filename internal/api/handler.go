package api

import (
	"log/slog"

	"github.com/shaiso/quickcategories/internal/orchestrator"
	"github.com/shaiso/quickcategories/internal/wiki"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	service *orchestrator.Service
	wiki    wiki.Client
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service *orchestrator.Service
	Wiki    wiki.Client
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: cfg.Service,
		wiki:    cfg.Wiki,
		logger:  logger,
	}
}
