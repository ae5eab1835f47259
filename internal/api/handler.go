package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"crm-core/internal/orchestrator"
	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// CommissionService интерфейс сервиса распределения комиссий
type CommissionService interface {
	Distribute(ctx context.Context, customerID int64, grossAmount float64, eventType string) (*models.DistributeResult, error)
}

// ReminderRunner интерфейс джобы напоминаний
type ReminderRunner interface {
	RunOnce(ctx context.Context) (*models.ReminderSummary, error)
}

// RemediationService интерфейс генератора патчей
type RemediationService interface {
	Generate(ctx context.Context, suggestionID int64) (*models.GeneratePatchResult, error)
}

// OrchestratorService интерфейс тестового оркестратора
type OrchestratorService interface {
	Run(ctx context.Context, prompt string) (*orchestrator.RunResult, error)
}

// Handler обрабатывает HTTP запросы ядра CRM
type Handler struct {
	commissions  CommissionService
	reminders    ReminderRunner
	remediation  RemediationService
	orchestrator OrchestratorService
	logger       *zap.Logger
}

// NewHandler создает новый обработчик HTTP запросов
func NewHandler(
	commissions CommissionService,
	reminders ReminderRunner,
	remediation RemediationService,
	orch OrchestratorService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		commissions:  commissions,
		reminders:    reminders,
		remediation:  remediation,
		orchestrator: orch,
		logger:       logger,
	}
}

// RegisterRoutes регистрирует маршруты ядра на переданном мультиплексоре
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/commissions/distribute", h.HandleDistribute)
	mux.HandleFunc("/api/reminders/run", h.HandleRunReminders)
	mux.HandleFunc("/api/remediation/patch", h.HandleGeneratePatch)
	mux.HandleFunc("/api/orchestrator/run", h.HandleOrchestratorRun)
}

// errorResponse представляет тело ответа с ошибкой
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON сериализует ответ в JSON
func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("ошибка сериализации ответа", zap.Error(err))
	}
}

// writeError сопоставляет ошибку ядра со статус-кодом через errors.Is
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUpstream):
		status = http.StatusBadGateway
	}

	h.logger.Error("ошибка обработки запроса",
		zap.Int("status", status),
		zap.Error(err))

	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// HandleDistribute обрабатывает запрос на распределение комиссий
func (h *Handler) HandleDistribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	result, err := h.commissions.Distribute(r.Context(), req.CustomerID, req.GrossAmount, req.EventType)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleRunReminders запускает прогон напоминаний об онбординге
func (h *Handler) HandleRunReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := h.reminders.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandleGeneratePatch обрабатывает запрос на генерацию патча
func (h *Handler) HandleGeneratePatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.GeneratePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	result, err := h.remediation.Generate(r.Context(), req.SuggestionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// orchestratorRequest представляет запрос тестового сценария
type orchestratorRequest struct {
	Prompt string `json:"prompt"`
}

// HandleOrchestratorRun запускает тестовый сценарий через AI
func (h *Handler) HandleOrchestratorRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orchestratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.Join(models.ErrValidation, err))
		return
	}

	result, err := h.orchestrator.Run(r.Context(), req.Prompt)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
