package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crm-core/internal/ai"
	"crm-core/internal/customer"
	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// maxIterations ограничивает число раундов вызова инструментов,
// чтобы зацикленная модель не гоняла запросы бесконечно
const maxIterations = 8

// CustomerService интерфейс для работы с клиентами
type CustomerService interface {
	Create(ctx context.Context, req *models.CreateCustomerRequest) (*models.CustomerProfile, error)
	ClearTestData(ctx context.Context) (*customer.ClearTestDataResult, error)
}

// CommissionService интерфейс для работы с начислениями
type CommissionService interface {
	Distribute(ctx context.Context, customerID int64, grossAmount float64, eventType string) (*models.DistributeResult, error)
	Verify(ctx context.Context, customerID int64, grossAmount float64) (*models.VerificationReport, error)
}

// PlanRepository интерфейс для работы с тарифами
type PlanRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Plan, error)
}

// MetricsRecorder записывает метрики обращений к AI
type MetricsRecorder interface {
	RecordAIRequest(success bool, responseTime float64)
}

// ToolTrace представляет один выполненный вызов инструмента
type ToolTrace struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// RunResult представляет итог сессии оркестратора
type RunResult struct {
	FinalResponse string      `json:"finalResponse"`
	Trace         []ToolTrace `json:"trace"`
	Iterations    int         `json:"iterations"`
}

// Orchestrator ведет диалог с моделью и выполняет запрошенные ею
// инструменты тестового сценария
type Orchestrator struct {
	aiClient    ai.AIClient
	customers   CustomerService
	commissions CommissionService
	planRepo    PlanRepository
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// NewOrchestrator создает новый тестовый оркестратор
func NewOrchestrator(
	aiClient ai.AIClient,
	customers CustomerService,
	commissions CommissionService,
	planRepo PlanRepository,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		aiClient:    aiClient,
		customers:   customers,
		commissions: commissions,
		planRepo:    planRepo,
		metrics:     metrics,
		logger:      logger,
	}
}

func systemPrompt() string {
	return `Ты — тестовый оркестратор CRM. Тебе доступны инструменты для
создания тестовых клиентов, проверки партнерских начислений и очистки
тестовых данных. Выполняй запрошенный сценарий шаг за шагом, после
каждого вызова инструмента анализируй результат. В конце кратко
отчитайся о результатах сценария.`
}

func toolSchemas() []ai.Tool {
	return []ai.Tool{
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        "create_test_customer",
				Description: "Создает тестового клиента, при необходимости распределяет партнерские начисления по тарифу, возвращает ID клиента",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"email": {"type": "string", "description": "Email клиента"},
						"name": {"type": "string", "description": "Имя клиента"},
						"affiliate_username": {"type": "string", "description": "Имя партнера, приведшего клиента"},
						"plan_code": {"type": "string", "description": "Код тарифа, например pro"},
						"gross_amount": {"type": "number", "description": "Сумма продажи; по умолчанию месячная цена тарифа"}
					},
					"required": ["email"]
				}`),
			},
		},
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        "verify_commissions",
				Description: "Сверяет записанные начисления клиента с ожидаемыми по цепочке партнеров и ставкам, возвращает отчет PASS/FAIL",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"customer_id": {"type": "integer", "description": "ID клиента"},
						"gross_amount": {"type": "number", "description": "Сумма продажи, от которой считались начисления"}
					},
					"required": ["customer_id", "gross_amount"]
				}`),
			},
		},
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        "clear_test_data",
				Description: "Удаляет всех тестовых клиентов и их начисления",
				Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			},
		},
	}
}

// Run выполняет сценарий: диалог с моделью с выполнением инструментов
// до финального текстового ответа либо до лимита итераций
func (o *Orchestrator) Run(ctx context.Context, prompt string) (*RunResult, error) {
	if prompt == "" {
		return nil, fmt.Errorf("пустой сценарий: %w", models.ErrValidation)
	}

	messages := []ai.Message{
		{Role: "system", Content: systemPrompt()},
		{Role: "user", Content: prompt},
	}
	options := ai.GenerationOptions{
		Temperature: 0.1,
		MaxTokens:   2000,
		Tools:       toolSchemas(),
	}

	result := &RunResult{Trace: []ToolTrace{}}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		result.Iterations = iteration

		start := time.Now()
		resp, err := o.aiClient.GenerateResponse(ctx, messages, options)
		o.metrics.RecordAIRequest(err == nil, time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("ошибка обращения к AI: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			result.FinalResponse = resp.Content
			o.logger.Info("сценарий оркестратора завершен",
				zap.Int("iterations", iteration),
				zap.Int("tool_calls", len(result.Trace)))
			return result, nil
		}

		messages = append(messages, ai.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			toolResult := o.dispatch(ctx, call)
			result.Trace = append(result.Trace, ToolTrace{
				Tool:      call.Function.Name,
				Arguments: call.Function.Arguments,
				Result:    toolResult,
			})
			messages = append(messages, ai.Message{
				Role:       "tool",
				Content:    toolResult,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("сценарий не завершился за %d итераций", maxIterations)
}

// dispatch выполняет один вызов инструмента. Ошибка инструмента
// возвращается модели как результат, а не прерывает сессию: модель
// может скорректировать сценарий.
func (o *Orchestrator) dispatch(ctx context.Context, call ai.ToolCall) string {
	o.logger.Info("вызов инструмента",
		zap.String("tool", call.Function.Name),
		zap.String("arguments", call.Function.Arguments))

	var (
		payload interface{}
		err     error
	)

	switch call.Function.Name {
	case "create_test_customer":
		payload, err = o.createTestCustomer(ctx, call.Function.Arguments)
	case "verify_commissions":
		payload, err = o.verifyCommissions(ctx, call.Function.Arguments)
	case "clear_test_data":
		payload, err = o.customers.ClearTestData(ctx)
	default:
		err = fmt.Errorf("неизвестный инструмент %q", call.Function.Name)
	}

	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

type createTestCustomerArgs struct {
	Email             string  `json:"email"`
	Name              string  `json:"name"`
	AffiliateUsername string  `json:"affiliate_username"`
	PlanCode          string  `json:"plan_code"`
	GrossAmount       float64 `json:"gross_amount"`
}

type createTestCustomerResult struct {
	CustomerID         int64   `json:"customerId"`
	GrossAmount        float64 `json:"grossAmount"`
	CommissionsCreated int     `json:"commissionsCreated"`
}

func (o *Orchestrator) createTestCustomer(ctx context.Context, arguments string) (*createTestCustomerResult, error) {
	var args createTestCustomerArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("некорректные аргументы: %w", err)
	}

	created, err := o.customers.Create(ctx, &models.CreateCustomerRequest{
		Email:             args.Email,
		Name:              args.Name,
		AffiliateUsername: args.AffiliateUsername,
		PlanCode:          args.PlanCode,
		IsTest:            true,
	})
	if err != nil {
		return nil, err
	}

	gross := args.GrossAmount
	if gross == 0 && args.PlanCode != "" {
		plan, err := o.planRepo.GetByCode(ctx, args.PlanCode)
		if err != nil {
			return nil, fmt.Errorf("ошибка поиска тарифа: %w", err)
		}
		gross = plan.MonthlyPrice
	}

	result := &createTestCustomerResult{
		CustomerID:  created.ID,
		GrossAmount: gross,
	}

	if gross > 0 {
		distributed, err := o.commissions.Distribute(ctx, created.ID, gross, "test_sale")
		if err != nil {
			return nil, fmt.Errorf("ошибка распределения начислений: %w", err)
		}
		result.CommissionsCreated = len(distributed.Created)
	}

	return result, nil
}

type verifyCommissionsArgs struct {
	CustomerID  int64   `json:"customer_id"`
	GrossAmount float64 `json:"gross_amount"`
}

func (o *Orchestrator) verifyCommissions(ctx context.Context, arguments string) (*models.VerificationReport, error) {
	var args verifyCommissionsArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("некорректные аргументы: %w", err)
	}

	return o.commissions.Verify(ctx, args.CustomerID, args.GrossAmount)
}
