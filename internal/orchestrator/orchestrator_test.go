package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"crm-core/internal/ai"
	"crm-core/internal/customer"
	"crm-core/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedAIClient отдает заранее заданную последовательность ответов
type scriptedAIClient struct {
	responses []*ai.Response
	calls     int
	messages  [][]ai.Message // история сообщений каждого вызова
}

func (s *scriptedAIClient) GenerateResponse(ctx context.Context, messages []ai.Message, options ai.GenerationOptions) (*ai.Response, error) {
	s.messages = append(s.messages, messages)
	if s.calls >= len(s.responses) {
		return &ai.Response{Content: "готово"}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedAIClient) GetName() string { return "scripted" }

type fakeCustomerService struct {
	created      []*models.CreateCustomerRequest
	clearedCalls int
}

func (f *fakeCustomerService) Create(ctx context.Context, req *models.CreateCustomerRequest) (*models.CustomerProfile, error) {
	f.created = append(f.created, req)
	return &models.CustomerProfile{ID: int64(100 + len(f.created)), Email: req.Email, IsTest: req.IsTest}, nil
}

func (f *fakeCustomerService) ClearTestData(ctx context.Context) (*customer.ClearTestDataResult, error) {
	f.clearedCalls++
	return &customer.ClearTestDataResult{CustomersDeleted: 1, CommissionsDeleted: 1}, nil
}

type fakeCommissionService struct {
	distributed []float64
}

func (f *fakeCommissionService) Distribute(ctx context.Context, customerID int64, grossAmount float64, eventType string) (*models.DistributeResult, error) {
	f.distributed = append(f.distributed, grossAmount)
	return &models.DistributeResult{Created: []models.Commission{
		{CustomerID: customerID, AffiliateID: 1, Level: 1, Rate: 0.05, Amount: grossAmount * 0.05},
	}}, nil
}

func (f *fakeCommissionService) Verify(ctx context.Context, customerID int64, grossAmount float64) (*models.VerificationReport, error) {
	return &models.VerificationReport{
		CustomerID:   customerID,
		Verification: "PASS",
		Expected:     1,
		Actual:       1,
	}, nil
}

// fakeMetrics копит исходы обращений к AI
type fakeMetrics struct {
	outcomes []bool
}

func (f *fakeMetrics) RecordAIRequest(success bool, responseTime float64) {
	f.outcomes = append(f.outcomes, success)
}

// failingAIClient всегда возвращает ошибку провайдера
type failingAIClient struct{}

func (f *failingAIClient) GenerateResponse(ctx context.Context, messages []ai.Message, options ai.GenerationOptions) (*ai.Response, error) {
	return nil, models.ErrUpstream
}

func (f *failingAIClient) GetName() string { return "failing" }

type fakePlanRepo struct{}

func (f *fakePlanRepo) GetByCode(ctx context.Context, code string) (*models.Plan, error) {
	if code != "pro" {
		return nil, models.ErrNotFound
	}
	return &models.Plan{ID: 2, Code: "pro", MonthlyPrice: 997.0}, nil
}

func toolCallResponse(id, name, arguments string) *ai.Response {
	return &ai.Response{
		ToolCalls: []ai.ToolCall{
			{ID: id, Type: "function", Function: ai.FunctionCall{Name: name, Arguments: arguments}},
		},
		FinishReason: "tool_calls",
	}
}

func TestRunEndToEndScenario(t *testing.T) {
	aiClient := &scriptedAIClient{responses: []*ai.Response{
		toolCallResponse("call_1", "create_test_customer",
			`{"email": "e2e@example.com", "affiliate_username": "johnny", "plan_code": "pro"}`),
		toolCallResponse("call_2", "verify_commissions",
			`{"customer_id": 101, "gross_amount": 997}`),
		toolCallResponse("call_3", "clear_test_data", `{}`),
		{Content: "Сценарий пройден: PASS", FinishReason: "stop"},
	}}
	customers := &fakeCustomerService{}
	commissions := &fakeCommissionService{}

	o := NewOrchestrator(aiClient, customers, commissions, &fakePlanRepo{}, &fakeMetrics{}, zap.NewNop())
	result, err := o.Run(context.Background(), "проверь сценарий начислений для тарифа pro")
	require.NoError(t, err)

	assert.Equal(t, "Сценарий пройден: PASS", result.FinalResponse)
	assert.Equal(t, 4, result.Iterations)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, "create_test_customer", result.Trace[0].Tool)
	assert.Equal(t, "verify_commissions", result.Trace[1].Tool)
	assert.Equal(t, "clear_test_data", result.Trace[2].Tool)

	// Тестовый клиент создан и начисления посчитаны от цены тарифа
	require.Len(t, customers.created, 1)
	assert.True(t, customers.created[0].IsTest)
	require.Len(t, commissions.distributed, 1)
	assert.Equal(t, 997.0, commissions.distributed[0])
	assert.Equal(t, 1, customers.clearedCalls)

	// Отчет сверки дошел до модели как результат инструмента
	var report models.VerificationReport
	require.NoError(t, json.Unmarshal([]byte(result.Trace[1].Result), &report))
	assert.Equal(t, "PASS", report.Verification)
}

func TestRunDirectAnswerWithoutTools(t *testing.T) {
	aiClient := &scriptedAIClient{responses: []*ai.Response{
		{Content: "Для этого сценария инструменты не нужны.", FinishReason: "stop"},
	}}

	o := NewOrchestrator(aiClient, &fakeCustomerService{}, &fakeCommissionService{}, &fakePlanRepo{}, &fakeMetrics{}, zap.NewNop())
	result, err := o.Run(context.Background(), "что ты умеешь?")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Iterations)
	assert.Empty(t, result.Trace)
}

func TestRunToolErrorIsFedBackToModel(t *testing.T) {
	aiClient := &scriptedAIClient{responses: []*ai.Response{
		toolCallResponse("call_1", "create_test_customer", `{"email": "x@example.com", "plan_code": "nope"}`),
		{Content: "тариф не найден", FinishReason: "stop"},
	}}

	o := NewOrchestrator(aiClient, &fakeCustomerService{}, &fakeCommissionService{}, &fakePlanRepo{}, &fakeMetrics{}, zap.NewNop())
	result, err := o.Run(context.Background(), "создай клиента на несуществующем тарифе")
	require.NoError(t, err)

	require.Len(t, result.Trace, 1)
	assert.Contains(t, result.Trace[0].Result, "error")

	// Результат инструмента вернулся в диалог с ролью tool
	lastMessages := aiClient.messages[len(aiClient.messages)-1]
	assert.Equal(t, "tool", lastMessages[len(lastMessages)-1].Role)
	assert.Equal(t, "call_1", lastMessages[len(lastMessages)-1].ToolCallID)
}

func TestRunUnknownToolReportedAsError(t *testing.T) {
	aiClient := &scriptedAIClient{responses: []*ai.Response{
		toolCallResponse("call_1", "drop_database", `{}`),
		{Content: "ок", FinishReason: "stop"},
	}}

	o := NewOrchestrator(aiClient, &fakeCustomerService{}, &fakeCommissionService{}, &fakePlanRepo{}, &fakeMetrics{}, zap.NewNop())
	result, err := o.Run(context.Background(), "сделай что-нибудь")
	require.NoError(t, err)

	require.Len(t, result.Trace, 1)
	assert.Contains(t, result.Trace[0].Result, "неизвестный инструмент")
}

func TestRunStopsAtIterationLimit(t *testing.T) {
	// Модель бесконечно просит один и тот же инструмент
	responses := make([]*ai.Response, maxIterations+1)
	for i := range responses {
		responses[i] = toolCallResponse("call_x", "clear_test_data", `{}`)
	}
	aiClient := &scriptedAIClient{responses: responses}

	o := NewOrchestrator(aiClient, &fakeCustomerService{}, &fakeCommissionService{}, &fakePlanRepo{}, &fakeMetrics{}, zap.NewNop())
	_, err := o.Run(context.Background(), "зациклись")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "не завершился")
}

func TestRunRecordsAIMetrics(t *testing.T) {
	aiClient := &scriptedAIClient{responses: []*ai.Response{
		toolCallResponse("call_1", "clear_test_data", `{}`),
		{Content: "готово", FinishReason: "stop"},
	}}
	metrics := &fakeMetrics{}

	o := NewOrchestrator(aiClient, &fakeCustomerService{}, &fakeCommissionService{}, &fakePlanRepo{}, metrics, zap.NewNop())
	_, err := o.Run(context.Background(), "очисти тестовые данные")
	require.NoError(t, err)

	// Каждое обращение к модели фиксируется со своим исходом
	assert.Equal(t, []bool{true, true}, metrics.outcomes)

	failMetrics := &fakeMetrics{}
	o = NewOrchestrator(&failingAIClient{}, &fakeCustomerService{}, &fakeCommissionService{}, &fakePlanRepo{}, failMetrics, zap.NewNop())
	_, err = o.Run(context.Background(), "очисти тестовые данные")
	require.Error(t, err)
	assert.Equal(t, []bool{false}, failMetrics.outcomes)
}

func TestRunEmptyPrompt(t *testing.T) {
	o := NewOrchestrator(&scriptedAIClient{}, &fakeCustomerService{}, &fakeCommissionService{}, &fakePlanRepo{}, &fakeMetrics{}, zap.NewNop())

	_, err := o.Run(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
}
