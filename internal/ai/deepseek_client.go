package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// DeepSeekClient клиент для работы с DeepSeek API
type DeepSeekClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDeepSeekClient создает новый клиент DeepSeek
func NewDeepSeekClient(apiKey, baseURL string, logger *zap.Logger) *DeepSeekClient {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}

	return &DeepSeekClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// DeepSeekRequest представляет запрос к DeepSeek API
type DeepSeekRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	Stream      bool      `json:"stream"`
}

// DeepSeekResponse представляет ответ от DeepSeek API
type DeepSeekResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []DeepSeekChoice `json:"choices"`
	Usage   DeepSeekUsage    `json:"usage"`
}

// DeepSeekChoice представляет вариант ответа
type DeepSeekChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// DeepSeekUsage представляет статистику использования токенов
type DeepSeekUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse генерирует ответ через DeepSeek API. Формат
// OpenAI-совместимый, поэтому инструменты и tool_calls передаются
// без преобразования.
func (c *DeepSeekClient) GenerateResponse(ctx context.Context, messages []Message, options GenerationOptions) (*Response, error) {
	c.logger.Debug("отправляем запрос в DeepSeek",
		zap.Int("messages_count", len(messages)),
		zap.Int("tools_count", len(options.Tools)),
		zap.Float64("temperature", options.Temperature),
		zap.Int("max_tokens", options.MaxTokens))

	request := DeepSeekRequest{
		Model:       "deepseek-chat",
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Tools:       options.Tools,
		Stream:      false,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки запроса: %w: %w", models.ErrUpstream, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ошибка DeepSeek API",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(responseBody)))
		return nil, fmt.Errorf("ошибка DeepSeek API (статус %d): %s: %w", resp.StatusCode, string(responseBody), models.ErrUpstream)
	}

	var deepSeekResp DeepSeekResponse
	if err := json.Unmarshal(responseBody, &deepSeekResp); err != nil {
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	if len(deepSeekResp.Choices) == 0 {
		return nil, fmt.Errorf("нет вариантов ответа от DeepSeek: %w", models.ErrUpstream)
	}

	choice := deepSeekResp.Choices[0]

	c.logger.Debug("получен ответ от DeepSeek",
		zap.String("model", deepSeekResp.Model),
		zap.Int("prompt_tokens", deepSeekResp.Usage.PromptTokens),
		zap.Int("completion_tokens", deepSeekResp.Usage.CompletionTokens),
		zap.Int("tool_calls", len(choice.Message.ToolCalls)),
		zap.String("finish_reason", choice.FinishReason))

	return &Response{
		Content:   choice.Message.Content,
		ToolCalls: choice.Message.ToolCalls,
		Model:     deepSeekResp.Model,
		Usage: Usage{
			PromptTokens:     deepSeekResp.Usage.PromptTokens,
			CompletionTokens: deepSeekResp.Usage.CompletionTokens,
			TotalTokens:      deepSeekResp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
		Provider:     "deepseek",
	}, nil
}

// GetName возвращает название провайдера
func (c *DeepSeekClient) GetName() string {
	return "DeepSeek"
}
