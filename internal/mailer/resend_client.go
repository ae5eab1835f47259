package mailer

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

// Message представляет письмо для отправки
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Mailer интерфейс почтового провайдера. Ядро не делает ретраев
// и очередей вокруг отправки: письмо либо ушло, либо вернулась ошибка.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendClient представляет клиент для работы с Resend API
type ResendClient struct {
	apiKey     string
	baseURL    string
	testMode   bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewResendClient создает новый клиент Resend
func NewResendClient(apiKey, baseURL string, testMode bool, logger *zap.Logger) *ResendClient {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}

	return &ResendClient{
		apiKey:   apiKey,
		baseURL:  baseURL,
		testMode: testMode,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// sendResponse представляет ответ Resend API
type sendResponse struct {
	ID string `json:"id"`
}

// Send отправляет письмо и возвращает идентификатор отправки
func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("пустой список получателей: %w", models.ErrValidation)
	}

	// В тестовом режиме письмо не отправляется, возвращаем синтетический ID
	if c.testMode {
		testID := fmt.Sprintf("test_email_%d", time.Now().UnixNano())
		c.logger.Info("тестовый режим: письмо не отправлено",
			zap.String("email_id", testID),
			zap.Strings("to", msg.To),
			zap.String("subject", msg.Subject))
		return testID, nil
	}

	requestBody, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации письма: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/emails", bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка отправки письма: %w: %w", models.ErrUpstream, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("ошибка почтового API",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(responseBody)))
		return "", fmt.Errorf("ошибка почтового API (статус %d): %s: %w", resp.StatusCode, string(responseBody), models.ErrUpstream)
	}

	var sendResp sendResponse
	if err := json.Unmarshal(responseBody, &sendResp); err != nil {
		return "", fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	c.logger.Info("письмо отправлено",
		zap.String("email_id", sendResp.ID),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject))

	return sendResp.ID, nil
}
