package notify

import (
	"context"
	"fmt"
	"strings"

	"crm-core/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramNotifier отправляет оперативные уведомления в Telegram чат
// дежурного. Используется для деградировавших прогонов напоминаний.
type TelegramNotifier struct {
	bot         *tgbotapi.BotAPI
	adminChatID int64
	logger      *zap.Logger
}

// NewTelegramNotifier создает уведомитель дежурного. Возвращает ошибку,
// если токен бота не прошел проверку у Telegram API.
func NewTelegramNotifier(botToken string, adminChatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}

	logger.Info("Telegram уведомитель подключен",
		zap.String("bot_username", bot.Self.UserName),
		zap.Int64("admin_chat_id", adminChatID))

	return &TelegramNotifier{
		bot:         bot,
		adminChatID: adminChatID,
		logger:      logger,
	}, nil
}

// AlertDegradedRun уведомляет дежурного о прогоне напоминаний с ошибками
func (n *TelegramNotifier) AlertDegradedRun(ctx context.Context, summary *models.ReminderSummary) error {
	var b strings.Builder

	fmt.Fprintf(&b, "⚠️ Прогон напоминаний завершился с ошибками\n\n")
	fmt.Fprintf(&b, "Отправлено 24ч: %d\n", summary.Reminders24h)
	fmt.Fprintf(&b, "Отправлено 48ч: %d\n", summary.Reminders48h)
	fmt.Fprintf(&b, "Уведомлений партнерам: %d\n", summary.AffiliateNotifications)
	fmt.Fprintf(&b, "Ошибок: %d\n", len(summary.Errors))

	// Не заваливаем чат: первые пять ошибок, остальное в логах
	for i, e := range summary.Errors {
		if i == 5 {
			fmt.Fprintf(&b, "… и еще %d\n", len(summary.Errors)-5)
			break
		}
		fmt.Fprintf(&b, "— %s\n", e)
	}

	msg := tgbotapi.NewMessage(n.adminChatID, b.String())
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки уведомления дежурному: %w", err)
	}

	n.logger.Info("дежурный уведомлен о деградировавшем прогоне",
		zap.Int("errors", len(summary.Errors)))

	return nil
}
