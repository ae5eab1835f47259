package reminder

import (
	"context"
	"fmt"
	"time"

	"crm-core/internal/mailer"
	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// CustomerRepository интерфейс для работы с клиентами
type CustomerRepository interface {
	FindReminderCandidates(ctx context.Context, tier int, windowStart, windowEnd time.Time) ([]*models.CustomerProfile, error)
	ClaimReminder(ctx context.Context, customerID int64, tier int, sentAt time.Time) (bool, error)
}

// AffiliateRepository интерфейс для работы с партнерами
type AffiliateRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Affiliate, error)
}

// OperatorNotifier уведомляет оператора о деградировавшем прогоне
type OperatorNotifier interface {
	AlertDegradedRun(ctx context.Context, summary *models.ReminderSummary) error
}

// MetricsRecorder записывает метрики прогона напоминаний
type MetricsRecorder interface {
	RecordReminderEmail(tier string, success bool, sendTime float64)
	RecordAffiliateNotification()
	RecordReminderRun(ts time.Time)
}

// Windows задает окна напоминаний относительно момента оплаты.
// Ширина окна в ±1 час существует потому, что джоба запускается
// периодически: клиент, пересекший порог между прогонами, должен
// попасть ровно в один прогон.
type Windows struct {
	Tier1Start time.Duration
	Tier1End   time.Duration
	Tier2Start time.Duration
	Tier2End   time.Duration
}

// DefaultWindows возвращает стандартные окна: [23ч, 25ч) и [47ч, 49ч)
func DefaultWindows() Windows {
	return Windows{
		Tier1Start: 23 * time.Hour,
		Tier1End:   25 * time.Hour,
		Tier2Start: 47 * time.Hour,
		Tier2End:   49 * time.Hour,
	}
}

// Job отвечает за отправку эскалирующих напоминаний об онбординге
type Job struct {
	customerRepo  CustomerRepository
	affiliateRepo AffiliateRepository
	mail          mailer.Mailer
	notifier      OperatorNotifier // может быть nil
	windows       Windows
	fromAddress   string
	supportCc     string
	metrics       MetricsRecorder
	logger        *zap.Logger
	now           func() time.Time
}

// NewJob создает новую джобу напоминаний об онбординге
func NewJob(
	customerRepo CustomerRepository,
	affiliateRepo AffiliateRepository,
	mail mailer.Mailer,
	notifier OperatorNotifier,
	windows Windows,
	fromAddress, supportCc string,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Job {
	return &Job{
		customerRepo:  customerRepo,
		affiliateRepo: affiliateRepo,
		mail:          mail,
		notifier:      notifier,
		windows:       windows,
		fromAddress:   fromAddress,
		supportCc:     supportCc,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Name возвращает имя задачи для планировщика
func (j *Job) Name() string {
	return "onboarding_reminders"
}

// Run запускает прогон напоминаний как задачу планировщика
func (j *Job) Run(ctx context.Context) error {
	summary, err := j.RunOnce(ctx)
	if err != nil {
		return err
	}

	j.logger.Info("прогон напоминаний завершен",
		zap.Int("reminders_24h", summary.Reminders24h),
		zap.Int("reminders_48h", summary.Reminders48h),
		zap.Int("affiliate_notifications", summary.AffiliateNotifications),
		zap.Int("errors", len(summary.Errors)))

	return nil
}

// RunOnce выполняет один проход по обоим окнам. Ошибки отдельных
// клиентов не прерывают прогон: они копятся в summary.Errors, а
// сам прогон считается успешным.
func (j *Job) RunOnce(ctx context.Context) (*models.ReminderSummary, error) {
	summary := &models.ReminderSummary{Errors: []string{}}
	now := j.now()

	// Окно 24 часа
	candidates24, err := j.customerRepo.FindReminderCandidates(ctx, 1,
		now.Add(-j.windows.Tier1End), now.Add(-j.windows.Tier1Start))
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки кандидатов 24ч: %w", err)
	}

	for _, customer := range candidates24 {
		if err := j.sendTier1(ctx, customer, now); err != nil {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("клиент %d (24ч): %v", customer.ID, err))
			continue
		}
		summary.Reminders24h++
	}

	// Окно 48 часов
	candidates48, err := j.customerRepo.FindReminderCandidates(ctx, 2,
		now.Add(-j.windows.Tier2End), now.Add(-j.windows.Tier2Start))
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки кандидатов 48ч: %w", err)
	}

	for _, customer := range candidates48 {
		notified, err := j.sendTier2(ctx, customer, now)
		if err != nil {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("клиент %d (48ч): %v", customer.ID, err))
			continue
		}
		summary.Reminders48h++
		if notified {
			summary.AffiliateNotifications++
		}
	}

	// Деградировавший прогон виден оператору, а не только в логах
	if len(summary.Errors) > 0 && j.notifier != nil {
		if err := j.notifier.AlertDegradedRun(ctx, summary); err != nil {
			j.logger.Warn("не удалось уведомить оператора", zap.Error(err))
		}
	}

	j.metrics.RecordReminderRun(now)

	return summary, nil
}

// sendTier1 отправляет первое напоминание. Сначала строка атомарно
// забирается условным UPDATE по незаполненной отметке: при двух
// одновременных прогонах письмо уйдет только из одного.
func (j *Job) sendTier1(ctx context.Context, customer *models.CustomerProfile, now time.Time) error {
	claimed, err := j.customerRepo.ClaimReminder(ctx, customer.ID, 1, now)
	if err != nil {
		return fmt.Errorf("ошибка отметки напоминания: %w", err)
	}
	if !claimed {
		// Строку уже забрал параллельный прогон
		j.logger.Debug("напоминание 24ч уже отмечено", zap.Int64("customer_id", customer.ID))
		return nil
	}

	msg := mailer.Message{
		From:    j.fromAddress,
		To:      []string{customer.Email},
		Subject: "Завершите настройку вашего аккаунта",
		HTML:    j.buildTier1Body(customer),
	}

	start := time.Now()
	if _, err := j.mail.Send(ctx, msg); err != nil {
		j.metrics.RecordReminderEmail("24h", false, time.Since(start).Seconds())
		return fmt.Errorf("ошибка отправки письма: %w", err)
	}
	j.metrics.RecordReminderEmail("24h", true, time.Since(start).Seconds())

	j.logger.Info("отправлено напоминание 24ч",
		zap.Int64("customer_id", customer.ID),
		zap.String("email", customer.Email))

	return nil
}

// sendTier2 отправляет эскалацию: письмо клиенту с копией в поддержку
// и, по возможности, уведомление приведшему партнеру. Отсутствие
// партнера или сбой его уведомления молча пропускаются.
func (j *Job) sendTier2(ctx context.Context, customer *models.CustomerProfile, now time.Time) (bool, error) {
	claimed, err := j.customerRepo.ClaimReminder(ctx, customer.ID, 2, now)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки напоминания: %w", err)
	}
	if !claimed {
		j.logger.Debug("напоминание 48ч уже отмечено", zap.Int64("customer_id", customer.ID))
		return false, nil
	}

	msg := mailer.Message{
		From:    j.fromAddress,
		To:      []string{customer.Email},
		Cc:      []string{j.supportCc},
		Subject: "Ваш аккаунт все еще не настроен — мы поможем",
		HTML:    j.buildTier2Body(customer),
	}

	start := time.Now()
	if _, err := j.mail.Send(ctx, msg); err != nil {
		j.metrics.RecordReminderEmail("48h", false, time.Since(start).Seconds())
		return false, fmt.Errorf("ошибка отправки письма: %w", err)
	}
	j.metrics.RecordReminderEmail("48h", true, time.Since(start).Seconds())

	j.logger.Info("отправлена эскалация 48ч",
		zap.Int64("customer_id", customer.ID),
		zap.String("email", customer.Email))

	return j.notifyAffiliate(ctx, customer), nil
}

// notifyAffiliate уведомляет партнера, приведшего клиента. Best-effort:
// любая ошибка здесь не считается ошибкой прогона.
func (j *Job) notifyAffiliate(ctx context.Context, customer *models.CustomerProfile) bool {
	if customer.AffiliateID == nil {
		return false
	}

	affiliate, err := j.affiliateRepo.GetByID(ctx, *customer.AffiliateID)
	if err != nil {
		j.logger.Debug("партнер клиента не найден, уведомление пропущено",
			zap.Int64("customer_id", customer.ID),
			zap.Error(err))
		return false
	}

	if affiliate.Email == "" {
		return false
	}

	msg := mailer.Message{
		From:    j.fromAddress,
		To:      []string{affiliate.Email},
		Subject: fmt.Sprintf("Ваш клиент %s застрял на онбординге", customer.Name),
		HTML: fmt.Sprintf(`<p>Здравствуйте, %s!</p>
<p>Клиент <b>%s</b> (%s) оплатил подписку более 48 часов назад, но так и не завершил настройку аккаунта.</p>
<p>Возможно, стоит связаться с ним и помочь — от активации зависит и ваша комиссия.</p>`,
			affiliate.Username, customer.Name, customer.Email),
	}

	if _, err := j.mail.Send(ctx, msg); err != nil {
		j.logger.Debug("не удалось уведомить партнера",
			zap.Int64("affiliate_id", affiliate.ID),
			zap.Error(err))
		return false
	}

	j.metrics.RecordAffiliateNotification()
	j.logger.Info("партнер уведомлен об эскалации",
		zap.Int64("customer_id", customer.ID),
		zap.Int64("affiliate_id", affiliate.ID))

	return true
}

// buildTier1Body формирует текст первого напоминания
func (j *Job) buildTier1Body(customer *models.CustomerProfile) string {
	name := customer.Name
	if name == "" {
		name = "коллега"
	}

	return fmt.Sprintf(`<p>Здравствуйте, %s!</p>
<p>Вчера вы оплатили подписку, но настройка аккаунта еще не завершена (текущий этап: <b>%s</b>).</p>
<p>Обычно настройка занимает 10–15 минут. Зайдите в личный кабинет и пройдите оставшиеся шаги — после этого система начнет работать на вас.</p>
<p>Если что-то не получается, просто ответьте на это письмо.</p>`,
		name, customer.OnboardingStage)
}

// buildTier2Body формирует текст эскалации
func (j *Job) buildTier2Body(customer *models.CustomerProfile) string {
	name := customer.Name
	if name == "" {
		name = "коллега"
	}

	return fmt.Sprintf(`<p>Здравствуйте, %s!</p>
<p>Прошло уже двое суток с момента оплаты, а ваш аккаунт все еще не настроен (этап: <b>%s</b>).</p>
<p>Мы подключили нашу команду поддержки (в копии письма) — напишите нам, и мы проведем настройку вместе с вами.</p>`,
		name, customer.OnboardingStage)
}
