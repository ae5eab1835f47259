package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger *zap.Logger

	// Счетчики
	commissionsCreated     *prometheus.CounterVec
	reminderEmails         *prometheus.CounterVec
	affiliateNotifications prometheus.Counter
	remediationPatches     *prometheus.CounterVec
	aiRequests             *prometheus.CounterVec

	// Гистограммы
	commissionAmount prometheus.Histogram
	emailSendTime    prometheus.Histogram
	aiResponseTime   prometheus.Histogram

	// Gauge метрики
	lastReminderRun prometheus.Gauge

	// Мьютекс для thread-safety
	mu sync.RWMutex
}

// New создает новый экземпляр метрик
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger,

		// Счетчики начислений по уровням цепочки
		commissionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commissions_created_total",
				Help: "Общее количество созданных партнерских начислений",
			},
			[]string{"level"}, // 1, 2, 3
		),

		// Счетчики писем напоминаний
		reminderEmails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminder_emails_total",
				Help: "Общее количество писем напоминаний об онбординге",
			},
			[]string{"tier", "status"}, // tier: 24h, 48h; status: sent, failed
		),

		// Счетчик уведомлений партнерам
		affiliateNotifications: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "affiliate_notifications_total",
				Help: "Общее количество уведомлений партнерам об эскалации",
			},
		),

		// Счетчики сгенерированных патчей по слоям
		remediationPatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediation_patches_total",
				Help: "Общее количество сгенерированных патчей",
			},
			[]string{"target"}, // base_prompt, vertical_mapping, workflow_policy, default_config, business_facts
		),

		// Счетчики AI запросов
		aiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_requests_total",
				Help: "Общее количество запросов к AI",
			},
			[]string{"status"}, // success, failed
		),

		// Гистограмма сумм начислений
		commissionAmount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "commission_amount",
				Help:    "Сумма одного партнерского начисления",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		// Гистограмма времени отправки письма
		emailSendTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "email_send_time_seconds",
				Help:    "Время отправки письма в секундах",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Гистограмма времени ответа AI
		aiResponseTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ai_response_time_seconds",
				Help:    "Время ответа AI в секундах",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Gauge времени последнего прогона напоминаний
		lastReminderRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "last_reminder_run_timestamp",
				Help: "Timestamp последнего прогона джобы напоминаний",
			},
		),
	}

	// Регистрируем все метрики
	prometheus.MustRegister(
		m.commissionsCreated,
		m.reminderEmails,
		m.affiliateNotifications,
		m.remediationPatches,
		m.aiRequests,
		m.commissionAmount,
		m.emailSendTime,
		m.aiResponseTime,
		m.lastReminderRun,
	)

	return m
}

// IncrementCounter увеличивает счетчик
func (m *Metrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "commissions_created_total":
		m.commissionsCreated.WithLabelValues(labels...).Inc()
	case "reminder_emails_total":
		m.reminderEmails.WithLabelValues(labels...).Inc()
	case "affiliate_notifications_total":
		m.affiliateNotifications.Inc()
	case "remediation_patches_total":
		m.remediationPatches.WithLabelValues(labels...).Inc()
	case "ai_requests_total":
		m.aiRequests.WithLabelValues(labels...).Inc()
	default:
		m.logger.Error("неизвестная метрика", zap.String("name", name))
		return
	}

	m.logger.Debug("метрика увеличена", zap.String("metric", name), zap.Int("count", len(labels)))
}

// SetGauge устанавливает значение gauge метрики
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "last_reminder_run_timestamp":
		m.lastReminderRun.Set(value)
	default:
		m.logger.Error("неизвестная gauge метрика", zap.String("name", name))
		return
	}

	m.logger.Debug("метрика установлена", zap.String("metric", name), zap.Float64("value", value))
}

// ObserveHistogram добавляет наблюдение в гистограмму
func (m *Metrics) ObserveHistogram(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "commission_amount":
		m.commissionAmount.Observe(value)
	case "email_send_time":
		m.emailSendTime.Observe(value)
	case "ai_response_time":
		m.aiResponseTime.Observe(value)
	default:
		m.logger.Error("неизвестная гистограмма", zap.String("name", name))
		return
	}

	m.logger.Debug("гистограмма обновлена", zap.String("metric", name), zap.Float64("value", value))
}

// RecordCommission записывает созданное начисление
func (m *Metrics) RecordCommission(level int, amount float64) {
	m.IncrementCounter("commissions_created_total", levelLabel(level))
	m.ObserveHistogram("commission_amount", amount)
}

// RecordReminderEmail записывает отправку письма напоминания
func (m *Metrics) RecordReminderEmail(tier string, success bool, sendTime float64) {
	status := "sent"
	if !success {
		status = "failed"
	}

	m.IncrementCounter("reminder_emails_total", tier, status)
	m.ObserveHistogram("email_send_time", sendTime)
}

// RecordAffiliateNotification записывает уведомление партнеру
func (m *Metrics) RecordAffiliateNotification() {
	m.IncrementCounter("affiliate_notifications_total")
}

// RecordReminderRun записывает момент завершения прогона напоминаний
func (m *Metrics) RecordReminderRun(ts time.Time) {
	m.SetGauge("last_reminder_run_timestamp", float64(ts.Unix()))
}

// RecordRemediationPatch записывает сгенерированный патч
func (m *Metrics) RecordRemediationPatch(target string) {
	m.IncrementCounter("remediation_patches_total", target)
}

// RecordAIRequest записывает запрос к AI
func (m *Metrics) RecordAIRequest(success bool, responseTime float64) {
	status := "success"
	if !success {
		status = "failed"
	}

	m.IncrementCounter("ai_requests_total", status)
	m.ObserveHistogram("ai_response_time", responseTime)
}

// Handler возвращает HTTP handler для метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func levelLabel(level int) string {
	switch level {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "other"
	}
}
