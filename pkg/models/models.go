package models

import (
	"errors"
	"time"
)

// Сентинельные ошибки ядра. HTTP обработчики сопоставляют их
// со статус-кодами через errors.Is.
var (
	ErrNotFound   = errors.New("сущность не найдена")
	ErrValidation = errors.New("некорректные входные данные")
	ErrUpstream   = errors.New("ошибка внешнего сервиса")
)

// CustomerProfile представляет клиента (платящего или комплиментарного)
type CustomerProfile struct {
	ID                int64      `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	Name              string     `json:"name" db:"name"`
	AffiliateID       *int64     `json:"affiliate_id" db:"affiliate_id"` // Прямой партнер, может отсутствовать
	PlanID            *int64     `json:"plan_id" db:"plan_id"`
	CustomerType      string     `json:"customer_type" db:"customer_type"` // paying, complimentary
	PaymentReceivedAt *time.Time `json:"payment_received_at" db:"payment_received_at"`
	OnboardingStage   string     `json:"onboarding_stage" db:"onboarding_stage"`
	Reminder24hSentAt *time.Time `json:"reminder_24h_sent_at" db:"reminder_24h_sent_at"` // Отметка об отправке напоминания через 24ч
	Reminder48hSentAt *time.Time `json:"reminder_48h_sent_at" db:"reminder_48h_sent_at"` // Отметка об отправке напоминания через 48ч
	IsTest            bool       `json:"is_test" db:"is_test"`                           // Тестовый клиент (создан оркестратором)
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Affiliate представляет реферального партнера
type Affiliate struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	ParentID  *int64    `json:"parent_id" db:"parent_id"` // Вышестоящий партнер, образует дерево
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Plan представляет тарифный план
type Plan struct {
	ID           int64     `json:"id" db:"id"`
	Code         string    `json:"code" db:"code"` // starter, pro, enterprise
	Name         string    `json:"name" db:"name"`
	MonthlyPrice float64   `json:"monthly_price" db:"monthly_price"`
	Currency     string    `json:"currency" db:"currency"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Constants для типов клиентов
const (
	CustomerTypePaying        = "paying"
	CustomerTypeComplimentary = "complimentary"
)

// Constants для этапов онбординга
const (
	StageNotStarted  = "not_started"
	StageProfile     = "profile_setup"
	StageIntegration = "integration"
	StageCompleted   = "completed"
)

// IsValidCustomerType проверяет корректность типа клиента
func IsValidCustomerType(t string) bool {
	switch t {
	case CustomerTypePaying, CustomerTypeComplimentary:
		return true
	default:
		return false
	}
}

// IsValidOnboardingStage проверяет корректность этапа онбординга
func IsValidOnboardingStage(stage string) bool {
	switch stage {
	case StageNotStarted, StageProfile, StageIntegration, StageCompleted:
		return true
	default:
		return false
	}
}

// OnboardingCompleted сообщает, завершил ли клиент онбординг
func (c *CustomerProfile) OnboardingCompleted() bool {
	return c.OnboardingStage == StageCompleted
}

// CreateCustomerRequest представляет запрос на создание клиента
type CreateCustomerRequest struct {
	Email             string     `json:"email" validate:"required,email"`
	Name              string     `json:"name"`
	AffiliateUsername string     `json:"affiliate_username"`
	PlanCode          string     `json:"plan_code"`
	CustomerType      string     `json:"customer_type"`
	PaymentReceivedAt *time.Time `json:"payment_received_at,omitempty"`
	IsTest            bool       `json:"is_test"`
}

// ReminderSummary представляет итог одного прогона джобы напоминаний.
// Ошибки по отдельным клиентам изолируются: прогон в целом считается
// успешным, деградацию видно только по списку errors.
type ReminderSummary struct {
	Reminders24h           int      `json:"reminders24h"`
	Reminders48h           int      `json:"reminders48h"`
	AffiliateNotifications int      `json:"affiliateNotifications"`
	Errors                 []string `json:"errors"`
}
