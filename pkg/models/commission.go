package models

import (
	"time"
)

// Commission представляет комиссионное начисление партнеру.
// Одна строка на пару (клиент, уровень); amount всегда производная
// величина: grossAmount × ставка уровня.
type Commission struct {
	ID          int64     `json:"id" db:"id"`
	CustomerID  int64     `json:"customer_id" db:"customer_id"`
	AffiliateID int64     `json:"affiliate_id" db:"affiliate_id"`
	Level       int       `json:"level" db:"level"` // 1 — прямой партнер, 2 — его родитель, 3 — прародитель
	Rate        float64   `json:"rate" db:"rate"`
	Amount      float64   `json:"amount" db:"amount"`
	EventType   string    `json:"event_type" db:"event_type"` // Метка события, в расчете не участвует
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CommissionStatus представляет статус начисления
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusApproved  CommissionStatus = "approved"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// IsValid проверяет валидность статуса начисления
func (cs CommissionStatus) IsValid() bool {
	switch cs {
	case CommissionStatusPending, CommissionStatusApproved, CommissionStatusPaid, CommissionStatusCancelled:
		return true
	default:
		return false
	}
}

// MaxCommissionLevels ограничивает глубину обхода цепочки партнеров.
// Ограничение заодно защищает обход от циклов в дереве партнеров.
const MaxCommissionLevels = 3

// DistributeRequest представляет запрос на распределение комиссий
type DistributeRequest struct {
	CustomerID  int64   `json:"customerId"`
	GrossAmount float64 `json:"grossAmount"`
	EventType   string  `json:"eventType"`
}

// DistributeResult представляет результат распределения комиссий
type DistributeResult struct {
	Created []Commission `json:"created"`
}

// VerificationReport представляет результат сверки начислений клиента
type VerificationReport struct {
	CustomerID   int64        `json:"customer_id"`
	Verification string       `json:"verification"` // PASS или FAIL
	Expected     int          `json:"expected_count"`
	Actual       int          `json:"actual_count"`
	TotalAmount  float64      `json:"total_amount"`
	Problems     []string     `json:"problems,omitempty"`
	Commissions  []Commission `json:"commissions"`
}
