package commission

import (
	"context"
	"fmt"
	"math"

	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// CustomerRepository интерфейс для работы с клиентами
type CustomerRepository interface {
	GetByID(ctx context.Context, id int64) (*models.CustomerProfile, error)
}

// AffiliateRepository интерфейс для работы с партнерами
type AffiliateRepository interface {
	GetUpline(ctx context.Context, affiliateID int64, maxDepth int) ([]*models.Affiliate, error)
}

// CommissionRepository интерфейс для работы с начислениями
type CommissionRepository interface {
	CreateBatch(ctx context.Context, commissions []*models.Commission) error
	GetByCustomerID(ctx context.Context, customerID int64) ([]*models.Commission, error)
}

// MetricsRecorder записывает метрики созданных начислений
type MetricsRecorder interface {
	RecordCommission(level int, amount float64)
}

// RateTable задает ставки по уровням цепочки партнеров.
// Передается в сервис при создании, а не живет глобальной переменной.
type RateTable struct {
	Level1 float64
	Level2 float64
	Level3 float64
}

// DefaultRateTable возвращает стандартные ставки: 5% / 4% / 3%
func DefaultRateTable() RateTable {
	return RateTable{
		Level1: 0.05,
		Level2: 0.04,
		Level3: 0.03,
	}
}

// ForLevel возвращает ставку для уровня (1–3)
func (rt RateTable) ForLevel(level int) float64 {
	switch level {
	case 1:
		return rt.Level1
	case 2:
		return rt.Level2
	case 3:
		return rt.Level3
	default:
		return 0
	}
}

// Service представляет сервис распределения комиссий
type Service struct {
	customerRepo   CustomerRepository
	affiliateRepo  AffiliateRepository
	commissionRepo CommissionRepository
	rates          RateTable
	metrics        MetricsRecorder
	logger         *zap.Logger
}

// NewService создает новый сервис распределения комиссий
func NewService(
	customerRepo CustomerRepository,
	affiliateRepo AffiliateRepository,
	commissionRepo CommissionRepository,
	rates RateTable,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		customerRepo:   customerRepo,
		affiliateRepo:  affiliateRepo,
		commissionRepo: commissionRepo,
		rates:          rates,
		metrics:        metrics,
		logger:         logger,
	}
}

// roundCents округляет сумму до центов
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Distribute вычисляет и записывает до трех начислений, обходя цепочку
// вышестоящих партнеров от прямого партнера клиента. Все уровни
// записываются одной транзакцией.
func (s *Service) Distribute(ctx context.Context, customerID int64, grossAmount float64, eventType string) (*models.DistributeResult, error) {
	if grossAmount <= 0 {
		return nil, fmt.Errorf("grossAmount должен быть положительным, получен %.2f: %w", grossAmount, models.ErrValidation)
	}

	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения клиента: %w", err)
	}

	// Клиент без партнера — корректный no-op с нулем начислений
	if customer.AffiliateID == nil {
		s.logger.Info("у клиента нет партнера, начисления не создаются",
			zap.Int64("customer_id", customerID))
		return &models.DistributeResult{Created: []models.Commission{}}, nil
	}

	upline, err := s.affiliateRepo.GetUpline(ctx, *customer.AffiliateID, models.MaxCommissionLevels)
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода цепочки партнеров: %w", err)
	}

	commissions := make([]*models.Commission, 0, len(upline))
	for i, affiliate := range upline {
		level := i + 1
		rate := s.rates.ForLevel(level)
		commissions = append(commissions, &models.Commission{
			CustomerID:  customerID,
			AffiliateID: affiliate.ID,
			Level:       level,
			Rate:        rate,
			Amount:      roundCents(grossAmount * rate),
			EventType:   eventType,
			Status:      string(models.CommissionStatusPending),
		})
	}

	if err := s.commissionRepo.CreateBatch(ctx, commissions); err != nil {
		return nil, fmt.Errorf("ошибка записи начислений: %w", err)
	}

	result := &models.DistributeResult{Created: make([]models.Commission, 0, len(commissions))}
	var total float64
	for _, c := range commissions {
		result.Created = append(result.Created, *c)
		total += c.Amount
		s.metrics.RecordCommission(c.Level, c.Amount)
	}

	s.logger.Info("комиссии распределены",
		zap.Int64("customer_id", customerID),
		zap.Float64("gross_amount", grossAmount),
		zap.String("event_type", eventType),
		zap.Int("levels", len(commissions)),
		zap.Float64("total", roundCents(total)))

	return result, nil
}

// Verify сверяет записанные начисления клиента с ожидаемыми по текущей
// цепочке партнеров и ставкам. Используется тестовым оркестратором.
func (s *Service) Verify(ctx context.Context, customerID int64, grossAmount float64) (*models.VerificationReport, error) {
	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения клиента: %w", err)
	}

	actual, err := s.commissionRepo.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений: %w", err)
	}

	report := &models.VerificationReport{
		CustomerID:   customerID,
		Verification: "PASS",
		Actual:       len(actual),
	}

	var expectedDepth int
	if customer.AffiliateID != nil {
		upline, err := s.affiliateRepo.GetUpline(ctx, *customer.AffiliateID, models.MaxCommissionLevels)
		if err != nil {
			return nil, fmt.Errorf("ошибка обхода цепочки партнеров: %w", err)
		}
		expectedDepth = len(upline)
	}
	report.Expected = expectedDepth

	if len(actual) != expectedDepth {
		report.Problems = append(report.Problems,
			fmt.Sprintf("ожидалось %d начислений, найдено %d", expectedDepth, len(actual)))
	}

	seenLevels := make(map[int]bool)
	for _, c := range actual {
		report.Commissions = append(report.Commissions, *c)
		report.TotalAmount = roundCents(report.TotalAmount + c.Amount)

		if c.Level < 1 || c.Level > models.MaxCommissionLevels {
			report.Problems = append(report.Problems,
				fmt.Sprintf("недопустимый уровень %d", c.Level))
			continue
		}
		if seenLevels[c.Level] {
			report.Problems = append(report.Problems,
				fmt.Sprintf("дубликат начисления уровня %d", c.Level))
		}
		seenLevels[c.Level] = true

		expectedAmount := roundCents(grossAmount * s.rates.ForLevel(c.Level))
		if math.Abs(c.Amount-expectedAmount) > 0.009 {
			report.Problems = append(report.Problems,
				fmt.Sprintf("уровень %d: ожидалась сумма %.2f, записано %.2f", c.Level, expectedAmount, c.Amount))
		}
	}

	if len(report.Problems) > 0 {
		report.Verification = "FAIL"
	}

	s.logger.Info("сверка начислений завершена",
		zap.Int64("customer_id", customerID),
		zap.String("verification", report.Verification),
		zap.Int("problems", len(report.Problems)))

	return report, nil
}
