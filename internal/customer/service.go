package customer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-core/pkg/models"

	"go.uber.org/zap"
)

// CustomerRepository интерфейс для работы с клиентами
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.CustomerProfile) error
	GetByID(ctx context.Context, id int64) (*models.CustomerProfile, error)
	UpdateOnboardingStage(ctx context.Context, customerID int64, stage string) error
	ListTestIDs(ctx context.Context) ([]int64, error)
	DeleteTestData(ctx context.Context) ([]int64, error)
}

// AffiliateRepository интерфейс для работы с партнерами
type AffiliateRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.Affiliate, error)
}

// PlanRepository интерфейс для работы с тарифами
type PlanRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Plan, error)
}

// CommissionRepository интерфейс для работы с начислениями
type CommissionRepository interface {
	DeleteByCustomerIDs(ctx context.Context, customerIDs []int64) (int64, error)
}

// Service представляет сервис управления клиентами
type Service struct {
	customerRepo   CustomerRepository
	affiliateRepo  AffiliateRepository
	planRepo       PlanRepository
	commissionRepo CommissionRepository
	logger         *zap.Logger
}

// NewService создает новый сервис управления клиентами
func NewService(
	customerRepo CustomerRepository,
	affiliateRepo AffiliateRepository,
	planRepo PlanRepository,
	commissionRepo CommissionRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		customerRepo:   customerRepo,
		affiliateRepo:  affiliateRepo,
		planRepo:       planRepo,
		commissionRepo: commissionRepo,
		logger:         logger,
	}
}

// ClearTestDataResult представляет итог очистки тестовых данных
type ClearTestDataResult struct {
	CustomersDeleted   int   `json:"customersDeleted"`
	CommissionsDeleted int64 `json:"commissionsDeleted"`
}

// Create создает клиента. Партнер и тариф резолвятся по имени и коду,
// момент оплаты по умолчанию — сейчас.
func (s *Service) Create(ctx context.Context, req *models.CreateCustomerRequest) (*models.CustomerProfile, error) {
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("некорректный email %q: %w", req.Email, models.ErrValidation)
	}

	customerType := req.CustomerType
	if customerType == "" {
		customerType = models.CustomerTypePaying
	}
	if !models.IsValidCustomerType(customerType) {
		return nil, fmt.Errorf("некорректный тип клиента %q: %w", customerType, models.ErrValidation)
	}

	customer := &models.CustomerProfile{
		Email:           req.Email,
		Name:            req.Name,
		CustomerType:    customerType,
		OnboardingStage: models.StageNotStarted,
		IsTest:          req.IsTest,
	}

	if req.AffiliateUsername != "" {
		affiliate, err := s.affiliateRepo.GetByUsername(ctx, req.AffiliateUsername)
		if err != nil {
			return nil, fmt.Errorf("ошибка поиска партнера %q: %w", req.AffiliateUsername, err)
		}
		customer.AffiliateID = &affiliate.ID
	}

	if req.PlanCode != "" {
		plan, err := s.planRepo.GetByCode(ctx, req.PlanCode)
		if err != nil {
			return nil, fmt.Errorf("ошибка поиска тарифа %q: %w", req.PlanCode, err)
		}
		customer.PlanID = &plan.ID
	}

	if customerType == models.CustomerTypePaying {
		paymentAt := req.PaymentReceivedAt
		if paymentAt == nil {
			now := time.Now()
			paymentAt = &now
		}
		customer.PaymentReceivedAt = paymentAt
	}

	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("ошибка создания клиента: %w", err)
	}

	s.logger.Info("клиент создан",
		zap.Int64("customer_id", customer.ID),
		zap.String("email", customer.Email),
		zap.String("customer_type", customer.CustomerType),
		zap.Bool("is_test", customer.IsTest))

	return customer, nil
}

// GetByID возвращает клиента по идентификатору
func (s *Service) GetByID(ctx context.Context, id int64) (*models.CustomerProfile, error) {
	return s.customerRepo.GetByID(ctx, id)
}

// CompleteOnboarding переводит клиента на завершающий этап.
// После этого он выпадает из выборок напоминаний.
func (s *Service) CompleteOnboarding(ctx context.Context, customerID int64) error {
	if _, err := s.customerRepo.GetByID(ctx, customerID); err != nil {
		return fmt.Errorf("ошибка получения клиента: %w", err)
	}

	if err := s.customerRepo.UpdateOnboardingStage(ctx, customerID, models.StageCompleted); err != nil {
		return fmt.Errorf("ошибка обновления этапа онбординга: %w", err)
	}

	s.logger.Info("онбординг завершен", zap.Int64("customer_id", customerID))
	return nil
}

// ClearTestData удаляет тестовых клиентов и их начисления.
// Сначала начисления, потом клиенты, иначе упремся во внешний ключ.
func (s *Service) ClearTestData(ctx context.Context) (*ClearTestDataResult, error) {
	testIDs, err := s.customerRepo.ListTestIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки тестовых клиентов: %w", err)
	}

	result := &ClearTestDataResult{}

	if len(testIDs) > 0 {
		deleted, err := s.commissionRepo.DeleteByCustomerIDs(ctx, testIDs)
		if err != nil {
			return nil, fmt.Errorf("ошибка удаления тестовых начислений: %w", err)
		}
		result.CommissionsDeleted = deleted
	}

	customerIDs, err := s.customerRepo.DeleteTestData(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления тестовых клиентов: %w", err)
	}
	result.CustomersDeleted = len(customerIDs)

	s.logger.Info("тестовые данные очищены",
		zap.Int("customers_deleted", result.CustomersDeleted),
		zap.Int64("commissions_deleted", result.CommissionsDeleted))

	return result, nil
}
