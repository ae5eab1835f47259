package store

import (
	"context"
	"fmt"
	"time"

	"crm-core/internal/config"
	"crm-core/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store представляет интерфейс для работы с базой данных
type Store interface {
	Customer() CustomerRepository
	Affiliate() AffiliateRepository
	Plan() PlanRepository
	Commission() CommissionRepository
	Suggestion() SuggestionRepository
	DB() *pgxpool.Pool
	Close() error
}

// store реализует интерфейс Store
type store struct {
	db         *pgxpool.Pool
	logger     *zap.Logger
	customer   CustomerRepository
	affiliate  AffiliateRepository
	plan       PlanRepository
	commission CommissionRepository
	suggestion SuggestionRepository
}

// CustomerRepository интерфейс для работы с профилями клиентов
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.CustomerProfile) error
	GetByID(ctx context.Context, id int64) (*models.CustomerProfile, error)
	Update(ctx context.Context, customer *models.CustomerProfile) error
	UpdateOnboardingStage(ctx context.Context, customerID int64, stage string) error
	FindReminderCandidates(ctx context.Context, tier int, windowStart, windowEnd time.Time) ([]*models.CustomerProfile, error)
	ClaimReminder(ctx context.Context, customerID int64, tier int, sentAt time.Time) (bool, error)
	ListTestIDs(ctx context.Context) ([]int64, error)
	DeleteTestData(ctx context.Context) ([]int64, error)
}

// PlanRepository интерфейс для работы с тарифными планами
type PlanRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
	GetByCode(ctx context.Context, code string) (*models.Plan, error)
	List(ctx context.Context) ([]*models.Plan, error)
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Создание пула подключений
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	// Создание пула
	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Проверка подключения
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	s := &store{
		db:     db,
		logger: logger,
	}

	// Инициализация репозиториев
	s.customer = NewCustomerRepository(db, logger)
	s.affiliate = NewAffiliateRepository(db, logger)
	s.plan = NewPlanRepository(db, logger)
	s.commission = NewCommissionRepository(db, logger)
	s.suggestion = NewSuggestionRepository(db, logger)

	return s, nil
}

// Customer возвращает репозиторий клиентов
func (s *store) Customer() CustomerRepository {
	return s.customer
}

// Affiliate возвращает репозиторий партнеров
func (s *store) Affiliate() AffiliateRepository {
	return s.affiliate
}

// Plan возвращает репозиторий тарифных планов
func (s *store) Plan() PlanRepository {
	return s.plan
}

// Commission возвращает репозиторий комиссионных начислений
func (s *store) Commission() CommissionRepository {
	return s.commission
}

// Suggestion возвращает репозиторий предложений по исправлению
func (s *store) Suggestion() SuggestionRepository {
	return s.suggestion
}

// DB возвращает подключение к базе данных
func (s *store) DB() *pgxpool.Pool {
	return s.db
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}

// planRepository реализует PlanRepository
type planRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPlanRepository создает новый репозиторий тарифных планов
func NewPlanRepository(db *pgxpool.Pool, logger *zap.Logger) PlanRepository {
	return &planRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID получает тарифный план по ID
func (r *planRepository) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	query := `
		SELECT id, code, name, monthly_price, currency, created_at
		FROM customer_plans WHERE id = $1`

	plan := &models.Plan{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&plan.ID, &plan.Code, &plan.Name, &plan.MonthlyPrice, &plan.Currency, &plan.CreatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("план %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения плана по ID: %w", err)
	}

	return plan, nil
}

// GetByCode получает тарифный план по коду
func (r *planRepository) GetByCode(ctx context.Context, code string) (*models.Plan, error) {
	query := `
		SELECT id, code, name, monthly_price, currency, created_at
		FROM customer_plans WHERE code = $1`

	plan := &models.Plan{}
	err := r.db.QueryRow(ctx, query, code).Scan(
		&plan.ID, &plan.Code, &plan.Name, &plan.MonthlyPrice, &plan.Currency, &plan.CreatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("план %q: %w", code, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения плана по коду: %w", err)
	}

	return plan, nil
}

// List получает все тарифные планы
func (r *planRepository) List(ctx context.Context) ([]*models.Plan, error) {
	query := `
		SELECT id, code, name, monthly_price, currency, created_at
		FROM customer_plans
		ORDER BY monthly_price ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка планов: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan := &models.Plan{}
		err := rows.Scan(&plan.ID, &plan.Code, &plan.Name, &plan.MonthlyPrice, &plan.Currency, &plan.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования плана: %w", err)
		}
		plans = append(plans, plan)
	}

	return plans, nil
}
