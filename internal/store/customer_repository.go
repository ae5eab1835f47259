package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-core/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// isNoRows проверяет, что ошибка означает отсутствие строки
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// customerRepository реализует CustomerRepository
type customerRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCustomerRepository создает новый репозиторий клиентов
func NewCustomerRepository(db *pgxpool.Pool, logger *zap.Logger) CustomerRepository {
	return &customerRepository{
		db:     db,
		logger: logger,
	}
}

const customerColumns = `id, email, name, affiliate_id, plan_id, customer_type, payment_received_at,
	       onboarding_stage, reminder_24h_sent_at, reminder_48h_sent_at, is_test, created_at, updated_at`

// scanCustomer сканирует строку в профиль клиента
func scanCustomer(row pgx.Row) (*models.CustomerProfile, error) {
	c := &models.CustomerProfile{}
	err := row.Scan(
		&c.ID, &c.Email, &c.Name, &c.AffiliateID, &c.PlanID, &c.CustomerType, &c.PaymentReceivedAt,
		&c.OnboardingStage, &c.Reminder24hSentAt, &c.Reminder48hSentAt, &c.IsTest, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create создает нового клиента
func (r *customerRepository) Create(ctx context.Context, customer *models.CustomerProfile) error {
	query := `
		INSERT INTO customer_profiles (email, name, affiliate_id, plan_id, customer_type, payment_received_at,
		                               onboarding_stage, is_test, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	// Устанавливаем значения по умолчанию
	if customer.OnboardingStage == "" {
		customer.OnboardingStage = models.StageNotStarted
	}
	if customer.CustomerType == "" {
		customer.CustomerType = models.CustomerTypePaying
	}

	err := r.db.QueryRow(ctx, query,
		customer.Email, customer.Name, customer.AffiliateID, customer.PlanID,
		customer.CustomerType, customer.PaymentReceivedAt, customer.OnboardingStage,
		customer.IsTest, customer.CreatedAt, customer.UpdatedAt,
	).Scan(&customer.ID)

	if err != nil {
		return fmt.Errorf("ошибка создания клиента: %w", err)
	}

	r.logger.Info("клиент создан",
		zap.Int64("customer_id", customer.ID),
		zap.String("email", customer.Email),
		zap.String("customer_type", customer.CustomerType),
		zap.Bool("is_test", customer.IsTest))

	return nil
}

// GetByID получает клиента по ID
func (r *customerRepository) GetByID(ctx context.Context, id int64) (*models.CustomerProfile, error) {
	query := `SELECT ` + customerColumns + ` FROM customer_profiles WHERE id = $1`

	customer, err := scanCustomer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("клиент %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения клиента по ID: %w", err)
	}

	return customer, nil
}

// Update обновляет клиента
func (r *customerRepository) Update(ctx context.Context, customer *models.CustomerProfile) error {
	query := `
		UPDATE customer_profiles
		SET email = $2, name = $3, affiliate_id = $4, plan_id = $5, customer_type = $6,
		    payment_received_at = $7, onboarding_stage = $8, reminder_24h_sent_at = $9,
		    reminder_48h_sent_at = $10, is_test = $11, updated_at = $12
		WHERE id = $1`

	customer.UpdatedAt = time.Now()

	result, err := r.db.Exec(ctx, query,
		customer.ID, customer.Email, customer.Name, customer.AffiliateID, customer.PlanID,
		customer.CustomerType, customer.PaymentReceivedAt, customer.OnboardingStage,
		customer.Reminder24hSentAt, customer.Reminder48hSentAt, customer.IsTest, customer.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("ошибка обновления клиента: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("клиент %d: %w", customer.ID, models.ErrNotFound)
	}

	r.logger.Info("клиент обновлен", zap.Int64("customer_id", customer.ID))
	return nil
}

// UpdateOnboardingStage обновляет этап онбординга клиента
func (r *customerRepository) UpdateOnboardingStage(ctx context.Context, customerID int64, stage string) error {
	query := `UPDATE customer_profiles SET onboarding_stage = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, customerID, stage, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления этапа онбординга: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("клиент %d: %w", customerID, models.ErrNotFound)
	}

	r.logger.Info("этап онбординга обновлен",
		zap.Int64("customer_id", customerID),
		zap.String("stage", stage))
	return nil
}

// FindReminderCandidates получает клиентов, чей платеж попал в окно напоминания
// и которым напоминание данного уровня еще не отправлялось. Окно задается
// джобой: windowStart и windowEnd ограничивают payment_received_at снизу и сверху.
func (r *customerRepository) FindReminderCandidates(ctx context.Context, tier int, windowStart, windowEnd time.Time) ([]*models.CustomerProfile, error) {
	var query string
	switch tier {
	case 1:
		query = `SELECT ` + customerColumns + `
			FROM customer_profiles
			WHERE payment_received_at > $1 AND payment_received_at <= $2
			  AND reminder_24h_sent_at IS NULL
			  AND onboarding_stage <> 'completed'
			ORDER BY payment_received_at ASC`
	case 2:
		query = `SELECT ` + customerColumns + `
			FROM customer_profiles
			WHERE payment_received_at > $1 AND payment_received_at <= $2
			  AND reminder_24h_sent_at IS NOT NULL
			  AND reminder_48h_sent_at IS NULL
			  AND onboarding_stage <> 'completed'
			ORDER BY payment_received_at ASC`
	default:
		return nil, fmt.Errorf("неизвестный уровень напоминания %d: %w", tier, models.ErrValidation)
	}

	rows, err := r.db.Query(ctx, query, windowStart, windowEnd)
	if err != nil {
		r.logger.Error("ошибка получения кандидатов на напоминание", zap.Error(err))
		return nil, fmt.Errorf("ошибка получения кандидатов на напоминание: %w", err)
	}
	defer rows.Close()

	var customers []*models.CustomerProfile
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			r.logger.Error("ошибка сканирования кандидата", zap.Error(err))
			continue
		}
		customers = append(customers, customer)
	}

	r.logger.Info("найдены кандидаты на напоминание",
		zap.Int("tier", tier),
		zap.Int("count", len(customers)),
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd))

	return customers, nil
}

// ClaimReminder атомарно помечает напоминание отправленным. Условный UPDATE
// по незаполненной отметке гарантирует, что при двух одновременных прогонах
// джобы строку заберет ровно один из них.
func (r *customerRepository) ClaimReminder(ctx context.Context, customerID int64, tier int, sentAt time.Time) (bool, error) {
	var query string
	switch tier {
	case 1:
		query = `UPDATE customer_profiles
			SET reminder_24h_sent_at = $2, updated_at = $2
			WHERE id = $1 AND reminder_24h_sent_at IS NULL`
	case 2:
		query = `UPDATE customer_profiles
			SET reminder_48h_sent_at = $2, updated_at = $2
			WHERE id = $1 AND reminder_48h_sent_at IS NULL`
	default:
		return false, fmt.Errorf("неизвестный уровень напоминания %d: %w", tier, models.ErrValidation)
	}

	result, err := r.db.Exec(ctx, query, customerID, sentAt)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки напоминания: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// ListTestIDs возвращает ID всех тестовых клиентов
func (r *customerRepository) ListTestIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM customer_profiles WHERE is_test = true`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки тестовых клиентов: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ID тестового клиента: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// DeleteTestData удаляет тестовых клиентов и возвращает их ID.
// Начисления тестовых клиентов должны быть удалены раньше.
func (r *customerRepository) DeleteTestData(ctx context.Context) ([]int64, error) {
	query := `DELETE FROM customer_profiles WHERE is_test = true RETURNING id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления тестовых клиентов: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ID тестового клиента: %w", err)
		}
		ids = append(ids, id)
	}

	r.logger.Info("тестовые клиенты удалены", zap.Int("count", len(ids)))
	return ids, nil
}
