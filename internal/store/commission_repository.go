package store

import (
	"context"
	"fmt"
	"time"

	"crm-core/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// CommissionRepository определяет интерфейс для работы с начислениями
type CommissionRepository interface {
	CreateBatch(ctx context.Context, commissions []*models.Commission) error
	GetByCustomerID(ctx context.Context, customerID int64) ([]*models.Commission, error)
	DeleteByCustomerIDs(ctx context.Context, customerIDs []int64) (int64, error)
}

// PostgresCommissionRepository реализует CommissionRepository для PostgreSQL
type PostgresCommissionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCommissionRepository создает новый репозиторий начислений
func NewCommissionRepository(db *pgxpool.Pool, logger *zap.Logger) CommissionRepository {
	return &PostgresCommissionRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch записывает набор начислений одной транзакцией.
// Либо записываются все уровни, либо ни одного: частично записанный
// набор комиссий внешняя сверка не обнаружит.
func (r *PostgresCommissionRepository) CreateBatch(ctx context.Context, commissions []*models.Commission) error {
	if len(commissions) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO affiliate_commissions (customer_id, affiliate_id, level, rate, amount, event_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	for _, commission := range commissions {
		commission.CreatedAt = now
		if commission.Status == "" {
			commission.Status = string(models.CommissionStatusPending)
		}

		err := tx.QueryRow(ctx, query,
			commission.CustomerID,
			commission.AffiliateID,
			commission.Level,
			commission.Rate,
			commission.Amount,
			commission.EventType,
			commission.Status,
			commission.CreatedAt,
		).Scan(&commission.ID)

		if err != nil {
			return fmt.Errorf("ошибка записи начисления уровня %d: %w", commission.Level, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции начислений: %w", err)
	}

	r.logger.Info("начисления записаны",
		zap.Int64("customer_id", commissions[0].CustomerID),
		zap.Int("count", len(commissions)))

	return nil
}

// GetByCustomerID получает все начисления по клиенту
func (r *PostgresCommissionRepository) GetByCustomerID(ctx context.Context, customerID int64) ([]*models.Commission, error) {
	query := `
		SELECT id, customer_id, affiliate_id, level, rate, amount, event_type, status, created_at
		FROM affiliate_commissions
		WHERE customer_id = $1
		ORDER BY level ASC`

	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений: %w", err)
	}
	defer rows.Close()

	var commissions []*models.Commission
	for rows.Next() {
		commission := &models.Commission{}
		err := rows.Scan(
			&commission.ID,
			&commission.CustomerID,
			&commission.AffiliateID,
			&commission.Level,
			&commission.Rate,
			&commission.Amount,
			&commission.EventType,
			&commission.Status,
			&commission.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования начисления: %w", err)
		}
		commissions = append(commissions, commission)
	}

	return commissions, nil
}

// DeleteByCustomerIDs удаляет начисления по списку клиентов
func (r *PostgresCommissionRepository) DeleteByCustomerIDs(ctx context.Context, customerIDs []int64) (int64, error) {
	if len(customerIDs) == 0 {
		return 0, nil
	}

	query := `DELETE FROM affiliate_commissions WHERE customer_id = ANY($1)`

	result, err := r.db.Exec(ctx, query, customerIDs)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления начислений: %w", err)
	}

	deleted := result.RowsAffected()
	r.logger.Info("начисления удалены",
		zap.Int("customers", len(customerIDs)),
		zap.Int64("deleted", deleted))

	return deleted, nil
}
