package store

import (
	"context"
	"fmt"
	"time"

	"crm-core/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AffiliateRepository определяет интерфейс для работы с партнерами
type AffiliateRepository interface {
	Create(ctx context.Context, affiliate *models.Affiliate) error
	GetByID(ctx context.Context, id int64) (*models.Affiliate, error)
	GetByUsername(ctx context.Context, username string) (*models.Affiliate, error)
	GetUpline(ctx context.Context, affiliateID int64, maxDepth int) ([]*models.Affiliate, error)
}

// PostgresAffiliateRepository реализует AffiliateRepository для PostgreSQL
type PostgresAffiliateRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewAffiliateRepository создает новый репозиторий партнеров
func NewAffiliateRepository(db *pgxpool.Pool, logger *zap.Logger) AffiliateRepository {
	return &PostgresAffiliateRepository{
		db:     db,
		logger: logger,
	}
}

// Create создает нового партнера
func (r *PostgresAffiliateRepository) Create(ctx context.Context, affiliate *models.Affiliate) error {
	query := `
		INSERT INTO affiliates (username, email, parent_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if affiliate.CreatedAt.IsZero() {
		affiliate.CreatedAt = time.Now()
	}

	err := r.db.QueryRow(ctx, query,
		affiliate.Username,
		affiliate.Email,
		affiliate.ParentID,
		affiliate.CreatedAt,
	).Scan(&affiliate.ID)

	if err != nil {
		return fmt.Errorf("ошибка создания партнера: %w", err)
	}

	r.logger.Info("партнер создан",
		zap.Int64("affiliate_id", affiliate.ID),
		zap.String("username", affiliate.Username))

	return nil
}

// GetByID получает партнера по ID
func (r *PostgresAffiliateRepository) GetByID(ctx context.Context, id int64) (*models.Affiliate, error) {
	query := `
		SELECT id, username, email, parent_id, created_at
		FROM affiliates
		WHERE id = $1`

	affiliate := &models.Affiliate{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&affiliate.ID,
		&affiliate.Username,
		&affiliate.Email,
		&affiliate.ParentID,
		&affiliate.CreatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("партнер %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения партнера: %w", err)
	}

	return affiliate, nil
}

// GetByUsername получает партнера по имени пользователя
func (r *PostgresAffiliateRepository) GetByUsername(ctx context.Context, username string) (*models.Affiliate, error) {
	query := `
		SELECT id, username, email, parent_id, created_at
		FROM affiliates
		WHERE username = $1`

	affiliate := &models.Affiliate{}
	err := r.db.QueryRow(ctx, query, username).Scan(
		&affiliate.ID,
		&affiliate.Username,
		&affiliate.Email,
		&affiliate.ParentID,
		&affiliate.CreatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("партнер %q: %w", username, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения партнера по имени: %w", err)
	}

	return affiliate, nil
}

// GetUpline получает цепочку вышестоящих партнеров, начиная с указанного.
// Обход ограничен maxDepth уровнями; множество посещенных ID защищает от
// циклов в отношении parent_id, которые не проверяются при записи.
func (r *PostgresAffiliateRepository) GetUpline(ctx context.Context, affiliateID int64, maxDepth int) ([]*models.Affiliate, error) {
	var upline []*models.Affiliate
	visited := make(map[int64]bool)

	currentID := affiliateID
	for depth := 0; depth < maxDepth; depth++ {
		if visited[currentID] {
			r.logger.Warn("обнаружен цикл в дереве партнеров, обход прерван",
				zap.Int64("affiliate_id", currentID),
				zap.Int("depth", depth))
			break
		}
		visited[currentID] = true

		affiliate, err := r.GetByID(ctx, currentID)
		if err != nil {
			if depth == 0 {
				return nil, err
			}
			// Битая ссылка на родителя посреди цепочки — возвращаем то, что нашли
			r.logger.Warn("вышестоящий партнер не найден, цепочка обрезана",
				zap.Int64("affiliate_id", currentID),
				zap.Error(err))
			break
		}

		upline = append(upline, affiliate)

		if affiliate.ParentID == nil {
			break
		}
		currentID = *affiliate.ParentID
	}

	return upline, nil
}
