package store

import (
	"context"
	"fmt"
	"time"

	"crm-core/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SuggestionRepository определяет интерфейс для работы с предложениями
// по исправлению конфигурации
type SuggestionRepository interface {
	Create(ctx context.Context, suggestion *models.RemediationSuggestion) error
	GetByID(ctx context.Context, id int64) (*models.RemediationSuggestion, error)
	UpdatePatch(ctx context.Context, id int64, target models.PatchTarget, patchText string, payload *models.PatchPayload) error
	UpdateStatus(ctx context.Context, id int64, status models.SuggestionStatus) error
	ListByStatus(ctx context.Context, status models.SuggestionStatus) ([]*models.RemediationSuggestion, error)
}

// PostgresSuggestionRepository реализует SuggestionRepository для PostgreSQL
type PostgresSuggestionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewSuggestionRepository создает новый репозиторий предложений
func NewSuggestionRepository(db *pgxpool.Pool, logger *zap.Logger) SuggestionRepository {
	return &PostgresSuggestionRepository{
		db:     db,
		logger: logger,
	}
}

// Create создает новое предложение
func (r *PostgresSuggestionRepository) Create(ctx context.Context, suggestion *models.RemediationSuggestion) error {
	query := `
		INSERT INTO remediation_suggestions (vertical_id, channel, issue_tags, suggested_change, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	suggestion.CreatedAt = now
	suggestion.UpdatedAt = now
	if suggestion.Status == "" {
		suggestion.Status = string(models.SuggestionStatusDraft)
	}

	err := r.db.QueryRow(ctx, query,
		suggestion.VerticalID,
		suggestion.Channel,
		suggestion.IssueTags,
		suggestion.SuggestedChange,
		suggestion.Status,
		suggestion.CreatedAt,
		suggestion.UpdatedAt,
	).Scan(&suggestion.ID)

	if err != nil {
		return fmt.Errorf("ошибка создания предложения: %w", err)
	}

	r.logger.Info("предложение создано",
		zap.Int64("suggestion_id", suggestion.ID),
		zap.String("vertical_id", suggestion.VerticalID),
		zap.Strings("issue_tags", suggestion.IssueTags))

	return nil
}

// GetByID получает предложение по ID
func (r *PostgresSuggestionRepository) GetByID(ctx context.Context, id int64) (*models.RemediationSuggestion, error) {
	query := `
		SELECT id, vertical_id, channel, issue_tags, suggested_change, status,
		       patch_target, patch_text, patch_payload, created_at, updated_at
		FROM remediation_suggestions
		WHERE id = $1`

	suggestion := &models.RemediationSuggestion{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&suggestion.ID,
		&suggestion.VerticalID,
		&suggestion.Channel,
		&suggestion.IssueTags,
		&suggestion.SuggestedChange,
		&suggestion.Status,
		&suggestion.PatchTarget,
		&suggestion.PatchText,
		&suggestion.PatchPayload,
		&suggestion.CreatedAt,
		&suggestion.UpdatedAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("предложение %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения предложения: %w", err)
	}

	return suggestion, nil
}

// UpdatePatch записывает сгенерированный патч на предложение
func (r *PostgresSuggestionRepository) UpdatePatch(ctx context.Context, id int64, target models.PatchTarget, patchText string, payload *models.PatchPayload) error {
	query := `
		UPDATE remediation_suggestions
		SET patch_target = $2, patch_text = $3, patch_payload = $4, updated_at = $5
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, string(target), patchText, payload, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка записи патча: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("предложение %d: %w", id, models.ErrNotFound)
	}

	r.logger.Info("патч записан на предложение",
		zap.Int64("suggestion_id", id),
		zap.String("patch_target", string(target)))

	return nil
}

// UpdateStatus обновляет статус предложения
func (r *PostgresSuggestionRepository) UpdateStatus(ctx context.Context, id int64, status models.SuggestionStatus) error {
	query := `
		UPDATE remediation_suggestions
		SET status = $2, updated_at = $3
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса предложения: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("предложение %d: %w", id, models.ErrNotFound)
	}

	return nil
}

// ListByStatus получает предложения с указанным статусом
func (r *PostgresSuggestionRepository) ListByStatus(ctx context.Context, status models.SuggestionStatus) ([]*models.RemediationSuggestion, error) {
	query := `
		SELECT id, vertical_id, channel, issue_tags, suggested_change, status,
		       patch_target, patch_text, patch_payload, created_at, updated_at
		FROM remediation_suggestions
		WHERE status = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения предложений: %w", err)
	}
	defer rows.Close()

	var suggestions []*models.RemediationSuggestion
	for rows.Next() {
		suggestion := &models.RemediationSuggestion{}
		err := rows.Scan(
			&suggestion.ID,
			&suggestion.VerticalID,
			&suggestion.Channel,
			&suggestion.IssueTags,
			&suggestion.SuggestedChange,
			&suggestion.Status,
			&suggestion.PatchTarget,
			&suggestion.PatchText,
			&suggestion.PatchPayload,
			&suggestion.CreatedAt,
			&suggestion.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования предложения: %w", err)
		}
		suggestions = append(suggestions, suggestion)
	}

	return suggestions, nil
}
