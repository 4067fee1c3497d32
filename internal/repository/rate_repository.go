package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"liraexchange/internal/models"
)

// RateFilter - фильтр активных котировок
type RateFilter struct {
	Source models.Currency
	Target models.Currency
}

// RateRepository - работа с таблицей rates
type RateRepository struct {
	db *sql.DB
}

// NewRateRepository создает новый экземпляр репозитория
func NewRateRepository(db *sql.DB) *RateRepository {
	return &RateRepository{db: db}
}

const rateColumns = `id, source_currency, target_currency, base_rate, buy_rate, sell_rate,
	markup_percentage, min_amount, max_amount, source, is_active, created_at, updated_at`

// Upsert заменяет активную котировку пары. На паре всегда одна строка:
// конфликт по (source_currency, target_currency) перезаписывает её.
func (r *RateRepository) Upsert(ctx context.Context, rate *models.Rate) error {
	query := `
		INSERT INTO rates (id, source_currency, target_currency, base_rate, buy_rate, sell_rate,
			markup_percentage, min_amount, max_amount, source, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $11)
		ON CONFLICT (source_currency, target_currency) DO UPDATE SET
			base_rate = EXCLUDED.base_rate,
			buy_rate = EXCLUDED.buy_rate,
			sell_rate = EXCLUDED.sell_rate,
			markup_percentage = EXCLUDED.markup_percentage,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			source = EXCLUDED.source,
			is_active = TRUE,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	if rate.ID == uuid.Nil {
		rate.ID = uuid.New()
	}
	if rate.UpdatedAt.IsZero() {
		rate.UpdatedAt = time.Now().UTC()
	}
	rate.IsActive = true

	err := r.db.QueryRowContext(ctx, query,
		rate.ID.String(),
		string(rate.SourceCurrency),
		string(rate.TargetCurrency),
		rate.BaseRate,
		rate.BuyRate,
		rate.SellRate,
		rate.MarkupPercentage,
		rate.MinAmount,
		rate.MaxAmount,
		rate.Source,
		rate.UpdatedAt,
	).Scan(&rate.ID, &rate.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert rate %s: %w", rate.Pair(), err)
	}
	return nil
}

// GetActive возвращает активную котировку направления
func (r *RateRepository) GetActive(ctx context.Context, source, target models.Currency) (*models.Rate, error) {
	query := `SELECT ` + rateColumns + `
		FROM rates
		WHERE source_currency = $1 AND target_currency = $2 AND is_active = TRUE`

	rate, err := scanRate(r.db.QueryRowContext(ctx, query, string(source), string(target)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRateNotFound
	}
	if err != nil {
		return nil, err
	}
	return rate, nil
}

// ListActive возвращает активные котировки по фильтру
func (r *RateRepository) ListActive(ctx context.Context, filter RateFilter) ([]*models.Rate, error) {
	conds := []string{"is_active = TRUE"}
	var args []interface{}

	if filter.Source != "" {
		args = append(args, string(filter.Source))
		conds = append(conds, fmt.Sprintf("source_currency = $%d", len(args)))
	}
	if filter.Target != "" {
		args = append(args, string(filter.Target))
		conds = append(conds, fmt.Sprintf("target_currency = $%d", len(args)))
	}

	query := `SELECT ` + rateColumns + `
		FROM rates
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY source_currency, target_currency`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []*models.Rate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// Deactivate снимает котировку пары с котирования
func (r *RateRepository) Deactivate(ctx context.Context, source, target models.Currency) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE rates SET is_active = FALSE, updated_at = $3 WHERE source_currency = $1 AND target_currency = $2`,
		string(source), string(target), time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRateNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRate(row rowScanner) (*models.Rate, error) {
	var (
		rate           models.Rate
		source, target string
	)
	err := row.Scan(
		&rate.ID,
		&source,
		&target,
		&rate.BaseRate,
		&rate.BuyRate,
		&rate.SellRate,
		&rate.MarkupPercentage,
		&rate.MinAmount,
		&rate.MaxAmount,
		&rate.Source,
		&rate.IsActive,
		&rate.CreatedAt,
		&rate.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rate.SourceCurrency = models.Currency(source)
	rate.TargetCurrency = models.Currency(target)
	return &rate, nil
}
