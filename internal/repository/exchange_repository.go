package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"liraexchange/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ExchangeRepository - работа с таблицей exchanges
type ExchangeRepository struct {
	db *sql.DB
}

// NewExchangeRepository создает новый экземпляр репозитория
func NewExchangeRepository(db *sql.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

const exchangeColumns = `id, user_id, from_currency, to_currency, from_amount, to_amount, exchange_rate,
	fee_percentage, fee_amount, source_tx_status, source_tx_address, source_tx_id,
	dest_tx_status, dest_tx_address, dest_tx_id, dest_bank_reference, crypto_wallet_id,
	bank_account, status, admin_notes, created_at, updated_at, completed_at`

// Create сохраняет новую заявку
func (r *ExchangeRepository) Create(ctx context.Context, ex *models.Exchange) error {
	query := `
		INSERT INTO exchanges (id, user_id, from_currency, to_currency, from_amount, to_amount, exchange_rate,
			fee_percentage, fee_amount, source_tx_status, source_tx_address, source_tx_id,
			dest_tx_status, dest_tx_address, dest_tx_id, dest_bank_reference, crypto_wallet_id,
			bank_account, status, admin_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)`

	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	ex.UpdatedAt = ex.CreatedAt

	bank, err := marshalBankAccount(ex.BankAccount)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		ex.ID.String(),
		ex.UserID.String(),
		string(ex.FromCurrency),
		string(ex.ToCurrency),
		ex.FromAmount,
		ex.ToAmount,
		ex.ExchangeRate,
		ex.FeePercentage,
		ex.FeeAmount,
		string(ex.SourceTransaction.Status),
		ex.SourceTransaction.Address,
		ex.SourceTransaction.TxID,
		string(ex.DestinationTransaction.Status),
		ex.DestinationTransaction.Address,
		ex.DestinationTransaction.TxID,
		ex.DestinationTransaction.BankReference,
		nullableUUID(ex.CryptoWalletID),
		bank,
		string(ex.Status),
		ex.AdminNotes,
		ex.CreatedAt,
	)
	return err
}

// GetByID возвращает заявку по ID
func (r *ExchangeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE id = $1`

	ex, err := scanExchange(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeNotFound
	}
	return ex, err
}

// List возвращает заявки по фильтру, новые первыми
func (r *ExchangeRepository) List(ctx context.Context, filter models.ExchangeFilter) ([]*models.Exchange, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != nil {
		add("user_id = $%d", filter.UserID.String())
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.CreatedFrom != nil {
		add("created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("created_at < $%d", *filter.CreatedTo)
	}

	query := `SELECT ` + exchangeColumns + ` FROM exchanges`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return r.list(ctx, query, args...)
}

// ListPendingDeposits - заявки, ждущие поступления средств в валюте currency
func (r *ExchangeRepository) ListPendingDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + `
		FROM exchanges
		WHERE status = $1 AND source_tx_status = $2 AND from_currency = $3
		ORDER BY created_at
		LIMIT $4`
	return r.list(ctx, query, string(models.StatusInitiated), string(models.TxPending), string(currency), limit)
}

// ListAwaitingPayout - оплаченные заявки, ждущие выплаты в валюте currency
func (r *ExchangeRepository) ListAwaitingPayout(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + `
		FROM exchanges
		WHERE status = $1 AND dest_tx_status = $2 AND to_currency = $3
		ORDER BY created_at
		LIMIT $4`
	return r.list(ctx, query, string(models.StatusProcessing), string(models.TxPending), string(currency), limit)
}

// ListUncreditedDeposits - заявки с подтверждённым депозитом в валюте currency,
// которые ещё не засчитаны своему кошельку. Сюда попадают подтверждения
// администратора и зачёты, прерванные сбоем.
func (r *ExchangeRepository) ListUncreditedDeposits(ctx context.Context, currency models.Currency, limit int) ([]*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + `
		FROM exchanges e
		WHERE e.source_tx_status = $1 AND e.from_currency = $2 AND e.crypto_wallet_id IS NOT NULL
			AND NOT EXISTS (
				SELECT 1 FROM wallet_transactions wt
				WHERE wt.wallet_id = e.crypto_wallet_id AND wt.exchange_id = e.id
			)
		ORDER BY e.created_at
		LIMIT $3`
	return r.list(ctx, query, string(models.TxCompleted), string(currency), limit)
}

// UpdateState сохраняет состояние заявки, если её статус всё ещё expected.
// Ноль затронутых строк означает, что заявку успел изменить другой писатель.
func (r *ExchangeRepository) UpdateState(ctx context.Context, ex *models.Exchange, expected models.ExchangeStatus) error {
	query := `
		UPDATE exchanges SET
			status = $3,
			source_tx_status = $4, source_tx_address = $5, source_tx_id = $6,
			dest_tx_status = $7, dest_tx_address = $8, dest_tx_id = $9, dest_bank_reference = $10,
			admin_notes = $11, updated_at = $12, completed_at = $13
		WHERE id = $1 AND status = $2`

	var completedAt interface{}
	if ex.CompletedAt != nil {
		completedAt = *ex.CompletedAt
	}

	res, err := r.db.ExecContext(ctx, query,
		ex.ID.String(),
		string(expected),
		string(ex.Status),
		string(ex.SourceTransaction.Status),
		ex.SourceTransaction.Address,
		ex.SourceTransaction.TxID,
		string(ex.DestinationTransaction.Status),
		ex.DestinationTransaction.Address,
		ex.DestinationTransaction.TxID,
		ex.DestinationTransaction.BankReference,
		ex.AdminNotes,
		ex.UpdatedAt,
		completedAt,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// UpdateNotes меняет только заметки администратора
func (r *ExchangeRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE exchanges SET admin_notes = $2, updated_at = $3 WHERE id = $1`,
		id.String(), notes, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExchangeNotFound
	}
	return nil
}

func (r *ExchangeRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Exchange, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ex)
	}
	return result, rows.Err()
}

func marshalBankAccount(acc *models.BankAccount) (interface{}, error) {
	if acc == nil {
		return nil, nil
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return nil, fmt.Errorf("marshal bank account: %w", err)
	}
	return string(data), nil
}

func scanExchange(row rowScanner) (*models.Exchange, error) {
	var (
		ex                   models.Exchange
		from, to, status     string
		srcStatus, dstStatus string
		walletID             uuid.NullUUID
		bank                 []byte
		completedAt          sql.NullTime
	)
	err := row.Scan(
		&ex.ID,
		&ex.UserID,
		&from,
		&to,
		&ex.FromAmount,
		&ex.ToAmount,
		&ex.ExchangeRate,
		&ex.FeePercentage,
		&ex.FeeAmount,
		&srcStatus,
		&ex.SourceTransaction.Address,
		&ex.SourceTransaction.TxID,
		&dstStatus,
		&ex.DestinationTransaction.Address,
		&ex.DestinationTransaction.TxID,
		&ex.DestinationTransaction.BankReference,
		&walletID,
		&bank,
		&status,
		&ex.AdminNotes,
		&ex.CreatedAt,
		&ex.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	ex.FromCurrency = models.Currency(from)
	ex.ToCurrency = models.Currency(to)
	ex.Status = models.ExchangeStatus(status)
	ex.SourceTransaction.Status = models.TxStatus(srcStatus)
	ex.DestinationTransaction.Status = models.TxStatus(dstStatus)
	ex.CryptoWalletID = uuidPtr(walletID)

	if len(bank) > 0 {
		var acc models.BankAccount
		if err := json.Unmarshal(bank, &acc); err != nil {
			return nil, fmt.Errorf("decode bank account of exchange %s: %w", ex.ID, err)
		}
		ex.BankAccount = &acc
	}
	if completedAt.Valid {
		t := completedAt.Time
		ex.CompletedAt = &t
	}
	return &ex, nil
}
