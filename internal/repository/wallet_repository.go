package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"liraexchange/internal/models"
)

// WalletRepository - работа с таблицами wallets и wallet_transactions
type WalletRepository struct {
	db *sql.DB
}

// NewWalletRepository создает новый экземпляр репозитория
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// encrypted_secret в выборку не входит: его читает только GetSecret
const walletColumns = `id, owner_user, wallet_type, address, public_key, balance, credited_amount,
	last_balance_update, is_active, is_hot, last_used, created_at, updated_at`

// Create сохраняет новый кошелёк вместе с зашифрованным секретом
func (r *WalletRepository) Create(ctx context.Context, w *models.Wallet) error {
	query := `
		INSERT INTO wallets (id, owner_user, wallet_type, address, encrypted_secret, public_key,
			balance, credited_amount, is_active, is_hot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		w.ID.String(),
		nullableUUID(w.OwnerUser),
		string(w.WalletType),
		w.Address,
		w.EncryptedSecret,
		w.PublicKey,
		w.Balance,
		w.CreditedAmount,
		w.IsActive,
		w.IsHot,
		now,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "wallets_owner_type_active_key"):
			return ErrWalletExists
		case isUniqueViolation(err, ""):
			return ErrWalletAddressExists
		}
		return err
	}
	return nil
}

// GetByID возвращает кошелёк без секрета
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

// GetActiveCustodial возвращает активный кастодиальный кошелёк пользователя данного типа.
// Внешние адреса (is_hot = FALSE) сюда не попадают: на них нельзя принимать депозиты.
func (r *WalletRepository) GetActiveCustodial(ctx context.Context, owner uuid.UUID, walletType models.WalletType) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + `
		FROM wallets
		WHERE owner_user = $1 AND wallet_type = $2 AND is_active = TRUE AND is_hot = TRUE
		ORDER BY created_at DESC
		LIMIT 1`

	w, err := scanWallet(r.db.QueryRowContext(ctx, query, owner.String(), string(walletType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

// ListByOwner возвращает кошельки пользователя (nil - кошельки оператора)
func (r *WalletRepository) ListByOwner(ctx context.Context, owner *uuid.UUID) ([]*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_user = $1 ORDER BY created_at DESC`
	args := []interface{}{nullableUUID(owner)}
	if owner == nil {
		query = `SELECT ` + walletColumns + ` FROM wallets WHERE owner_user IS NULL ORDER BY created_at DESC`
		args = nil
	}
	return r.list(ctx, query, args...)
}

// ListHot возвращает активные горячие кошельки оператора, самые богатые первыми
func (r *WalletRepository) ListHot(ctx context.Context, walletType models.WalletType) ([]*models.Wallet, error) {
	query := `SELECT ` + walletColumns + `
		FROM wallets
		WHERE wallet_type = $1 AND is_active = TRUE AND is_hot = TRUE AND owner_user IS NULL
		ORDER BY balance DESC`
	return r.list(ctx, query, string(walletType))
}

func (r *WalletRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// GetSecret возвращает зашифрованный секрет. Используется только при выплате.
func (r *WalletRepository) GetSecret(ctx context.Context, id uuid.UUID) (string, error) {
	var blob string
	err := r.db.QueryRowContext(ctx, `SELECT encrypted_secret FROM wallets WHERE id = $1`, id.String()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrWalletNotFound
	}
	return blob, err
}

// UpdateBalance записывает опрошенный из сети баланс
func (r *WalletRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	return r.execOne(ctx,
		`UPDATE wallets SET balance = $2, last_balance_update = $3, updated_at = $3 WHERE id = $1`,
		id.String(), balance, at)
}

// DecrementBalance уменьшает кэш баланса после выплаты и возвращает новое значение
func (r *WalletRepository) DecrementBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`UPDATE wallets SET balance = balance - $2, last_used = $3, updated_at = $3 WHERE id = $1 RETURNING balance`,
		id.String(), amount, at).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrWalletNotFound
	}
	return balance, err
}

// CreditDeposit засчитывает депозит обмену exchangeID одним запросом: связь
// wallet_transactions и рост credited_amount происходят вместе. Повторный зачёт
// того же обмена ничего не меняет и возвращает false.
func (r *WalletRepository) CreditDeposit(ctx context.Context, walletID, exchangeID uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error) {
	query := `
		WITH link AS (
			INSERT INTO wallet_transactions (wallet_id, exchange_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING wallet_id
		)
		UPDATE wallets SET credited_amount = credited_amount + $3, last_used = $4, updated_at = $4
		WHERE id IN (SELECT wallet_id FROM link)`

	res, err := r.db.ExecContext(ctx, query, walletID.String(), exchangeID.String(), amount, at)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, ErrWalletNotFound
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Deactivate выводит кошелёк из оборота, запись не удаляется
func (r *WalletRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx,
		`UPDATE wallets SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id.String(), time.Now().UTC())
}

// LinkExchange связывает кошелёк с обменом, повторная связь игнорируется
func (r *WalletRepository) LinkExchange(ctx context.Context, walletID, exchangeID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallet_transactions (wallet_id, exchange_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		walletID.String(), exchangeID.String())
	return err
}

// ListExchangeIDs возвращает обмены, затронувшие кошелёк
func (r *WalletRepository) ListExchangeIDs(ctx context.Context, walletID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT exchange_id FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at`,
		walletID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *WalletRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var (
		w           models.Wallet
		owner       uuid.NullUUID
		walletType  string
		lastBalance sql.NullTime
		lastUsed    sql.NullTime
	)
	err := row.Scan(
		&w.ID,
		&owner,
		&walletType,
		&w.Address,
		&w.PublicKey,
		&w.Balance,
		&w.CreditedAmount,
		&lastBalance,
		&w.IsActive,
		&w.IsHot,
		&lastUsed,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.OwnerUser = uuidPtr(owner)
	w.WalletType = models.WalletType(walletType)
	if lastBalance.Valid {
		t := lastBalance.Time
		w.LastBalanceUpdate = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		w.LastUsed = &t
	}
	return &w, nil
}
