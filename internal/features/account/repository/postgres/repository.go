// Package postgres provides the PostgreSQL-backed account store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
)

type postgresRepository struct {
	db *sql.DB
}

// New wraps an open PostgreSQL handle as an account store. The schema is
// expected to be provisioned by deployment migrations.
func New(db *sql.DB) repository.AccountStore {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Exists(ctx context.Context, externalID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE external_id = $1`, externalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", mapError(err))
	}
	return count > 0, nil
}

func (r *postgresRepository) AccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error) {
	query := `
		SELECT account_id, external_id, handle, display_name, tribe_id, role, wallet_token, locale, bio, avatar_path
		FROM accounts
		WHERE external_id = $1
	`

	var account models.Account
	var handle, bio, avatarPath sql.NullString
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&account.ID, &account.ExternalID, &handle, &account.DisplayName,
		&account.TribeID, &account.Role, &account.WalletToken, &account.Locale,
		&bio, &avatarPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", mapError(err))
	}

	account.Handle = handle.String
	account.Bio = bio.String
	account.AvatarPath = avatarPath.String
	return &account, nil
}

func (r *postgresRepository) CreateAccount(ctx context.Context, account *models.Account, wallet *models.Wallet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (wallet_token, balance) VALUES ($1, $2)`,
		wallet.Token, wallet.Balance); err != nil {
		return fmt.Errorf("failed to create wallet: %w", mapError(err))
	}

	var handle sql.NullString
	if account.Handle != "" {
		handle = sql.NullString{String: account.Handle, Valid: true}
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (external_id, handle, display_name, tribe_id, role, wallet_token, locale, bio, avatar_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING account_id`,
		account.ExternalID, handle, account.DisplayName, account.TribeID,
		string(account.Role), wallet.Token, account.Locale,
		nullable(account.Bio), nullable(account.AvatarPath)).Scan(&account.ID)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account creation: %w", mapError(err))
	}

	account.WalletToken = wallet.Token
	return nil
}

func (r *postgresRepository) UpdateHandle(ctx context.Context, externalID int64, handle string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET handle = $2 WHERE external_id = $1`, externalID, handle)
	if err != nil {
		return fmt.Errorf("failed to update handle: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrAccountNotFound
	}
	return nil
}

func (r *postgresRepository) TribeByID(ctx context.Context, id int64) (*models.Tribe, error) {
	var tribe models.Tribe
	err := r.db.QueryRowContext(ctx,
		`SELECT tribe_id, tribe_name, wallet_token FROM tribes WHERE tribe_id = $1`, id).
		Scan(&tribe.ID, &tribe.Name, &tribe.WalletToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTribeNotFound
		}
		return nil, fmt.Errorf("failed to get tribe: %w", mapError(err))
	}
	return &tribe, nil
}

func (r *postgresRepository) TribeExists(ctx context.Context, name string, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tribes WHERE tribe_name = $1 OR tribe_id = $2`, name, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tribe existence: %w", mapError(err))
	}
	return count > 0, nil
}

func (r *postgresRepository) CreateTribe(ctx context.Context, tribe *models.Tribe, wallet *models.Wallet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (wallet_token, balance) VALUES ($1, $2)`,
		wallet.Token, wallet.Balance); err != nil {
		return fmt.Errorf("failed to create tribe wallet: %w", mapError(err))
	}

	if tribe.ID > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tribes (tribe_id, tribe_name, wallet_token) VALUES ($1, $2, $3)`,
			tribe.ID, tribe.Name, wallet.Token)
	} else {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO tribes (tribe_name, wallet_token) VALUES ($1, $2) RETURNING tribe_id`,
			tribe.Name, wallet.Token).Scan(&tribe.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create tribe: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tribe creation: %w", mapError(err))
	}

	tribe.WalletToken = wallet.Token
	return nil
}

func (r *postgresRepository) ListTribes(ctx context.Context) ([]*models.Tribe, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tribe_id, tribe_name, wallet_token FROM tribes ORDER BY tribe_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tribes: %w", mapError(err))
	}
	defer rows.Close()

	var tribes []*models.Tribe
	for rows.Next() {
		var tribe models.Tribe
		if err := rows.Scan(&tribe.ID, &tribe.Name, &tribe.WalletToken); err != nil {
			return nil, fmt.Errorf("failed to scan tribe: %w", err)
		}
		tribes = append(tribes, &tribe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tribes: %w", mapError(err))
	}
	return tribes, nil
}

func (r *postgresRepository) AccountCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", mapError(err))
	}
	return count, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", repository.ErrStorageUnavailable)
	}
	return nil
}

func (r *postgresRepository) Close() error {
	return r.db.Close()
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// mapError translates lib/pq errors into the repository taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return repository.ErrDuplicateIdentity
		case "23503": // foreign_key_violation
			return repository.ErrReferentialIntegrity
		}
		if strings.HasPrefix(string(pqErr.Code), "08") { // connection exceptions
			return repository.ErrStorageUnavailable
		}
	}
	return err
}

var _ repository.AccountStore = (*postgresRepository)(nil)
