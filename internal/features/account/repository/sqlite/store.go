// Package sqlite provides the SQLite-backed account store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
)

type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite account store at path and bootstraps the schema.
func Open(path string) (repository.AccountStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The schema bootstrap runs on a single connection; keeping the pool at
	// one also makes an in-memory database usable from multiple goroutines.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", repository.ErrStorageUnavailable)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	if _, err := db.Exec(seed); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed reference tables: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Exists(ctx context.Context, externalID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE external_id = ?`, externalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", mapError(err))
	}
	return count > 0, nil
}

func (s *sqliteStore) AccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error) {
	query := `
		SELECT account_id, external_id, handle, display_name, tribe_id, role, wallet_token, locale, bio, avatar_path
		FROM accounts
		WHERE external_id = ?
	`

	var account models.Account
	var handle, bio, avatarPath sql.NullString
	err := s.db.QueryRowContext(ctx, query, externalID).Scan(
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

// CreateAccount inserts the wallet and the account referencing it in one
// transaction: either both rows become visible or neither does.
func (s *sqliteStore) CreateAccount(ctx context.Context, account *models.Account, wallet *models.Wallet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (wallet_token, balance) VALUES (?, ?)`,
		wallet.Token, wallet.Balance); err != nil {
		return fmt.Errorf("failed to create wallet: %w", mapError(err))
	}

	var handle sql.NullString
	if account.Handle != "" {
		handle = sql.NullString{String: account.Handle, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (external_id, handle, display_name, tribe_id, role, wallet_token, locale, bio, avatar_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ExternalID, handle, account.DisplayName, account.TribeID,
		string(account.Role), wallet.Token, account.Locale,
		nullable(account.Bio), nullable(account.AvatarPath))
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapError(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account creation: %w", mapError(err))
	}

	account.ID = id
	account.WalletToken = wallet.Token
	return nil
}

func (s *sqliteStore) UpdateHandle(ctx context.Context, externalID int64, handle string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET handle = ? WHERE external_id = ?`, handle, externalID)
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

func (s *sqliteStore) TribeByID(ctx context.Context, id int64) (*models.Tribe, error) {
	var tribe models.Tribe
	err := s.db.QueryRowContext(ctx,
		`SELECT tribe_id, tribe_name, wallet_token FROM tribes WHERE tribe_id = ?`, id).
		Scan(&tribe.ID, &tribe.Name, &tribe.WalletToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTribeNotFound
		}
		return nil, fmt.Errorf("failed to get tribe: %w", mapError(err))
	}
	return &tribe, nil
}

func (s *sqliteStore) TribeExists(ctx context.Context, name string, id int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tribes WHERE tribe_name = ? OR tribe_id = ?`, name, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tribe existence: %w", mapError(err))
	}
	return count > 0, nil
}

func (s *sqliteStore) CreateTribe(ctx context.Context, tribe *models.Tribe, wallet *models.Wallet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (wallet_token, balance) VALUES (?, ?)`,
		wallet.Token, wallet.Balance); err != nil {
		return fmt.Errorf("failed to create tribe wallet: %w", mapError(err))
	}

	if tribe.ID > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tribes (tribe_id, tribe_name, wallet_token) VALUES (?, ?, ?)`,
			tribe.ID, tribe.Name, wallet.Token)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`INSERT INTO tribes (tribe_name, wallet_token) VALUES (?, ?)`,
			tribe.Name, wallet.Token)
		if err == nil {
			tribe.ID, err = res.LastInsertId()
		}
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

func (s *sqliteStore) ListTribes(ctx context.Context) ([]*models.Tribe, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *sqliteStore) AccountCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", mapError(err))
	}
	return count, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", repository.ErrStorageUnavailable)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// mapError translates driver errors into the repository taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return repository.ErrDuplicateIdentity
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return repository.ErrReferentialIntegrity
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_CANTOPEN, sqlite3lib.SQLITE_IOERR:
			return repository.ErrStorageUnavailable
		}
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "unique constraint failed") {
		return repository.ErrDuplicateIdentity
	}
	if strings.Contains(message, "foreign key constraint failed") {
		return repository.ErrReferentialIntegrity
	}
	return err
}

var _ repository.AccountStore = (*sqliteStore)(nil)
