package repository

import (
	"context"
	"errors"

	"tribebot-backend/internal/features/account/models"
)

var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTribeNotFound is returned when no tribe matches the lookup.
	ErrTribeNotFound = errors.New("tribe not found")
	// ErrDuplicateIdentity is returned when a unique constraint on the
	// external id, handle or wallet token rejects an insert. Under
	// concurrent registration of the same identity this is the expected
	// loser signal, not a crash.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrReferentialIntegrity is returned when an insert references a
	// missing tribe or wallet.
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	// ErrStorageUnavailable is returned on connectivity or engine failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// AccountStore is the persistence contract for accounts, tribes and wallets.
// It is the only writer of the durable tables.
type AccountStore interface {
	// Exists reports whether an account with the external id is present.
	Exists(ctx context.Context, externalID int64) (bool, error)
	// AccountByExternalID returns the account for the external id.
	AccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error)
	// CreateAccount inserts the wallet row and the account row referencing
	// it as a single transaction. A duplicate external id surfaces as
	// ErrDuplicateIdentity; the unique constraint is the sole arbiter.
	CreateAccount(ctx context.Context, account *models.Account, wallet *models.Wallet) error
	// UpdateHandle replaces the stored external handle.
	UpdateHandle(ctx context.Context, externalID int64, handle string) error

	// TribeByID returns the tribe with the given id.
	TribeByID(ctx context.Context, id int64) (*models.Tribe, error)
	// TribeExists reports whether a tribe with the name or id is present.
	TribeExists(ctx context.Context, name string, id int64) (bool, error)
	// CreateTribe inserts the tribe and its wallet as a single transaction.
	CreateTribe(ctx context.Context, tribe *models.Tribe, wallet *models.Wallet) error
	// ListTribes returns all tribes ordered by id.
	ListTribes(ctx context.Context) ([]*models.Tribe, error)

	// AccountCount returns the number of accounts.
	AccountCount(ctx context.Context) (int, error)
	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying handle.
	Close() error
}
