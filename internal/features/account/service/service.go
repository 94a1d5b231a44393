// Package service implements the provisioning service, the only writer of
// the account store.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tribebot-backend/internal/common/apperrors"
	"tribebot-backend/internal/common/i18n"
	"tribebot-backend/internal/common/logger"
	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
)

// CreateAccountParams are the inputs for account provisioning. TribeID and
// Locale are optional: an absent tribe is resolved by the configured
// assignment policy and an absent or unsupported locale falls back to the
// process-wide default.
type CreateAccountParams struct {
	ExternalID  int64
	Handle      string
	DisplayName string
	Role        models.Role
	TribeID     int64
	Locale      string
}

type ProvisioningService interface {
	Exists(ctx context.Context, externalID int64) (bool, error)
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	CreateTribe(ctx context.Context, name string, walletToken string, tribeID int64) (bool, error)
	AccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error)
	UpdateHandle(ctx context.Context, externalID int64, handle string) error
}

type provisioningService struct {
	store    repository.AccountStore
	assigner TribeAssigner
	locales  *i18n.Bundle
}

func NewProvisioningService(store repository.AccountStore, assigner TribeAssigner, locales *i18n.Bundle) ProvisioningService {
	return &provisioningService{
		store:    store,
		assigner: assigner,
		locales:  locales,
	}
}

func (s *provisioningService) Exists(ctx context.Context, externalID int64) (bool, error) {
	exists, err := s.store.Exists(ctx, externalID)
	if err != nil {
		return false, s.surface(err, "exists", externalID)
	}
	return exists, nil
}

// CreateAccount inserts the wallet and account atomically. The store's
// unique constraint on the external id is the sole arbiter of duplicates:
// a concurrent loser gets ErrDuplicateIdentity, never a second row.
func (s *provisioningService) CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error) {
	if params.DisplayName == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "display name is required").
			WithExternalID(params.ExternalID).WithOperation("create_account")
	}
	if !params.Role.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("unknown role %q", params.Role)).
			WithExternalID(params.ExternalID).WithOperation("create_account")
	}

	tribeID := params.TribeID
	if tribeID == 0 {
		assigned, err := s.assigner.Assign(ctx)
		if err != nil {
			return nil, s.surface(err, "assign_tribe", params.ExternalID)
		}
		tribeID = assigned
	}

	locale := params.Locale
	if locale == "" || !s.locales.Supported(locale) {
		locale = s.locales.DefaultLocale()
	}

	account := &models.Account{
		ExternalID:  params.ExternalID,
		Handle:      params.Handle,
		DisplayName: params.DisplayName,
		TribeID:     tribeID,
		Role:        params.Role,
		Locale:      locale,
	}
	wallet := &models.Wallet{Token: newWalletToken()}

	if err := s.store.CreateAccount(ctx, account, wallet); err != nil {
		return nil, s.surface(err, "create_account", params.ExternalID)
	}

	logger.Info().
		Int64("external_id", account.ExternalID).
		Int64("tribe_id", account.TribeID).
		Str("role", string(account.Role)).
		Msg("Account provisioned")
	return account, nil
}

// CreateTribe is idempotent by name or id: when either already exists the
// call is a logged no-op and reports created=false.
func (s *provisioningService) CreateTribe(ctx context.Context, name string, walletToken string, tribeID int64) (bool, error) {
	if name == "" {
		return false, apperrors.New(apperrors.ErrCodeValidation, "tribe name is required").
			WithOperation("create_tribe")
	}

	exists, err := s.store.TribeExists(ctx, name, tribeID)
	if err != nil {
		return false, s.surface(err, "create_tribe", 0)
	}
	if exists {
		logger.Warn().
			Str("tribe_name", name).
			Int64("tribe_id", tribeID).
			Msg("Tribe already exists, skipping creation")
		return false, nil
	}

	if walletToken == "" {
		walletToken = newWalletToken()
	}
	tribe := &models.Tribe{ID: tribeID, Name: name}
	wallet := &models.Wallet{Token: walletToken}

	if err := s.store.CreateTribe(ctx, tribe, wallet); err != nil {
		// A concurrent creator may win between the existence check and the
		// insert; the constraint violation keeps this idempotent.
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			logger.Warn().Str("tribe_name", name).Msg("Tribe created concurrently, skipping")
			return false, nil
		}
		return false, s.surface(err, "create_tribe", 0)
	}

	logger.Info().
		Str("tribe_name", tribe.Name).
		Int64("tribe_id", tribe.ID).
		Msg("Tribe created")
	return true, nil
}

func (s *provisioningService) AccountByExternalID(ctx context.Context, externalID int64) (*models.Account, error) {
	account, err := s.store.AccountByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
		return nil, s.surface(err, "get_account", externalID)
	}
	return account, nil
}

func (s *provisioningService) UpdateHandle(ctx context.Context, externalID int64, handle string) error {
	if err := s.store.UpdateHandle(ctx, externalID, handle); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}
		return s.surface(err, "update_handle", externalID)
	}
	return nil
}

// surface wraps a storage error with operation context while keeping the
// repository sentinel reachable through errors.Is.
func (s *provisioningService) surface(err error, op string, externalID int64) error {
	appErr := apperrors.Wrapf(err, codeFor(err), "%s failed", op).WithOperation(op)
	if externalID != 0 {
		appErr = appErr.WithExternalID(externalID)
	}
	return appErr
}

func codeFor(err error) apperrors.ErrorCode {
	switch {
	case errors.Is(err, repository.ErrDuplicateIdentity):
		return apperrors.ErrCodeDuplicateIdentity
	case errors.Is(err, repository.ErrReferentialIntegrity):
		return apperrors.ErrCodeReferentialIntegrity
	case errors.Is(err, repository.ErrStorageUnavailable):
		return apperrors.ErrCodeStorageUnavailable
	default:
		return apperrors.ErrCodeInternal
	}
}

// newWalletToken generates a random wallet token. Uniqueness is enforced by
// the wallets primary key; collisions of random UUIDs are not retried.
func newWalletToken() string {
	return uuid.NewString()
}
