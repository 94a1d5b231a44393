package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
)

func openTestStore(t *testing.T) repository.AccountStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTribe(t *testing.T, store repository.AccountStore, id int64, name string) {
	t.Helper()
	err := store.CreateTribe(context.Background(),
		&models.Tribe{ID: id, Name: name},
		&models.Wallet{Token: "tribe-wallet-" + name})
	require.NoError(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestCreateAccountRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedTribe(t, store, 1, "Aqua")

	account := &models.Account{
		ExternalID:  111,
		Handle:      "alice",
		DisplayName: "Smith Alice",
		TribeID:     1,
		Role:        models.RoleUser,
		Locale:      "en",
	}
	err := store.CreateAccount(ctx, account, &models.Wallet{Token: "wallet-111"})
	require.NoError(t, err)
	assert.NotZero(t, account.ID)
	assert.Equal(t, "wallet-111", account.WalletToken)

	exists, err := store.Exists(ctx, 111)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "Smith Alice", got.DisplayName)
	assert.Equal(t, "alice", got.Handle)
	assert.Equal(t, models.RoleUser, got.Role)
	assert.Equal(t, int64(1), got.TribeID)
	assert.Equal(t, "wallet-111", got.WalletToken)
	assert.Equal(t, "en", got.Locale)
}

func TestAccountByExternalIDNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.AccountByExternalID(context.Background(), 999)
	require.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestCreateAccountDuplicateExternalID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedTribe(t, store, 1, "Aqua")

	first := &models.Account{ExternalID: 111, DisplayName: "Smith Alice", TribeID: 1, Role: models.RoleUser, Locale: "en"}
	require.NoError(t, store.CreateAccount(ctx, first, &models.Wallet{Token: "wallet-a"}))

	second := &models.Account{ExternalID: 111, DisplayName: "Lee Bob", TribeID: 1, Role: models.RoleUser, Locale: "en"}
	err := store.CreateAccount(ctx, second, &models.Wallet{Token: "wallet-b"})
	require.ErrorIs(t, err, repository.ErrDuplicateIdentity)

	count, err := store.AccountCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateAccountRollsBackWalletOnFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedTribe(t, store, 1, "Aqua")

	first := &models.Account{ExternalID: 111, DisplayName: "Smith Alice", TribeID: 1, Role: models.RoleUser, Locale: "en"}
	require.NoError(t, store.CreateAccount(ctx, first, &models.Wallet{Token: "wallet-a"}))

	// The account insert fails on the duplicate external id after the
	// wallet insert inside the transaction already succeeded.
	second := &models.Account{ExternalID: 111, DisplayName: "Lee Bob", TribeID: 1, Role: models.RoleUser, Locale: "en"}
	err := store.CreateAccount(ctx, second, &models.Wallet{Token: "wallet-orphan"})
	require.ErrorIs(t, err, repository.ErrDuplicateIdentity)

	// The rolled-back wallet token must be reusable.
	third := &models.Account{ExternalID: 222, DisplayName: "Lee Bob", TribeID: 1, Role: models.RoleUser, Locale: "en"}
	require.NoError(t, store.CreateAccount(ctx, third, &models.Wallet{Token: "wallet-orphan"}))
}

func TestCreateAccountUnknownTribe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	account := &models.Account{ExternalID: 111, DisplayName: "Smith Alice", TribeID: 42, Role: models.RoleUser, Locale: "en"}
	err := store.CreateAccount(ctx, account, &models.Wallet{Token: "wallet-111"})
	require.ErrorIs(t, err, repository.ErrReferentialIntegrity)
}

func TestUpdateHandle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedTribe(t, store, 1, "Aqua")

	account := &models.Account{ExternalID: 111, Handle: "old", DisplayName: "Smith Alice", TribeID: 1, Role: models.RoleUser, Locale: "en"}
	require.NoError(t, store.CreateAccount(ctx, account, &models.Wallet{Token: "wallet-111"}))

	require.NoError(t, store.UpdateHandle(ctx, 111, "new"))
	got, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Handle)

	err = store.UpdateHandle(ctx, 999, "nobody")
	require.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestTribeExistsAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedTribe(t, store, 1, "Aqua")
	seedTribe(t, store, 2, "Ignis")

	exists, err := store.TribeExists(ctx, "Aqua", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.TribeExists(ctx, "Nope", 2)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.TribeExists(ctx, "Nope", 0)
	require.NoError(t, err)
	assert.False(t, exists)

	tribes, err := store.ListTribes(ctx)
	require.NoError(t, err)
	require.Len(t, tribes, 2)
	assert.Equal(t, "Aqua", tribes[0].Name)
	assert.Equal(t, "Ignis", tribes[1].Name)

	tribe, err := store.TribeByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Ignis", tribe.Name)

	_, err = store.TribeByID(ctx, 9)
	require.ErrorIs(t, err, repository.ErrTribeNotFound)
}

func TestConcurrentCreateSameExternalID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedTribe(t, store, 1, "Aqua")

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account := &models.Account{ExternalID: 111, DisplayName: "Smith Alice", TribeID: 1, Role: models.RoleUser, Locale: "en"}
			errs[i] = store.CreateAccount(ctx, account, &models.Wallet{Token: walletToken(i)})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, repository.ErrDuplicateIdentity)
		}
	}
	assert.Equal(t, 1, succeeded)

	count, err := store.AccountCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func walletToken(i int) string {
	return string(rune('a'+i)) + "-wallet"
}
