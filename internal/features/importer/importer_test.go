package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tribebot-backend/internal/common/apperrors"
	"tribebot-backend/internal/common/i18n"
	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
	"tribebot-backend/internal/features/account/repository/sqlite"
	accountservice "tribebot-backend/internal/features/account/service"
)

var testTribes = map[string]int64{
	"aqua":  1,
	"ignis": 2,
}

func newTestImporter(t *testing.T, superusers []int64) (*Importer, repository.AccountStore) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	locales, err := i18n.Load("en", []string{"en", "ru"})
	require.NoError(t, err)

	svc := accountservice.NewProvisioningService(store, accountservice.NewFixedAssigner(1), locales)
	ctx := context.Background()
	_, err = svc.CreateTribe(ctx, "Aqua", "", 1)
	require.NoError(t, err)
	_, err = svc.CreateTribe(ctx, "Ignis", "", 2)
	require.NoError(t, err)

	return New(svc, testTribes, superusers, locales), store
}

func TestRunSkipsBadRecordsAndCompletes(t *testing.T) {
	imp, store := newTestImporter(t, nil)
	ctx := context.Background()

	input := strings.Join([]string{
		"111|Alice Smith|Aqua",
		"bad-line",
		"222|Bob Lee|Unknown",
	}, "\n")

	report, err := imp.Run(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Lines)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Skipped)

	count, err := store.AccountCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	account, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", account.DisplayName)
	assert.Equal(t, int64(1), account.TribeID)
	assert.Equal(t, models.RoleUser, account.Role)
}

func TestRunSkipsExistingAccount(t *testing.T) {
	imp, store := newTestImporter(t, nil)
	ctx := context.Background()

	_, err := imp.Run(ctx, strings.NewReader("111|Alice Smith|Aqua"))
	require.NoError(t, err)

	report, err := imp.Run(ctx, strings.NewReader("111|Alice Again|Ignis"))
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Equal(t, 1, report.Skipped)

	count, err := store.AccountCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The original record is untouched.
	account, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", account.DisplayName)
}

func TestRunTribeNameCaseInsensitive(t *testing.T) {
	imp, store := newTestImporter(t, nil)
	ctx := context.Background()

	report, err := imp.Run(ctx, strings.NewReader("111|Alice Smith|IGNIS"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	account, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, int64(2), account.TribeID)
}

func TestRunSuperuserGetsAdminRole(t *testing.T) {
	imp, store := newTestImporter(t, []int64{111})
	ctx := context.Background()

	input := "111|Alice Smith|Aqua\n222|Bob Lee|Aqua"
	_, err := imp.Run(ctx, strings.NewReader(input))
	require.NoError(t, err)

	admin, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	user, err := store.AccountByExternalID(ctx, 222)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
}

func TestRunLocalePassThrough(t *testing.T) {
	imp, store := newTestImporter(t, nil)
	ctx := context.Background()

	input := "111|Alice Smith|Aqua|ru\n222|Bob Lee|Aqua|fr"
	_, err := imp.Run(ctx, strings.NewReader(input))
	require.NoError(t, err)

	ru, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "ru", ru.Locale)

	// Unsupported locale column defers to the default.
	fallback, err := store.AccountByExternalID(ctx, 222)
	require.NoError(t, err)
	assert.Equal(t, "en", fallback.Locale)
}

func TestRunIgnoresBlankLinesAndPadding(t *testing.T) {
	imp, store := newTestImporter(t, nil)
	ctx := context.Background()

	input := "\n  111 | Alice Smith | aqua \n\n"
	report, err := imp.Run(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Lines)
	assert.Equal(t, 1, report.Created)

	account, err := store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", account.DisplayName)
}

func TestRunFileMissingAborts(t *testing.T) {
	imp, _ := newTestImporter(t, nil)

	_, err := imp.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFileAccess, appErr.Code)
}
