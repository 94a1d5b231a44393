package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tribebot-backend/internal/common/i18n"
	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
	"tribebot-backend/internal/features/account/repository/sqlite"
	accountservice "tribebot-backend/internal/features/account/service"
	"tribebot-backend/internal/features/registration/session"
)

type fakeSender struct {
	messages []string
}

func (f *fakeSender) Send(ctx context.Context, externalID int64, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

type testRig struct {
	engine   *Engine
	sender   *fakeSender
	sessions session.Store
	store    repository.AccountStore
	locales  *i18n.Bundle
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	locales, err := i18n.Load("en", []string{"en", "ru"})
	require.NoError(t, err)

	provisioner := accountservice.NewProvisioningService(store, accountservice.NewFixedAssigner(1), locales)
	_, err = provisioner.CreateTribe(context.Background(), "Aqua", "", 1)
	require.NoError(t, err)

	sender := &fakeSender{}
	sessions := session.NewMemoryStore()
	engine := NewEngine(sessions, provisioner, locales, sender, Secrets{
		UserKey:  "user-secret",
		AdminKey: "admin-secret",
	})
	return &testRig{engine: engine, sender: sender, sessions: sessions, store: store, locales: locales}
}

func (r *testRig) say(t *testing.T, externalID int64, text string) {
	t.Helper()
	require.NoError(t, r.engine.HandleEvent(context.Background(), InboundEvent{
		ExternalID: externalID,
		Text:       text,
	}))
}

func (r *testRig) sessionState(t *testing.T, externalID int64) session.State {
	t.Helper()
	sess, err := r.sessions.Get(context.Background(), externalID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess.State
}

func (r *testRig) msg(t *testing.T, key string) string {
	t.Helper()
	text, err := r.locales.Message(key, "en")
	require.NoError(t, err)
	return text
}

func TestDialogueHappyPathUser(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.say(t, 111, "hello")
	assert.Equal(t, rig.msg(t, "enter_secret_phrase"), rig.sender.last(t))
	assert.Equal(t, session.StateAwaitingSecret, rig.sessionState(t, 111))

	rig.say(t, 111, "user-secret")
	assert.Equal(t, rig.msg(t, "enter_surname"), rig.sender.last(t))
	assert.Equal(t, session.StateAwaitingSurname, rig.sessionState(t, 111))

	rig.say(t, 111, "Smith")
	assert.Equal(t, rig.msg(t, "enter_name"), rig.sender.last(t))
	assert.Equal(t, session.StateAwaitingGivenName, rig.sessionState(t, 111))

	rig.say(t, 111, "Alice")
	assert.Equal(t, rig.msg(t, "registration_successful"), rig.sender.last(t))

	// Terminal state clears the session.
	sess, err := rig.sessions.Get(ctx, 111)
	require.NoError(t, err)
	assert.Nil(t, sess)

	account, err := rig.store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "Smith Alice", account.DisplayName)
	assert.Equal(t, models.RoleUser, account.Role)
	assert.NotEmpty(t, account.WalletToken)
}

func TestDialogueAdminSecret(t *testing.T) {
	rig := newTestRig(t)

	rig.say(t, 111, "hello")
	rig.say(t, 111, "admin-secret")
	rig.say(t, 111, "Smith")
	rig.say(t, 111, "Alice")

	account, err := rig.store.AccountByExternalID(context.Background(), 111)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, account.Role)
}

func TestDialogueInvalidSecretKeepsState(t *testing.T) {
	rig := newTestRig(t)

	rig.say(t, 111, "hello")
	rig.say(t, 111, "wrong")
	assert.Equal(t, rig.msg(t, "invalid_secret_phrase"), rig.sender.last(t))
	assert.Equal(t, session.StateAwaitingSecret, rig.sessionState(t, 111))

	exists, err := rig.store.Exists(context.Background(), 111)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDialogueNonAlphabeticInputKeepsState(t *testing.T) {
	rig := newTestRig(t)

	rig.say(t, 111, "hello")
	rig.say(t, 111, "user-secret")

	for _, surname := range []string{"Sm1th", "", "Smith Jones", "x!"} {
		rig.say(t, 111, surname)
		assert.Equal(t, rig.msg(t, "invalid_surname"), rig.sender.last(t))
		assert.Equal(t, session.StateAwaitingSurname, rig.sessionState(t, 111))
	}

	rig.say(t, 111, "Smith")
	rig.say(t, 111, "Alice3")
	assert.Equal(t, rig.msg(t, "invalid_name"), rig.sender.last(t))
	assert.Equal(t, session.StateAwaitingGivenName, rig.sessionState(t, 111))

	count, err := rig.store.AccountCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDialogueAcceptsNonASCIILetters(t *testing.T) {
	rig := newTestRig(t)

	rig.say(t, 111, "hello")
	rig.say(t, 111, "user-secret")
	rig.say(t, 111, "Иванов")
	rig.say(t, 111, "Пётр")

	account, err := rig.store.AccountByExternalID(context.Background(), 111)
	require.NoError(t, err)
	assert.Equal(t, "Иванов Пётр", account.DisplayName)
}

func TestRegisteredContactWelcomesAndUpdatesHandle(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.say(t, 111, "hello")
	rig.say(t, 111, "user-secret")
	rig.say(t, 111, "Smith")
	rig.say(t, 111, "Alice")

	// New contact after registration: straight to registered, no prompts.
	require.NoError(t, rig.engine.HandleEvent(ctx, InboundEvent{ExternalID: 111, Handle: "alice", Text: "hi"}))
	assert.Equal(t, session.StateRegistered, rig.sessionState(t, 111))
	assert.Contains(t, rig.sender.messages[len(rig.sender.messages)-2], "Smith Alice")
	assert.Equal(t, rig.msg(t, "update_tag"), rig.sender.last(t))

	account, err := rig.store.AccountByExternalID(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Handle)

	// Same handle again: welcome only, no update notice.
	before := len(rig.sender.messages)
	require.NoError(t, rig.engine.HandleEvent(ctx, InboundEvent{ExternalID: 111, Handle: "alice", Text: "hi"}))
	assert.Len(t, rig.sender.messages, before+1)

	count, err := rig.store.AccountCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProvisioningFailureClearsSession(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	// Occupy the external id so the final create hits the unique constraint.
	rig.say(t, 111, "hello")
	rig.say(t, 111, "user-secret")
	rig.say(t, 111, "Smith")
	rig.say(t, 111, "Alice")

	// Drive a second dialogue for the same id from a handcrafted session,
	// simulating a concurrent registration winner.
	require.NoError(t, rig.sessions.Put(ctx, &session.Session{
		ExternalID:  111,
		State:       session.StateAwaitingGivenName,
		PendingRole: models.RoleUser,
		Surname:     "Lee",
		Locale:      "en",
	}))

	err := rig.engine.HandleEvent(ctx, InboundEvent{ExternalID: 111, Text: "Bob"})
	require.ErrorIs(t, err, repository.ErrDuplicateIdentity)
	assert.Equal(t, rig.msg(t, "registration_failed"), rig.sender.last(t))

	sess, err := rig.sessions.Get(ctx, 111)
	require.NoError(t, err)
	assert.Nil(t, sess)

	count, err := rig.store.AccountCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLocaleHintSelectsCatalog(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, rig.engine.HandleEvent(context.Background(), InboundEvent{
		ExternalID: 222,
		LocaleHint: "ru-RU",
		Text:       "привет",
	}))
	text, err := rig.locales.Message("enter_secret_phrase", "ru")
	require.NoError(t, err)
	assert.Equal(t, text, rig.sender.last(t))
}

func TestIsAlphabetic(t *testing.T) {
	assert.True(t, isAlphabetic("Smith"))
	assert.True(t, isAlphabetic("Иванов"))
	assert.True(t, isAlphabetic("張"))
	assert.False(t, isAlphabetic(""))
	assert.False(t, isAlphabetic("Sm1th"))
	assert.False(t, isAlphabetic("a b"))
	assert.False(t, isAlphabetic("a-b"))
}
