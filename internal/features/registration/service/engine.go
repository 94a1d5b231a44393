// Package service implements the per-conversation registration dialogue.
package service

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"tribebot-backend/internal/common/apperrors"
	"tribebot-backend/internal/common/i18n"
	"tribebot-backend/internal/common/logger"
	"tribebot-backend/internal/features/account/models"
	"tribebot-backend/internal/features/account/repository"
	accountservice "tribebot-backend/internal/features/account/service"
	"tribebot-backend/internal/features/registration/session"
)

// InboundEvent is the transport-delivered conversational event shape.
type InboundEvent struct {
	ExternalID int64  `json:"external_id"`
	Handle     string `json:"handle,omitempty"`
	LocaleHint string `json:"locale_hint,omitempty"`
	Text       string `json:"text"`
}

// Sender delivers outbound messages. The transport implementation is out of
// scope; the engine depends only on this shape.
type Sender interface {
	Send(ctx context.Context, externalID int64, text string) error
}

// Secrets are the configured registration keys that resolve a role.
type Secrets struct {
	UserKey  string
	AdminKey string
}

// Engine is the finite-state dialogue controller. It exclusively owns the
// conversation session lifecycle and calls the provisioning service on
// completion.
type Engine struct {
	sessions    session.Store
	provisioner accountservice.ProvisioningService
	messages    *i18n.Bundle
	sender      Sender
	secrets     Secrets
}

func NewEngine(sessions session.Store, provisioner accountservice.ProvisioningService, messages *i18n.Bundle, sender Sender, secrets Secrets) *Engine {
	return &Engine{
		sessions:    sessions,
		provisioner: provisioner,
		messages:    messages,
		sender:      sender,
		secrets:     secrets,
	}
}

// HandleEvent routes one inbound event through the state machine.
func (e *Engine) HandleEvent(ctx context.Context, event InboundEvent) error {
	sess, err := e.sessions.Get(ctx, event.ExternalID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "session lookup failed").
			WithExternalID(event.ExternalID).WithOperation("session_get")
	}

	if sess == nil {
		return e.handleFirstContact(ctx, event)
	}

	switch sess.State {
	case session.StateRegistered:
		return e.handleRegisteredContact(ctx, event)
	case session.StateAwaitingSecret:
		return e.handleSecret(ctx, event, sess)
	case session.StateAwaitingSurname:
		return e.handleSurname(ctx, event, sess)
	case session.StateAwaitingGivenName:
		return e.handleGivenName(ctx, event, sess)
	default:
		return apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("unknown session state %q", sess.State)).
			WithExternalID(event.ExternalID)
	}
}

// handleFirstContact opens the dialogue for an unknown-state identity:
// identities that already have an account go straight to registered.
func (e *Engine) handleFirstContact(ctx context.Context, event InboundEvent) error {
	_, err := e.provisioner.AccountByExternalID(ctx, event.ExternalID)
	switch {
	case err == nil:
		return e.handleRegisteredContact(ctx, event)
	case errors.Is(err, repository.ErrAccountNotFound):
	default:
		return err
	}

	locale := e.messages.Normalize(event.LocaleHint)
	prompt, err := e.message("enter_secret_phrase", locale, event.ExternalID)
	if err != nil {
		return err
	}

	if err := e.sessions.Put(ctx, &session.Session{
		ExternalID: event.ExternalID,
		State:      session.StateAwaitingSecret,
		Locale:     locale,
	}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "session store failed").
			WithExternalID(event.ExternalID).WithOperation("session_put")
	}

	logger.Info().Int64("external_id", event.ExternalID).Msg("Registration dialogue started")
	return e.send(ctx, event.ExternalID, prompt)
}

// handleRegisteredContact refreshes the stored handle when it changed and
// re-sends the welcome message.
func (e *Engine) handleRegisteredContact(ctx context.Context, event InboundEvent) error {
	account, err := e.provisioner.AccountByExternalID(ctx, event.ExternalID)
	if err != nil {
		return err
	}

	handleChanged := event.Handle != "" && event.Handle != account.Handle
	if handleChanged {
		if err := e.provisioner.UpdateHandle(ctx, event.ExternalID, event.Handle); err != nil {
			return err
		}
		logger.Debug().Int64("external_id", event.ExternalID).Msg("Handle refreshed on contact")
	}

	if err := e.sessions.Put(ctx, &session.Session{
		ExternalID: event.ExternalID,
		State:      session.StateRegistered,
		Locale:     account.Locale,
	}); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "session store failed").
			WithExternalID(event.ExternalID).WithOperation("session_put")
	}

	welcome, err := e.message("welcome_user", account.Locale, event.ExternalID)
	if err != nil {
		return err
	}
	if err := e.send(ctx, event.ExternalID, fmt.Sprintf(welcome, account.DisplayName)); err != nil {
		return err
	}
	if handleChanged {
		updated, err := e.message("update_tag", account.Locale, event.ExternalID)
		if err != nil {
			return err
		}
		return e.send(ctx, event.ExternalID, updated)
	}
	return nil
}

func (e *Engine) handleSecret(ctx context.Context, event InboundEvent, sess *session.Session) error {
	var role models.Role
	switch event.Text {
	case e.secrets.UserKey:
		role = models.RoleUser
	case e.secrets.AdminKey:
		role = models.RoleAdmin
	default:
		// Invalid secret: no session mutation, just a retry prompt.
		return e.reply(ctx, event.ExternalID, "invalid_secret_phrase", sess.Locale)
	}

	prompt, err := e.message("enter_surname", sess.Locale, event.ExternalID)
	if err != nil {
		return err
	}

	sess.PendingRole = role
	sess.State = session.StateAwaitingSurname
	if err := e.sessions.Put(ctx, sess); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "session store failed").
			WithExternalID(event.ExternalID).WithOperation("session_put")
	}
	return e.send(ctx, event.ExternalID, prompt)
}

func (e *Engine) handleSurname(ctx context.Context, event InboundEvent, sess *session.Session) error {
	if !isAlphabetic(event.Text) {
		return e.reply(ctx, event.ExternalID, "invalid_surname", sess.Locale)
	}

	prompt, err := e.message("enter_name", sess.Locale, event.ExternalID)
	if err != nil {
		return err
	}

	sess.Surname = event.Text
	sess.State = session.StateAwaitingGivenName
	if err := e.sessions.Put(ctx, sess); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "session store failed").
			WithExternalID(event.ExternalID).WithOperation("session_put")
	}
	return e.send(ctx, event.ExternalID, prompt)
}

func (e *Engine) handleGivenName(ctx context.Context, event InboundEvent, sess *session.Session) error {
	if !isAlphabetic(event.Text) {
		return e.reply(ctx, event.ExternalID, "invalid_name", sess.Locale)
	}

	displayName := fmt.Sprintf("%s %s", sess.Surname, event.Text)
	_, err := e.provisioner.CreateAccount(ctx, accountservice.CreateAccountParams{
		ExternalID:  event.ExternalID,
		Handle:      event.Handle,
		DisplayName: displayName,
		Role:        sess.PendingRole,
		Locale:      sess.Locale,
	})

	// Terminal step either way: no partial session survives a provisioning
	// failure, the identity restarts the flow.
	if delErr := e.sessions.Delete(ctx, event.ExternalID); delErr != nil {
		logger.Error().Err(delErr).Int64("external_id", event.ExternalID).Msg("Failed to clear session")
	}

	if err != nil {
		logger.Error().Err(err).Int64("external_id", event.ExternalID).Msg("Provisioning failed")
		if sendErr := e.reply(ctx, event.ExternalID, "registration_failed", sess.Locale); sendErr != nil {
			logger.Error().Err(sendErr).Int64("external_id", event.ExternalID).Msg("Failed to send failure notice")
		}
		return err
	}

	logger.Info().
		Int64("external_id", event.ExternalID).
		Str("role", string(sess.PendingRole)).
		Msg("Registration completed")
	return e.reply(ctx, event.ExternalID, "registration_successful", sess.Locale)
}

func (e *Engine) reply(ctx context.Context, externalID int64, key, locale string) error {
	text, err := e.message(key, locale, externalID)
	if err != nil {
		return err
	}
	return e.send(ctx, externalID, text)
}

func (e *Engine) message(key, locale string, externalID int64) (string, error) {
	text, err := e.messages.Message(key, locale)
	if err != nil {
		// A localization gap fails the response it was producing, never the
		// conversation state.
		logger.Error().Err(err).Str("key", key).Str("locale", locale).Msg("Message lookup failed")
		return "", apperrors.Wrap(err, apperrors.ErrCodeMessageNotFound, "message lookup failed").
			WithExternalID(externalID).WithContext("key", key)
	}
	return text, nil
}

func (e *Engine) send(ctx context.Context, externalID int64, text string) error {
	if err := e.sender.Send(ctx, externalID, text); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "send failed").
			WithExternalID(externalID).WithOperation("send")
	}
	return nil
}

// isAlphabetic mirrors the per-script letter check used for name input:
// every rune must be a letter, empty input is invalid.
func isAlphabetic(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
