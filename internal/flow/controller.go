package flow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/docsplain/internal/document"
	"github.com/wolfeidau/docsplain/internal/generate"
	"github.com/wolfeidau/docsplain/internal/identity"
	"github.com/wolfeidau/docsplain/internal/kbeditor"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/session"
	"github.com/wolfeidau/docsplain/internal/store"
	"github.com/wolfeidau/docsplain/internal/telemetry"
)

// ErrNoNotes is returned when a download is requested before anything was generated.
var ErrNoNotes = errors.New("no release notes have been generated")

// IdentityResolver exchanges authorization codes for verified identities.
type IdentityResolver interface {
	AuthCodeURL(state string) string
	ResolveIdentity(ctx context.Context, code string) (*models.IdentityClaims, error)
}

// NotesGenerator produces release note text from a knowledge base and uploaded tables.
type NotesGenerator interface {
	Generate(ctx context.Context, content *models.KnowledgeBaseContent, tables []*generate.Table) (string, error)
}

// Controller drives a session through login, onboarding and generation.
// Collaborator failures are logged, turned into flash messages and a state
// transition, and never returned to the caller.
type Controller struct {
	identity IdentityResolver
	users    store.UserStore
	kbs      store.KnowledgeBaseStore
	editor   *kbeditor.Editor
	notes    NotesGenerator
	metrics  *telemetry.Metrics
}

// NewController wires the controller to its collaborators.
func NewController(resolver IdentityResolver, st store.Store, notes NotesGenerator) *Controller {
	return &Controller{
		identity: resolver,
		users:    st,
		kbs:      st,
		editor:   kbeditor.NewEditor(st),
		notes:    notes,
		metrics:  telemetry.GetMetrics(),
	}
}

// BeginLogin records a fresh OAuth state value and returns the provider's authorize URL.
func (c *Controller) BeginLogin(sess *session.Session) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	sess.OAuthState = base58.Encode(buf)
	return c.identity.AuthCodeURL(sess.OAuthState), nil
}

// HandleCode exchanges an authorization code and resolves it to a user.
// A code this session has already consumed is ignored.
func (c *Controller) HandleCode(ctx context.Context, sess *session.Session, code, state string) {
	logger := zerolog.Ctx(ctx).With().Str("session_state", string(sess.State)).Logger()

	if !sess.ConsumeCode(code) {
		logger.Debug().Msg("Ignoring authorization code that was already consumed")
		return
	}

	if sess.State != session.StateLogin {
		logger.Warn().Msg("Ignoring authorization code outside of login")
		return
	}

	if err := sess.Apply(session.EventCodeReceived); err != nil {
		c.invalid(ctx, sess, err)
		return
	}

	expected := sess.OAuthState
	sess.OAuthState = ""

	if expected == "" || state != expected {
		logger.Warn().Msg("OAuth state mismatch")
		c.metrics.RecordLoginFailure(ctx, "state_mismatch")
		c.fail(ctx, sess, session.EventAuthFailed, session.FlashError, "Authentication failed: the login request has expired. Please sign in again.")
		return
	}

	claims, err := c.identity.ResolveIdentity(ctx, code)
	if err != nil {
		kind := "unknown"
		var authErr *identity.AuthError
		if errors.As(err, &authErr) {
			kind = string(authErr.Kind)
		}
		logger.Error().Err(err).Str("kind", kind).Msg("Identity exchange failed")
		c.metrics.RecordLoginFailure(ctx, kind)
		c.fail(ctx, sess, session.EventAuthFailed, session.FlashError, "Authentication failed. Please try signing in again.")
		return
	}

	user, err := c.users.FindUserByEmail(ctx, claims.Email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		sess.PendingClaims = claims
		c.apply(ctx, sess, session.EventUserNotFound)
		c.metrics.LoginsTotal.Add(ctx, 1)
		sess.AddFlash(session.FlashInfo, "Welcome! Create your organization to get started.")
		return
	case err != nil:
		logger.Error().Err(err).Msg("User lookup failed")
		c.fail(ctx, sess, session.EventAuthFailed, session.FlashError, "We could not load your account: %s", describe(err))
		return
	}

	sess.User = user
	c.apply(ctx, sess, session.EventUserFound)
	c.metrics.LoginsTotal.Add(ctx, 1)

	logger.Info().Str("user_id", user.UserID).Str("org_id", user.OrgID.String()).Msg("User signed in")

	c.checkKnowledgeBase(ctx, sess)
}

// Register provisions an organization and its first user for the pending identity.
func (c *Controller) Register(ctx context.Context, sess *session.Session, orgName string) {
	if sess.State != session.StateRegister {
		c.invalid(ctx, sess, fmt.Errorf("%w: register in %s", session.ErrInvalidTransition, sess.State))
		return
	}

	if err := sess.Check(); err != nil {
		c.corrupted(ctx, sess, err)
		return
	}

	orgName = strings.TrimSpace(orgName)
	if orgName == "" {
		c.metrics.RegistrationFailuresTotal.Add(ctx, 1)
		c.fail(ctx, sess, session.EventRegistrationRejected, session.FlashWarning, "Please enter an organization name.")
		return
	}

	user, err := c.users.CreateUserAndOrganization(ctx, sess.PendingClaims, orgName)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("org_name", orgName).Msg("Registration failed")
		c.metrics.RegistrationFailuresTotal.Add(ctx, 1)
		c.fail(ctx, sess, session.EventRegistrationRejected, session.FlashError, "Registration failed: %s", describe(err))
		return
	}

	sess.User = user
	sess.PendingClaims = nil
	c.apply(ctx, sess, session.EventRegistered)
	c.metrics.RegistrationsTotal.Add(ctx, 1)

	zerolog.Ctx(ctx).Info().
		Str("user_id", user.UserID).
		Str("org_id", user.OrgID.String()).
		Msg("Organization provisioned")

	sess.AddFlash(session.FlashInfo, "Organization %q created.", user.OrgName)

	c.checkKnowledgeBase(ctx, sess)
}

// Resume validates the session before a page is rendered and evaluates
// check_kb when the session is waiting on it. The returned error is always
// a *session.CorruptionError and means the session must be reset.
func (c *Controller) Resume(ctx context.Context, sess *session.Session) error {
	if err := sess.Check(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Session corrupted")
		return err
	}

	if sess.State == session.StateCheckKB {
		c.checkKnowledgeBase(ctx, sess)
	}

	return nil
}

func (c *Controller) checkKnowledgeBase(ctx context.Context, sess *session.Session) {
	_, err := c.kbs.GetKnowledgeBase(ctx, sess.User.OrgID)
	switch {
	case err == nil:
		c.apply(ctx, sess, session.EventKBPresent)
	case errors.Is(err, store.ErrKnowledgeBaseNotFound):
		c.apply(ctx, sess, session.EventKBAbsent)
		sess.AddFlash(session.FlashWarning, "Your organization's knowledge base is not set up yet.")
	default:
		// stay in check_kb, the next render evaluates it again
		zerolog.Ctx(ctx).Error().Err(err).Msg("Knowledge base lookup failed")
		sess.AddFlash(session.FlashError, "We could not load your knowledge base: %s", describe(err))
	}
}

// KnowledgeBaseForm returns the editor form for the user's organization.
func (c *Controller) KnowledgeBaseForm(ctx context.Context, sess *session.Session) *kbeditor.Form {
	if sess.User == nil {
		return kbeditor.DefaultForm("")
	}

	form, err := c.editor.Load(ctx, sess.User.OrgID, sess.User.OrgName)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Knowledge base load failed")
		sess.AddFlash(session.FlashError, "We could not load your knowledge base: %s", describe(err))
		return kbeditor.DefaultForm(sess.User.OrgName)
	}
	return form
}

// SaveKnowledgeBase persists the submitted form and moves to the main app.
func (c *Controller) SaveKnowledgeBase(ctx context.Context, sess *session.Session, form *kbeditor.Form) {
	if !c.canEditKnowledgeBase(ctx, sess) {
		return
	}

	_, err := c.editor.Save(ctx, sess.User.OrgID, sess.User.OrgName, form)
	c.afterSave(ctx, sess, err)
}

// ImportKnowledgeBase replaces the organization's knowledge base with an uploaded YAML export.
func (c *Controller) ImportKnowledgeBase(ctx context.Context, sess *session.Session, data []byte) {
	if !c.canEditKnowledgeBase(ctx, sess) {
		return
	}

	content, err := kbeditor.ImportYAML(data)
	if err == nil {
		err = c.editor.SaveContent(ctx, sess.User.OrgID, content)
	}
	c.afterSave(ctx, sess, err)
}

// ExportKnowledgeBase returns the saved knowledge base as YAML.
func (c *Controller) ExportKnowledgeBase(ctx context.Context, sess *session.Session) ([]byte, error) {
	if sess.User == nil {
		return nil, fmt.Errorf("%w: export in %s", session.ErrInvalidTransition, sess.State)
	}

	content, err := c.kbs.GetKnowledgeBase(ctx, sess.User.OrgID)
	if err != nil {
		return nil, err
	}
	return kbeditor.ExportYAML(content)
}

func (c *Controller) canEditKnowledgeBase(ctx context.Context, sess *session.Session) bool {
	if sess.State != session.StateSetupKB && sess.State != session.StateMainApp {
		c.invalid(ctx, sess, fmt.Errorf("%w: save knowledge base in %s", session.ErrInvalidTransition, sess.State))
		return false
	}
	if err := sess.Check(); err != nil {
		c.corrupted(ctx, sess, err)
		return false
	}
	return true
}

func (c *Controller) afterSave(ctx context.Context, sess *session.Session, err error) {
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Knowledge base save failed")
		msg := "Could not save the knowledge base: %s"
		if sess.State == session.StateSetupKB {
			c.fail(ctx, sess, session.EventKBRejected, session.FlashError, msg, describe(err))
			return
		}
		sess.AddFlash(session.FlashError, msg, describe(err))
		return
	}

	c.apply(ctx, sess, session.EventKBSaved)
	c.metrics.KnowledgeBaseSavesTotal.Add(ctx, 1)
	sess.AddFlash(session.FlashInfo, "Knowledge base saved.")
}

// EditKnowledgeBase reopens the knowledge base editor from the main app.
func (c *Controller) EditKnowledgeBase(ctx context.Context, sess *session.Session) {
	if err := sess.Apply(session.EventEditKB); err != nil {
		c.invalid(ctx, sess, err)
	}
}

// Generate produces release notes from the uploaded tables and keeps them in the session.
func (c *Controller) Generate(ctx context.Context, sess *session.Session, tables []*generate.Table) {
	if sess.State != session.StateMainApp {
		c.invalid(ctx, sess, fmt.Errorf("%w: generate in %s", session.ErrInvalidTransition, sess.State))
		return
	}
	if err := sess.Check(); err != nil {
		c.corrupted(ctx, sess, err)
		return
	}

	if len(tables) == 0 {
		sess.AddFlash(session.FlashWarning, "Please upload at least one CSV file.")
		return
	}

	content, err := c.kbs.GetKnowledgeBase(ctx, sess.User.OrgID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Knowledge base lookup failed")
		sess.AddFlash(session.FlashError, "We could not load your knowledge base: %s", describe(err))
		return
	}

	started := time.Now()
	text, err := c.notes.Generate(ctx, content, tables)
	c.metrics.RecordGeneration(ctx, started, err)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Release note generation failed")
		sess.AddFlash(session.FlashError, "An error occurred while generating release notes: %s", describe(err))
		return
	}

	sess.GeneratedNotes = text
	sess.AddFlash(session.FlashInfo, "Release notes generated.")
}

// Document renders the last generated notes as a DOCX file.
func (c *Controller) Document(ctx context.Context, sess *session.Session) (*document.Result, error) {
	if sess.State != session.StateMainApp || sess.GeneratedNotes == "" {
		return nil, ErrNoNotes
	}

	result, err := document.Build("Release Notes", sess.GeneratedNotes)
	if err != nil {
		return nil, err
	}

	c.metrics.DocumentDownloadsTotal.Add(ctx, 1)
	return result, nil
}

// Logout clears the session and returns it to login.
func (c *Controller) Logout(ctx context.Context, sess *session.Session) {
	c.apply(ctx, sess, session.EventLogout)
	sess.AddFlash(session.FlashInfo, "You have been signed out.")
}

// Reset discards a corrupted session and returns it to login.
func (c *Controller) Reset(ctx context.Context, sess *session.Session) {
	c.apply(ctx, sess, session.EventReset)
	c.metrics.SessionResetsTotal.Add(ctx, 1)
	sess.AddFlash(session.FlashInfo, "Your session has been reset. Please sign in again.")
}

// apply performs a transition the controller has already established as valid.
func (c *Controller) apply(ctx context.Context, sess *session.Session, event session.Event) {
	if err := sess.Apply(event); err != nil {
		c.invalid(ctx, sess, err)
	}
}

// fail flashes a message and applies event.
func (c *Controller) fail(ctx context.Context, sess *session.Session, event session.Event, level session.FlashLevel, format string, args ...any) {
	sess.AddFlash(level, format, args...)
	c.apply(ctx, sess, event)
}

func (c *Controller) invalid(ctx context.Context, sess *session.Session, err error) {
	zerolog.Ctx(ctx).Warn().Err(err).Msg("Rejected action")
	sess.AddFlash(session.FlashWarning, "That action is not available right now.")
}

func (c *Controller) corrupted(ctx context.Context, sess *session.Session, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Msg("Session corrupted")
	sess.AddFlash(session.FlashError, "Your session is in an invalid state. Please reset it.")
}

// describe turns a collaborator error into a message for the user.
func describe(err error) string {
	var pe *store.PersistenceError
	if errors.As(err, &pe) {
		switch {
		case errors.Is(err, store.ErrUserAlreadyExists):
			return "an account with this email already exists"
		case pe.Kind == store.KindConnectivity:
			return "the database is unavailable, please try again"
		}
		return pe.Err.Error()
	}

	var genErr *generate.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Err.Error()
	}

	return err.Error()
}
