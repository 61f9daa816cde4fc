package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/docsplain/internal/generate"
	"github.com/wolfeidau/docsplain/internal/identity"
	"github.com/wolfeidau/docsplain/internal/kbeditor"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/session"
	"github.com/wolfeidau/docsplain/internal/store"
	"github.com/wolfeidau/docsplain/internal/store/memory"
)

type fakeResolver struct {
	claims map[string]*models.IdentityClaims
	calls  int
}

func (f *fakeResolver) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (f *fakeResolver) ResolveIdentity(_ context.Context, code string) (*models.IdentityClaims, error) {
	f.calls++
	claims, ok := f.claims[code]
	if !ok {
		return nil, &identity.AuthError{Kind: identity.AuthNetwork, Err: errors.New("invalid_grant")}
	}
	delete(f.claims, code)
	return claims, nil
}

type fakeNotes struct {
	text string
	err  error
}

func (f *fakeNotes) Generate(_ context.Context, _ *models.KnowledgeBaseContent, _ []*generate.Table) (string, error) {
	if f.err != nil {
		return "", &generate.GenerationError{Err: f.err}
	}
	return f.text, nil
}

// failingKBStore wraps a store and fails knowledge base lookups.
type failingKBStore struct {
	*memory.Store
}

func (f failingKBStore) GetKnowledgeBase(context.Context, uuid.UUID) (*models.KnowledgeBaseContent, error) {
	return nil, store.NewPersistenceError("get knowledge base", store.KindConnectivity, errors.New("connection refused"))
}

type harness struct {
	ctrl     *Controller
	store    *memory.Store
	resolver *fakeResolver
	notes    *fakeNotes
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store: memory.NewStore(),
		resolver: &fakeResolver{claims: map[string]*models.IdentityClaims{
			"abc123": {Subject: "abc123", Email: "a@x.com", Name: "Ann"},
		}},
		notes: &fakeNotes{text: "# Title\n* point one\nplain line"},
	}
	h.ctrl = NewController(h.resolver, h.store, h.notes)
	return h
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(time.Hour)
	require.NoError(t, err)
	return sess
}

// login runs the browser round trip through the provider for code.
func (h *harness) login(t *testing.T, sess *session.Session, code string) {
	t.Helper()
	authURL, err := h.ctrl.BeginLogin(sess)
	require.NoError(t, err)
	require.Contains(t, authURL, sess.OAuthState)
	h.ctrl.HandleCode(context.Background(), sess, code, sess.OAuthState)
}

func lastFlash(t *testing.T, sess *session.Session) session.Flash {
	t.Helper()
	flashes := sess.TakeFlashes()
	require.NotEmpty(t, flashes)
	return flashes[len(flashes)-1]
}

func TestNewUserRegistersAndSetsUpKnowledgeBase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := newSession(t)

	h.login(t, sess, "abc123")
	require.Equal(t, session.StateRegister, sess.State)
	require.Equal(t, "a@x.com", sess.PendingClaims.Email)
	require.Equal(t, "Ann", sess.PendingClaims.Name)
	require.Empty(t, sess.OAuthState)

	h.ctrl.Register(ctx, sess, "Acme")
	require.Equal(t, session.StateSetupKB, sess.State)
	require.NotNil(t, sess.User)
	require.Equal(t, "Acme", sess.User.OrgName)
	require.Equal(t, "abc123", sess.User.UserID)
	require.Nil(t, sess.PendingClaims)

	form := h.ctrl.KnowledgeBaseForm(ctx, sess)
	require.Equal(t, "Acme", form.CompanyName)

	h.ctrl.SaveKnowledgeBase(ctx, sess, form)
	require.Equal(t, session.StateMainApp, sess.State)

	content, err := h.store.GetKnowledgeBase(ctx, sess.User.OrgID)
	require.NoError(t, err)
	require.Equal(t, "Acme", content.CompanyName)
}

func TestExistingUserResumes(t *testing.T) {
	ctx := context.Background()

	t.Run("without knowledge base", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.CreateUserAndOrganization(ctx, &models.IdentityClaims{Subject: "abc123", Email: "a@x.com"}, "Acme")
		require.NoError(t, err)

		sess := newSession(t)
		h.login(t, sess, "abc123")
		require.Equal(t, session.StateSetupKB, sess.State)
		require.Equal(t, "Acme", sess.User.OrgName)
	})

	t.Run("with knowledge base", func(t *testing.T) {
		h := newHarness(t)
		user, err := h.store.CreateUserAndOrganization(ctx, &models.IdentityClaims{Subject: "abc123", Email: "A@X.com"}, "Acme")
		require.NoError(t, err)
		require.NoError(t, h.store.SaveKnowledgeBase(ctx, user.OrgID, &models.KnowledgeBaseContent{CompanyName: "Acme"}))

		sess := newSession(t)
		h.login(t, sess, "abc123")
		require.Equal(t, session.StateMainApp, sess.State)
	})

	t.Run("knowledge base lookup fails", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.CreateUserAndOrganization(ctx, &models.IdentityClaims{Subject: "abc123", Email: "a@x.com"}, "Acme")
		require.NoError(t, err)
		h.ctrl = NewController(h.resolver, failingKBStore{h.store}, h.notes)

		sess := newSession(t)
		h.login(t, sess, "abc123")
		require.Equal(t, session.StateCheckKB, sess.State)
		flash := lastFlash(t, sess)
		require.Equal(t, session.FlashError, flash.Level)
		require.Contains(t, flash.Message, "database is unavailable")
	})
}

func TestAuthFailureReturnsToLogin(t *testing.T) {
	h := newHarness(t)
	sess := newSession(t)

	h.login(t, sess, "bogus")
	require.Equal(t, session.StateLogin, sess.State)
	require.Nil(t, sess.User)
	require.Nil(t, sess.PendingClaims)

	flash := lastFlash(t, sess)
	require.Equal(t, session.FlashError, flash.Level)
	require.Contains(t, flash.Message, "Authentication failed")
}

func TestOAuthStateMismatch(t *testing.T) {
	h := newHarness(t)
	sess := newSession(t)

	_, err := h.ctrl.BeginLogin(sess)
	require.NoError(t, err)

	h.ctrl.HandleCode(context.Background(), sess, "abc123", "forged")
	require.Equal(t, session.StateLogin, sess.State)
	require.Zero(t, h.resolver.calls)
}

func TestCodeIsConsumedOnce(t *testing.T) {
	h := newHarness(t)
	sess := newSession(t)

	h.login(t, sess, "abc123")
	require.Equal(t, session.StateRegister, sess.State)
	sess.TakeFlashes()

	// a page refresh replays the same code
	h.ctrl.HandleCode(context.Background(), sess, "abc123", "")
	require.Equal(t, session.StateRegister, sess.State)
	require.Equal(t, 1, h.resolver.calls)
	require.Empty(t, sess.TakeFlashes())
}

func TestRegisterRejected(t *testing.T) {
	ctx := context.Background()

	t.Run("blank organization name", func(t *testing.T) {
		h := newHarness(t)
		sess := newSession(t)
		h.login(t, sess, "abc123")

		h.ctrl.Register(ctx, sess, "   ")
		require.Equal(t, session.StateRegister, sess.State)
		require.Equal(t, session.FlashWarning, lastFlash(t, sess).Level)
		require.Zero(t, h.store.CountOrganizations())
	})

	t.Run("duplicate subject", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.CreateUserAndOrganization(ctx, &models.IdentityClaims{Subject: "abc123", Email: "other@x.com"}, "Other")
		require.NoError(t, err)

		sess := newSession(t)
		h.login(t, sess, "abc123")
		require.Equal(t, session.StateRegister, sess.State)

		h.ctrl.Register(ctx, sess, "Acme")
		require.Equal(t, session.StateRegister, sess.State)
		require.Nil(t, sess.User)
		require.Equal(t, 1, h.store.CountOrganizations())

		flash := lastFlash(t, sess)
		require.Equal(t, session.FlashError, flash.Level)
		require.Contains(t, flash.Message, "already exists")
	})

	t.Run("wrong state", func(t *testing.T) {
		h := newHarness(t)
		sess := newSession(t)

		h.ctrl.Register(ctx, sess, "Acme")
		require.Equal(t, session.StateLogin, sess.State)
		require.Zero(t, h.store.CountOrganizations())
	})
}

func registeredSession(t *testing.T, h *harness) *session.Session {
	t.Helper()
	sess := newSession(t)
	h.login(t, sess, "abc123")
	h.ctrl.Register(context.Background(), sess, "Acme")
	require.Equal(t, session.StateSetupKB, sess.State)
	sess.TakeFlashes()
	return sess
}

func TestKnowledgeBaseEditing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := registeredSession(t, h)

	// blank company and org names cannot be saved
	sess.User.OrgName = ""
	h.ctrl.SaveKnowledgeBase(ctx, sess, &kbeditor.Form{})
	require.Equal(t, session.StateSetupKB, sess.State)
	require.Equal(t, session.FlashError, lastFlash(t, sess).Level)
	sess.User.OrgName = "Acme"

	h.ctrl.SaveKnowledgeBase(ctx, sess, kbeditor.DefaultForm("Acme"))
	require.Equal(t, session.StateMainApp, sess.State)

	h.ctrl.EditKnowledgeBase(ctx, sess)
	require.Equal(t, session.StateSetupKB, sess.State)

	form := h.ctrl.KnowledgeBaseForm(ctx, sess)
	form.ToneRule = "Be playful."
	h.ctrl.SaveKnowledgeBase(ctx, sess, form)
	require.Equal(t, session.StateMainApp, sess.State)

	exported, err := h.ctrl.ExportKnowledgeBase(ctx, sess)
	require.NoError(t, err)
	require.Contains(t, string(exported), "Be playful.")

	imported := strings.Replace(string(exported), "Be playful.", "Be formal.", 1)
	h.ctrl.ImportKnowledgeBase(ctx, sess, []byte(imported))
	require.Equal(t, session.StateMainApp, sess.State)

	content, err := h.store.GetKnowledgeBase(ctx, sess.User.OrgID)
	require.NoError(t, err)
	require.Equal(t, "Be formal.", content.WritingStyleGuide.ProfessionalToneRule)

	sess.TakeFlashes()
	h.ctrl.ImportKnowledgeBase(ctx, sess, []byte("not: [valid"))
	require.Equal(t, session.StateMainApp, sess.State)
	require.Equal(t, session.FlashError, lastFlash(t, sess).Level)
}

func TestGenerateAndDownload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := registeredSession(t, h)

	_, err := h.ctrl.Document(ctx, sess)
	require.ErrorIs(t, err, ErrNoNotes)

	h.ctrl.SaveKnowledgeBase(ctx, sess, kbeditor.DefaultForm("Acme"))
	require.Equal(t, session.StateMainApp, sess.State)
	sess.TakeFlashes()

	h.ctrl.Generate(ctx, sess, nil)
	require.Equal(t, session.FlashWarning, lastFlash(t, sess).Level)

	table, err := generate.ParseCSV("stories", strings.NewReader("Key,Summary\nDOC-1,Faster login\n"))
	require.NoError(t, err)

	h.notes.err = errors.New("quota exceeded")
	h.ctrl.Generate(ctx, sess, []*generate.Table{table})
	flash := lastFlash(t, sess)
	require.Equal(t, session.FlashError, flash.Level)
	require.Contains(t, flash.Message, "quota exceeded")
	require.Empty(t, sess.GeneratedNotes)

	h.notes.err = nil
	h.ctrl.Generate(ctx, sess, []*generate.Table{table})
	require.Equal(t, "# Title\n* point one\nplain line", sess.GeneratedNotes)

	result, err := h.ctrl.Document(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, "release_notes.docx", result.Filename)
	require.NotEmpty(t, result.Data)
}

func TestGenerateRequiresMainApp(t *testing.T) {
	h := newHarness(t)
	sess := registeredSession(t, h)

	h.ctrl.Generate(context.Background(), sess, nil)
	require.Equal(t, session.StateSetupKB, sess.State)
	require.Equal(t, session.FlashWarning, lastFlash(t, sess).Level)
}

func TestLogoutClearsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := registeredSession(t, h)
	sess.GeneratedNotes = "notes"

	h.ctrl.Logout(ctx, sess)
	require.Equal(t, session.StateLogin, sess.State)
	require.Nil(t, sess.User)
	require.Empty(t, sess.GeneratedNotes)
	require.Empty(t, sess.ConsumedCodes)
}

func TestCorruptSessionIsReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := registeredSession(t, h)

	sess.User.Email = ""

	err := h.ctrl.Resume(ctx, sess)
	require.ErrorIs(t, err, session.ErrCorrupt)
	var corruptErr *session.CorruptionError
	require.ErrorAs(t, err, &corruptErr)

	h.ctrl.SaveKnowledgeBase(ctx, sess, kbeditor.DefaultForm("Acme"))
	require.Equal(t, session.StateSetupKB, sess.State)

	h.ctrl.Reset(ctx, sess)
	require.Equal(t, session.StateLogin, sess.State)
	require.Nil(t, sess.User)
	require.NoError(t, h.ctrl.Resume(ctx, sess))
}

func TestResumeEvaluatesCheckKB(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user, err := h.store.CreateUserAndOrganization(ctx, &models.IdentityClaims{Subject: "abc123", Email: "a@x.com"}, "Acme")
	require.NoError(t, err)
	require.NoError(t, h.store.SaveKnowledgeBase(ctx, user.OrgID, &models.KnowledgeBaseContent{CompanyName: "Acme"}))

	sess := newSession(t)
	sess.State = session.StateCheckKB
	sess.User = user

	require.NoError(t, h.ctrl.Resume(ctx, sess))
	require.Equal(t, session.StateMainApp, sess.State)
}
