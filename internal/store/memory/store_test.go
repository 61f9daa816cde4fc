package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/store"
)

func testClaims() *models.IdentityClaims {
	return &models.IdentityClaims{
		Subject: "auth0|ann",
		Email:   "a@x.com",
		Name:    "Ann",
		Picture: "https://example.com/ann.png",
	}
}

func TestNewStore(t *testing.T) {
	st := NewStore()
	require.NotNil(t, st)
	require.NoError(t, st.EnsureSchema(context.Background()))
	require.NoError(t, st.EnsureSchema(context.Background()))
}

func TestStore_FindUserByEmail(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		st := NewStore()

		user, err := st.FindUserByEmail(context.Background(), "nobody@x.com")
		require.ErrorIs(t, err, store.ErrUserNotFound)
		require.Nil(t, user)
	})

	t.Run("returns user joined with organization", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()

		created, err := st.CreateUserAndOrganization(ctx, testClaims(), "Acme")
		require.NoError(t, err)

		user, err := st.FindUserByEmail(ctx, "A@X.com")
		require.NoError(t, err)
		require.Equal(t, created, user)
		require.Equal(t, "Acme", user.OrgName)
		require.Equal(t, "auth0|ann", user.UserID)
		require.Equal(t, "https://example.com/ann.png", user.PictureURL)
	})
}

func TestStore_CreateUserAndOrganization(t *testing.T) {
	t.Run("creates both records", func(t *testing.T) {
		st := NewStore()

		user, err := st.CreateUserAndOrganization(context.Background(), testClaims(), "Acme")
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, user.OrgID)
		require.Equal(t, "Acme", user.OrgName)
		require.NoError(t, user.Validate())
		require.Equal(t, 1, st.CountOrganizations())
	})

	t.Run("duplicate email fails without orphaning an organization", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()

		_, err := st.CreateUserAndOrganization(ctx, testClaims(), "Acme")
		require.NoError(t, err)

		claims := testClaims()
		claims.Subject = "auth0|other"
		user, err := st.CreateUserAndOrganization(ctx, claims, "Other Co")
		require.Error(t, err)
		require.Nil(t, user)
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)

		var pe *store.PersistenceError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, store.KindConstraint, pe.Kind)
		require.Equal(t, 1, st.CountOrganizations())
	})

	t.Run("duplicate subject fails", func(t *testing.T) {
		st := NewStore()
		ctx := context.Background()

		_, err := st.CreateUserAndOrganization(ctx, testClaims(), "Acme")
		require.NoError(t, err)

		claims := testClaims()
		claims.Email = "b@x.com"
		_, err = st.CreateUserAndOrganization(ctx, claims, "Acme")
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)
		require.Equal(t, 1, st.CountOrganizations())
	})

	t.Run("invalid claims are rejected", func(t *testing.T) {
		st := NewStore()

		_, err := st.CreateUserAndOrganization(context.Background(), &models.IdentityClaims{Email: "a@x.com"}, "Acme")
		require.True(t, store.IsPersistenceError(err))
		require.Equal(t, 0, st.CountOrganizations())
	})
}

func TestStore_KnowledgeBase(t *testing.T) {
	setup := func(t *testing.T) (*Store, uuid.UUID) {
		st := NewStore()
		user, err := st.CreateUserAndOrganization(context.Background(), testClaims(), "Acme")
		require.NoError(t, err)
		return st, user.OrgID
	}

	content := func(tone string) *models.KnowledgeBaseContent {
		return &models.KnowledgeBaseContent{
			CompanyName: "Acme",
			ProductCategories: map[string]models.ProductCategory{
				"Platform": {Description: "Core", KeywordsAndAliases: []string{"performance"}},
			},
			WritingStyleGuide: models.WritingStyleGuide{
				ProfessionalToneRule: tone,
				TerminologyRules:     map[string]string{"OldName": "NewName"},
			},
		}
	}

	t.Run("absent before save", func(t *testing.T) {
		st, orgID := setup(t)

		kb, err := st.GetKnowledgeBase(context.Background(), orgID)
		require.ErrorIs(t, err, store.ErrKnowledgeBaseNotFound)
		require.Nil(t, kb)
	})

	t.Run("round trip", func(t *testing.T) {
		st, orgID := setup(t)
		ctx := context.Background()

		require.NoError(t, st.SaveKnowledgeBase(ctx, orgID, content("neutral")))

		kb, err := st.GetKnowledgeBase(ctx, orgID)
		require.NoError(t, err)
		require.Equal(t, content("neutral"), kb)
	})

	t.Run("saving twice is idempotent", func(t *testing.T) {
		st, orgID := setup(t)
		ctx := context.Background()

		require.NoError(t, st.SaveKnowledgeBase(ctx, orgID, content("neutral")))
		require.NoError(t, st.SaveKnowledgeBase(ctx, orgID, content("neutral")))

		kb, err := st.GetKnowledgeBase(ctx, orgID)
		require.NoError(t, err)
		require.Equal(t, content("neutral"), kb)
	})

	t.Run("last write wins", func(t *testing.T) {
		st, orgID := setup(t)
		ctx := context.Background()

		require.NoError(t, st.SaveKnowledgeBase(ctx, orgID, content("first")))
		require.NoError(t, st.SaveKnowledgeBase(ctx, orgID, content("second")))

		kb, err := st.GetKnowledgeBase(ctx, orgID)
		require.NoError(t, err)
		require.Equal(t, "second", kb.WritingStyleGuide.ProfessionalToneRule)
	})

	t.Run("empty content round trips", func(t *testing.T) {
		st, orgID := setup(t)
		ctx := context.Background()

		empty := &models.KnowledgeBaseContent{
			CompanyName:       "Acme",
			ProductCategories: map[string]models.ProductCategory{},
			WritingStyleGuide: models.WritingStyleGuide{TerminologyRules: map[string]string{}},
		}
		require.NoError(t, st.SaveKnowledgeBase(ctx, orgID, empty))

		kb, err := st.GetKnowledgeBase(ctx, orgID)
		require.NoError(t, err)
		require.Equal(t, empty, kb)
	})

	t.Run("unknown organization", func(t *testing.T) {
		st := NewStore()

		err := st.SaveKnowledgeBase(context.Background(), uuid.New(), content("neutral"))
		require.True(t, store.IsPersistenceError(err))
	})
}
