//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*Store, func()) {
	container, err := tcpostgres.Run(ctx, "postgres:18-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)

	st := NewStore(pool)
	require.NoError(t, st.EnsureSchema(ctx))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return st, cleanup
}

func countRows(t *testing.T, st *Store, table string) int {
	var n int
	err := st.pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestIntegration_Store(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	claims := &models.IdentityClaims{Subject: "auth0|ann", Email: "a@x.com", Name: "Ann"}

	t.Run("ensure schema is idempotent", func(t *testing.T) {
		require.NoError(t, st.EnsureSchema(ctx))
		require.NoError(t, st.EnsureSchema(ctx))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := st.FindUserByEmail(ctx, "a@x.com")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	var user *models.User

	t.Run("create user and organization", func(t *testing.T) {
		var err error
		user, err = st.CreateUserAndOrganization(ctx, claims, "Acme")
		require.NoError(t, err)
		require.Equal(t, "Acme", user.OrgName)

		found, err := st.FindUserByEmail(ctx, "A@x.com")
		require.NoError(t, err)
		require.Equal(t, user.UserID, found.UserID)
		require.Equal(t, user.OrgID, found.OrgID)
		require.Equal(t, "Acme", found.OrgName)
	})

	t.Run("duplicate email rolls back the organization", func(t *testing.T) {
		orgsBefore := countRows(t, st, "organizations")

		dup := *claims
		dup.Subject = "auth0|other"
		_, err := st.CreateUserAndOrganization(ctx, &dup, "Other")
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)

		var pe *store.PersistenceError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, store.KindConstraint, pe.Kind)

		require.Equal(t, orgsBefore, countRows(t, st, "organizations"))
		require.Equal(t, 1, countRows(t, st, "users"))
	})

	t.Run("knowledge base upsert", func(t *testing.T) {
		_, err := st.GetKnowledgeBase(ctx, user.OrgID)
		require.ErrorIs(t, err, store.ErrKnowledgeBaseNotFound)

		first := &models.KnowledgeBaseContent{
			CompanyName:       "Acme",
			ProductCategories: map[string]models.ProductCategory{},
			WritingStyleGuide: models.WritingStyleGuide{TerminologyRules: map[string]string{}},
		}
		require.NoError(t, st.SaveKnowledgeBase(ctx, user.OrgID, first))
		require.NoError(t, st.SaveKnowledgeBase(ctx, user.OrgID, first))

		got, err := st.GetKnowledgeBase(ctx, user.OrgID)
		require.NoError(t, err)
		require.Equal(t, first, got)

		second := &models.KnowledgeBaseContent{
			CompanyName: "Acme Corp",
			ProductCategories: map[string]models.ProductCategory{
				"UI/UX": {Description: "Interface", KeywordsAndAliases: []string{"UI", "design"}},
			},
			WritingStyleGuide: models.WritingStyleGuide{
				ProfessionalToneRule: "Neutral",
				TerminologyRules:     map[string]string{"OldName": "NewName"},
			},
		}
		require.NoError(t, st.SaveKnowledgeBase(ctx, user.OrgID, second))

		got, err = st.GetKnowledgeBase(ctx, user.OrgID)
		require.NoError(t, err)
		require.Equal(t, second, got)
		require.Equal(t, 1, countRows(t, st, "knowledge_bases"))
	})

	t.Run("knowledge base for unknown organization", func(t *testing.T) {
		err := st.SaveKnowledgeBase(ctx, uuid.New(), &models.KnowledgeBaseContent{CompanyName: "x"})
		var pe *store.PersistenceError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, store.KindConstraint, pe.Kind)
	})

	t.Run("concurrent registration with the same email creates one user", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 5)
		for i := range 5 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c := &models.IdentityClaims{Subject: uuid.NewString(), Email: "race@x.com"}
				_, errs[i] = st.CreateUserAndOrganization(ctx, c, "Race")
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		require.Equal(t, 1, succeeded)

		var orgs int
		err := st.pool.QueryRow(ctx, "SELECT count(*) FROM organizations WHERE name = 'Race'").Scan(&orgs)
		require.NoError(t, err)
		require.Equal(t, 1, orgs)
	})
}
