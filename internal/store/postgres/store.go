package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL-backed store using the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// EnsureSchema applies any pending migrations. Safe to call on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := runMigrations(ctx, s.pool); err != nil {
		return mapPostgresError("ensure schema", err)
	}
	return nil
}

// FindUserByEmail retrieves a user and their organization by email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT u.id, u.email, u.name, u.picture_url, u.organization_id, o.name, u.created_at
		FROM users u
		JOIN organizations o ON u.organization_id = o.id
		WHERE lower(u.email) = lower($1)
	`

	var u models.User
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&u.UserID,
		&u.Email,
		&u.Name,
		&u.PictureURL,
		&u.OrgID,
		&u.OrgName,
		&u.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, mapPostgresError("find user by email", err)
	}

	return &u, nil
}

// CreateUserAndOrganization inserts the organization and then the user referencing it
// in one transaction. A failed user insert rolls back the organization.
func (s *Store) CreateUserAndOrganization(ctx context.Context, claims *models.IdentityClaims, orgName string) (*models.User, error) {
	const op = "create user and organization"

	if err := claims.Validate(); err != nil {
		return nil, store.NewPersistenceError(op, store.KindConstraint, err)
	}

	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, store.NewPersistenceError(op, store.KindUnknown, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		UserID:     claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		PictureURL: claims.Picture,
		OrgID:      orgID,
		OrgName:    orgName,
		CreatedAt:  now,
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organizations (id, name, created_at)
			VALUES ($1, $2, $3)
		`, orgID, orgName, now)
		if err != nil {
			return fmt.Errorf("failed to create organization: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO users (id, email, name, picture_url, organization_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, user.UserID, user.Email, user.Name, user.PictureURL, user.OrgID, user.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, mapPostgresError(op, err)
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Str("user_id", user.UserID).
		Msg("Created organization and user")

	return user, nil
}

// SaveKnowledgeBase upserts the organization's knowledge base, replacing the whole content.
func (s *Store) SaveKnowledgeBase(ctx context.Context, orgID uuid.UUID, content *models.KnowledgeBaseContent) error {
	const op = "save knowledge base"

	data, err := models.MarshalContent(content)
	if err != nil {
		return store.NewPersistenceError(op, store.KindUnknown, err)
	}

	kbID, err := uuid.NewV7()
	if err != nil {
		return store.NewPersistenceError(op, store.KindUnknown, err)
	}

	query := `
		INSERT INTO knowledge_bases (id, organization_id, content, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
	`

	if _, err = s.pool.Exec(ctx, query, kbID, orgID, data, time.Now().UTC()); err != nil {
		return mapPostgresError(op, err)
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Int("bytes", len(data)).
		Msg("Saved knowledge base")

	return nil
}

// GetKnowledgeBase retrieves the knowledge base content for an organization.
func (s *Store) GetKnowledgeBase(ctx context.Context, orgID uuid.UUID) (*models.KnowledgeBaseContent, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT content FROM knowledge_bases WHERE organization_id = $1`, orgID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrKnowledgeBaseNotFound
		}
		return nil, mapPostgresError("get knowledge base", err)
	}

	content, err := models.UnmarshalContent(data)
	if err != nil {
		return nil, store.NewPersistenceError("get knowledge base", store.KindUnknown, err)
	}

	return content, nil
}
