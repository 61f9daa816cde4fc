package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/docsplain/internal/models"
)

// Sentinel errors for store lookups and constraint checks
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
)

// UserStore resolves identities into tenant/user records.
type UserStore interface {
	// FindUserByEmail returns the user joined with its organization.
	// Returns ErrUserNotFound if no user has the email.
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)

	// CreateUserAndOrganization creates an organization and its first user atomically.
	// Either both rows exist afterwards or neither does.
	// Returns a *PersistenceError wrapping ErrUserAlreadyExists on duplicate email or subject.
	CreateUserAndOrganization(ctx context.Context, claims *models.IdentityClaims, orgName string) (*models.User, error)
}

// KnowledgeBaseStore persists the one knowledge base each organization may have.
type KnowledgeBaseStore interface {
	// SaveKnowledgeBase inserts the content or fully replaces the existing content (last write wins).
	SaveKnowledgeBase(ctx context.Context, orgID uuid.UUID, content *models.KnowledgeBaseContent) error

	// GetKnowledgeBase returns the stored content.
	// Returns ErrKnowledgeBaseNotFound if the organization has not saved one.
	GetKnowledgeBase(ctx context.Context, orgID uuid.UUID) (*models.KnowledgeBaseContent, error)
}

// SchemaManager creates the relational schema. EnsureSchema is idempotent.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

// Store is the full persistence layer.
type Store interface {
	UserStore
	KnowledgeBaseStore
	SchemaManager
}
