package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using in-memory storage.
// This implementation is for development and testing only - data is lost on restart.
type Store struct {
	mu sync.RWMutex

	organizations  map[uuid.UUID]*models.Organization // org_id -> Organization
	users          map[string]*models.User            // user_id -> User
	usersByEmail   map[string]string                  // email -> user_id
	knowledgeBases map[uuid.UUID][]byte               // org_id -> encoded content
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		organizations:  make(map[uuid.UUID]*models.Organization),
		users:          make(map[string]*models.User),
		usersByEmail:   make(map[string]string),
		knowledgeBases: make(map[uuid.UUID][]byte),
	}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return nil
}

// FindUserByEmail retrieves a user and their organization name by email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, exists := s.usersByEmail[normalizeEmail(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	// Clone to avoid external modifications
	clone := *s.users[userID]
	if org, ok := s.organizations[clone.OrgID]; ok {
		clone.OrgName = org.Name
	}

	return &clone, nil
}

// CreateUserAndOrganization creates both records under a single lock so that
// a failed user insert never leaves an organization behind.
func (s *Store) CreateUserAndOrganization(ctx context.Context, claims *models.IdentityClaims, orgName string) (*models.User, error) {
	if err := claims.Validate(); err != nil {
		return nil, store.NewPersistenceError("create user and organization", store.KindConstraint, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[claims.Subject]; exists {
		return nil, store.NewPersistenceError("create user and organization", store.KindConstraint,
			fmt.Errorf("%w: subject %s", store.ErrUserAlreadyExists, claims.Subject))
	}
	if _, exists := s.usersByEmail[normalizeEmail(claims.Email)]; exists {
		return nil, store.NewPersistenceError("create user and organization", store.KindConstraint,
			fmt.Errorf("%w: email %s", store.ErrUserAlreadyExists, claims.Email))
	}

	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, store.NewPersistenceError("create user and organization", store.KindUnknown, err)
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:     orgID,
		Name:      orgName,
		CreatedAt: now,
	}
	user := &models.User{
		UserID:     claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		PictureURL: claims.Picture,
		OrgID:      orgID,
		CreatedAt:  now,
	}

	s.organizations[orgID] = org
	s.users[user.UserID] = user
	s.usersByEmail[normalizeEmail(user.Email)] = user.UserID

	clone := *user
	clone.OrgName = org.Name
	return &clone, nil
}

// SaveKnowledgeBase stores the content, replacing anything saved before.
func (s *Store) SaveKnowledgeBase(ctx context.Context, orgID uuid.UUID, content *models.KnowledgeBaseContent) error {
	data, err := models.MarshalContent(content)
	if err != nil {
		return store.NewPersistenceError("save knowledge base", store.KindUnknown, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[orgID]; !exists {
		return store.NewPersistenceError("save knowledge base", store.KindConstraint,
			fmt.Errorf("organization %s does not exist", orgID))
	}

	s.knowledgeBases[orgID] = data

	return nil
}

// GetKnowledgeBase retrieves the knowledge base content for an organization.
func (s *Store) GetKnowledgeBase(ctx context.Context, orgID uuid.UUID) (*models.KnowledgeBaseContent, error) {
	s.mu.RLock()
	data, exists := s.knowledgeBases[orgID]
	s.mu.RUnlock()

	if !exists {
		return nil, store.ErrKnowledgeBaseNotFound
	}

	content, err := models.UnmarshalContent(data)
	if err != nil {
		return nil, store.NewPersistenceError("get knowledge base", store.KindUnknown, err)
	}

	return content, nil
}

// CountOrganizations returns the number of organizations, used to check for orphans in tests.
func (s *Store) CountOrganizations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.organizations)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
