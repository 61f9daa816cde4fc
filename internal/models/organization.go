package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents an organization (tenant) in the system.
// It is created once, when its first user registers, and owns the knowledge base.
type Organization struct {
	OrgID     uuid.UUID // UUIDv7
	Name      string    // Display name, not unique
	CreatedAt time.Time
}
