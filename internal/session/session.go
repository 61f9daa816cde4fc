package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/wolfeidau/docsplain/internal/models"
)

// FlashLevel controls how a flash message is rendered.
type FlashLevel string

const (
	FlashInfo    FlashLevel = "info"
	FlashWarning FlashLevel = "warning"
	FlashError   FlashLevel = "error"
)

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Level   FlashLevel
	Message string
}

// Session is the process-local state of one interactive user session.
type Session struct {
	ID    string
	State State

	// User is set once the user has been found or registered.
	User *models.User

	// PendingClaims holds the verified identity of a user who still has to register.
	PendingClaims *models.IdentityClaims

	// GeneratedNotes is the text of the last successful generation.
	GeneratedNotes string

	// OAuthState is the anti-forgery value sent with the last authorize redirect.
	OAuthState string

	ConsumedCodes map[string]struct{}
	Flashes       []Flash

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	IPAddress string
	UserAgent string
}

// New creates a session in the login state that expires after ttl.
func New(ttl time.Duration) (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:            id,
		State:         StateLogin,
		ConsumedCodes: map[string]struct{}{},
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		LastUsedAt:    now,
	}, nil
}

func newID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base58.Encode(buf), nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Apply moves the session to the state reached by event.
// Logout and reset also clear all session data.
func (s *Session) Apply(event Event) error {
	next, err := Transition(s.State, event)
	if err != nil {
		return err
	}

	if event == EventLogout || event == EventReset {
		s.Clear()
	}

	s.State = next
	return nil
}

// Clear drops everything the session has learned and returns it to login.
// The id, lifetime and audit fields are kept.
func (s *Session) Clear() {
	s.State = StateLogin
	s.User = nil
	s.PendingClaims = nil
	s.GeneratedNotes = ""
	s.OAuthState = ""
	s.ConsumedCodes = map[string]struct{}{}
}

// ConsumeCode records code as used. It returns false if the code was already consumed.
func (s *Session) ConsumeCode(code string) bool {
	if s.ConsumedCodes == nil {
		s.ConsumedCodes = map[string]struct{}{}
	}
	if _, seen := s.ConsumedCodes[code]; seen {
		return false
	}
	s.ConsumedCodes[code] = struct{}{}
	return true
}

// AddFlash queues a message for the next render.
func (s *Session) AddFlash(level FlashLevel, format string, args ...any) {
	s.Flashes = append(s.Flashes, Flash{Level: level, Message: fmt.Sprintf(format, args...)})
}

// TakeFlashes returns and removes the queued messages.
func (s *Session) TakeFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	return flashes
}

// ErrCorrupt matches any *CorruptionError via errors.Is.
var ErrCorrupt = errors.New("session corrupted")

// CorruptionError reports in-memory session data that no longer satisfies the flow's invariants.
type CorruptionError struct {
	State  State
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session corrupted in state %q: %s: %v", e.State, e.Reason, e.Err)
	}
	return fmt.Sprintf("session corrupted in state %q: %s", e.State, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func (e *CorruptionError) Is(target error) bool { return target == ErrCorrupt }

// Check verifies that the data held by the session matches its state.
func (s *Session) Check() error {
	if !s.State.Valid() {
		return &CorruptionError{State: s.State, Reason: "unknown state"}
	}

	switch s.State {
	case StateRegister:
		if s.PendingClaims == nil {
			return &CorruptionError{State: s.State, Reason: "no pending identity"}
		}
		if err := s.PendingClaims.Validate(); err != nil {
			return &CorruptionError{State: s.State, Reason: "invalid pending identity", Err: err}
		}
	case StateCheckKB, StateSetupKB, StateMainApp:
		if s.User == nil {
			return &CorruptionError{State: s.State, Reason: "no user"}
		}
		if err := s.User.Validate(); err != nil {
			return &CorruptionError{State: s.State, Reason: "invalid user", Err: err}
		}
	}

	return nil
}
