package memory

import (
	"context"
	"sync"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/pkg/cmap"
)

// DefaultMaxSessionsPerUser is the default quota of live sessions per user.
const DefaultMaxSessionsPerUser = 16

// SessionStore provides in-memory transfer session storage with
// secondary indexes by user and by token.
//
// Sessions are kept in memory only. Their scratch material (card
// challenges, session keys, pending card keys) must never be written
// to disk, and a session that does not survive a restart simply times
// out on the card side and is retried.
type SessionStore struct {
	// Primary index: SessionID -> TransferSession
	sessions *cmap.Map[string, *domain.TransferSession]

	// Secondary index: TokenID -> set of SessionIDs
	tokenIndex *TokenIndex

	// Secondary index: UserID -> set of SessionIDs
	userIndex *UserIndex

	// Configuration
	maxSessionsPerUser int

	// Global lock for operations requiring atomicity across indexes
	mu sync.RWMutex
}

// Option configures the SessionStore.
type Option func(*SessionStore)

// WithMaxSessionsPerUser sets the maximum live sessions per user.
func WithMaxSessionsPerUser(max int) Option {
	return func(s *SessionStore) {
		s.maxSessionsPerUser = max
	}
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore(opts ...Option) *SessionStore {
	s := &SessionStore{
		sessions:           cmap.New[string, *domain.TransferSession](),
		tokenIndex:         NewTokenIndex(),
		userIndex:          NewUserIndex(),
		maxSessionsPerUser: DefaultMaxSessionsPerUser,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get retrieves a session by ID.
//
// Expired and terminal sessions are still returned; the caller decides
// how far an expired session may be used. Missing sessions yield
// ErrSessionNotFound.
func (s *SessionStore) Get(_ context.Context, id string) (*domain.TransferSession, error) {
	session, ok := s.sessions.Get(domain.NormalizeSessionID(id))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	// Return a clone to prevent external modification
	return session.Clone(), nil
}

// GetByToken retrieves the live session holding a token, if any.
//
// Terminal and expired sessions are skipped.
func (s *SessionStore) GetByToken(_ context.Context, tokenID string) (*domain.TransferSession, error) {
	for _, id := range s.tokenIndex.Get(tokenID) {
		session, ok := s.sessions.Get(id)
		if !ok {
			continue
		}
		if session.IsTerminal() || session.IsExpired() {
			continue
		}
		return session.Clone(), nil
	}

	return nil, domain.ErrSessionNotFound
}

// Create stores a new session.
func (s *SessionStore) Create(_ context.Context, session *domain.TransferSession) error {
	if err := session.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check quota
	if s.userIndex.Count(session.UserID) >= s.maxSessionsPerUser {
		return domain.ErrRateLimited.WithDetails("session quota exceeded for user")
	}

	// Check for ID conflict
	if s.sessions.Has(session.ID) {
		return domain.ErrInvalidRequest.WithDetails("session id conflict")
	}

	// Store session (clone to prevent external modification)
	clone := session.Clone()
	s.sessions.Set(session.ID, clone)

	// Update indexes
	s.tokenIndex.Add(session.TokenID, session.ID)
	s.userIndex.Add(session.UserID, session.ID)

	return nil
}

// Update updates an existing session with optimistic locking.
//
// On success the stored copy and the caller's session both carry the
// incremented version.
func (s *SessionStore) Update(_ context.Context, session *domain.TransferSession, expectedVersion uint64) error {
	if err := session.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions.Get(session.ID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	// Optimistic locking: check version
	if existing.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	clone := session.Clone()
	clone.IncrVersion()

	s.sessions.Set(session.ID, clone)

	session.Version = clone.Version

	return nil
}

// Delete removes a session and wipes its scratch material.
func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.Pop(domain.NormalizeSessionID(id))
	if !ok {
		return domain.ErrSessionNotFound
	}

	s.tokenIndex.Remove(session.TokenID, session.ID)
	s.userIndex.Remove(session.UserID, session.ID)
	session.Scratch.Wipe()

	return nil
}

// ListByUser returns all sessions for a user.
func (s *SessionStore) ListByUser(_ context.Context, userID string) ([]*domain.TransferSession, error) {
	sessionIDs := s.userIndex.Get(userID)
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	sessions := make([]*domain.TransferSession, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		session, ok := s.sessions.Get(id)
		if !ok {
			continue // Skip if session was deleted
		}
		sessions = append(sessions, session.Clone())
	}

	return sessions, nil
}

// Expired returns all non-terminal sessions past their deadline.
//
// The sweeper uses this to fail timed-out transfers and release their
// leases.
func (s *SessionStore) Expired(_ context.Context) ([]*domain.TransferSession, error) {
	var expired []*domain.TransferSession

	s.sessions.Range(func(_ string, session *domain.TransferSession) bool {
		if !session.IsTerminal() && session.IsExpired() {
			expired = append(expired, session.Clone())
		}
		return true
	})

	return expired, nil
}

// Scan iterates over all sessions.
// The callback receives a clone of each session.
// Return false from the callback to stop iteration.
func (s *SessionStore) Scan(fn func(*domain.TransferSession) bool) {
	s.sessions.Range(func(_ string, session *domain.TransferSession) bool {
		return fn(session.Clone())
	})
}

// Count returns the total number of sessions.
func (s *SessionStore) Count() int {
	return s.sessions.Count()
}

// CountByUser returns the number of sessions for a user.
func (s *SessionStore) CountByUser(userID string) int {
	return s.userIndex.Count(userID)
}

// CountByToken returns the number of sessions holding a token.
func (s *SessionStore) CountByToken(tokenID string) int {
	return s.tokenIndex.Count(tokenID)
}

// DeleteTerminal removes terminal sessions older than the given cutoff
// (Unix milliseconds on ExpiresAt). Returns the number removed.
//
// Terminal sessions are kept around briefly so clients polling a
// finished transfer still get a definite answer instead of a 404.
func (s *SessionStore) DeleteTerminal(_ context.Context, cutoff int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toDelete []string

	s.sessions.Range(func(id string, session *domain.TransferSession) bool {
		if session.IsTerminal() && session.ExpiresAt < cutoff {
			toDelete = append(toDelete, id)
		}
		return true
	})

	for _, id := range toDelete {
		session, ok := s.sessions.Pop(id)
		if !ok {
			continue
		}
		s.tokenIndex.Remove(session.TokenID, session.ID)
		s.userIndex.Remove(session.UserID, session.ID)
		session.Scratch.Wipe()
	}

	return len(toDelete), nil
}
