package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/keylock"
	"github.com/arklim/auction-registry/internal/repository"
)

// PrincipalStore keeps principals, their login state, password history and the login audit trail.
type PrincipalStore struct {
	mu         sync.RWMutex
	principals map[string]domain.Principal
	byIdent    map[string]string
	history    map[string][]domain.PasswordHistoryEntry
	attempts   []domain.LoginAttempt

	loginLocks      *keylock.Mutex
	credentialLocks *keylock.Mutex
}

// NewPrincipalStore constructs an empty store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		principals:      make(map[string]domain.Principal),
		byIdent:         make(map[string]string),
		history:         make(map[string][]domain.PasswordHistoryEntry),
		loginLocks:      keylock.New(),
		credentialLocks: keylock.New(),
	}
}

// Put inserts or replaces a principal. Identifiers are matched case-insensitively.
func (s *PrincipalStore) Put(principal domain.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.principals[principal.ID]; ok {
		delete(s.byIdent, normalizeIdentifier(existing.Identifier))
	}
	principal.Capabilities = append([]string(nil), principal.Capabilities...)
	s.principals[principal.ID] = principal
	s.byIdent[normalizeIdentifier(principal.Identifier)] = principal.ID
}

// GetByID returns a copy of the principal.
func (s *PrincipalStore) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePrincipal(p), nil
}

// GetByIdentifier returns a copy of the principal with the given login identifier.
func (s *PrincipalStore) GetByIdentifier(_ context.Context, identifier string) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdent[normalizeIdentifier(identifier)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePrincipal(s.principals[id]), nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *PrincipalStore) UpdatePasswordHash(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	previousHash, previousUpdatedAt := p.PasswordHash, p.UpdatedAt
	remember(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		current := s.principals[id]
		current.PasswordHash = previousHash
		current.UpdatedAt = previousUpdatedAt
		s.principals[id] = current
	})
	p.PasswordHash = passwordHash
	p.UpdatedAt = changedAt.UTC()
	s.principals[id] = p
	return nil
}

// MutateLoginState applies fn to the principal's lockout state under a per-principal lock.
func (s *PrincipalStore) MutateLoginState(_ context.Context, principalID string, fn func(state *domain.LoginSecurityState) error) (domain.LoginSecurityState, error) {
	release := s.loginLocks.Lock(principalID)
	defer release()

	s.mu.RLock()
	p, ok := s.principals[principalID]
	s.mu.RUnlock()
	if !ok {
		return domain.LoginSecurityState{}, repository.ErrNotFound
	}

	state := cloneLoginState(p.LoginState)
	if err := fn(&state); err != nil {
		return cloneLoginState(p.LoginState), err
	}

	s.mu.Lock()
	current := s.principals[principalID]
	current.LoginState = cloneLoginState(state)
	s.principals[principalID] = current
	s.mu.Unlock()

	return state, nil
}

// ListRecent returns up to limit history entries, newest first.
func (s *PrincipalStore) ListRecent(_ context.Context, principalID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[principalID]
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.PasswordHistoryEntry, n)
	copy(out, entries[:n])
	return out, nil
}

// Append records a history entry.
func (s *PrincipalStore) Append(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rememberHistory(ctx, entry.PrincipalID)

	entries := append(s.history[entry.PrincipalID], entry)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].SetAt.After(entries[j].SetAt) })
	s.history[entry.PrincipalID] = entries
	return nil
}

// Prune keeps the keep most recent entries.
func (s *PrincipalStore) Prune(ctx context.Context, principalID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rememberHistory(ctx, principalID)

	if entries := s.history[principalID]; len(entries) > keep {
		s.history[principalID] = append([]domain.PasswordHistoryEntry(nil), entries[:keep]...)
	}
	return nil
}

// Do runs fn with the principal's credential lock held and undoes its writes on error.
func (s *PrincipalStore) Do(ctx context.Context, principalID string, fn func(ctx context.Context, scope port.CredentialScope) error) error {
	release := s.credentialLocks.Lock(principalID)
	defer release()

	txCtx, j := withJournal(ctx)
	if err := fn(txCtx, credentialScope{store: s}); err != nil {
		j.rollback()
		return err
	}
	return nil
}

// rememberHistory must be called with s.mu held.
func (s *PrincipalStore) rememberHistory(ctx context.Context, principalID string) {
	saved := append([]domain.PasswordHistoryEntry(nil), s.history[principalID]...)
	remember(ctx, func() {
		s.mu.Lock()
		s.history[principalID] = saved
		s.mu.Unlock()
	})
}

// RecordAttempt appends to the login audit trail.
func (s *PrincipalStore) RecordAttempt(_ context.Context, attempt domain.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.attempts = append(s.attempts, attempt)
	s.mu.Unlock()
	return nil
}

// Attempts returns a copy of the login audit trail.
func (s *PrincipalStore) Attempts() []domain.LoginAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LoginAttempt(nil), s.attempts...)
}

// HasCapability reports whether the principal holds capability.
func (s *PrincipalStore) HasCapability(_ context.Context, principalID string, capability domain.Capability) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[principalID]
	if !ok {
		return false, nil
	}
	return p.HasCapability(capability), nil
}

// ListHolders returns the ids of active principals holding capability.
func (s *PrincipalStore) ListHolders(_ context.Context, capability domain.Capability) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0)
	for id, p := range s.principals {
		if p.Active && p.HasCapability(capability) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

type credentialScope struct {
	store *PrincipalStore
}

func (c credentialScope) Principals() port.PrincipalRepository    { return c.store }
func (c credentialScope) History() port.PasswordHistoryRepository { return c.store }

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func clonePrincipal(p domain.Principal) *domain.Principal {
	out := p
	out.Capabilities = append([]string(nil), p.Capabilities...)
	out.LoginState = cloneLoginState(p.LoginState)
	return &out
}

func cloneLoginState(in domain.LoginSecurityState) domain.LoginSecurityState {
	out := in
	if in.LockedUntil != nil {
		until := *in.LockedUntil
		out.LockedUntil = &until
	}
	return out
}

var (
	_ port.PrincipalRepository       = (*PrincipalStore)(nil)
	_ port.LoginStateRepository      = (*PrincipalStore)(nil)
	_ port.PasswordHistoryRepository = (*PrincipalStore)(nil)
	_ port.CredentialUnitOfWork      = (*PrincipalStore)(nil)
	_ port.LoginAuditRepository      = (*PrincipalStore)(nil)
	_ port.CapabilityLookup          = (*PrincipalStore)(nil)
)
