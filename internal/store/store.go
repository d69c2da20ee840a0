// Package store provides storage backends for CareBridge.
//
// It defines the Store interface over user profiles, chat history, handoff
// requests, and agents, with in-memory, SQLite, and PostgreSQL implementations.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"carebridge/internal/models"
)

// Store is the persistence boundary used by the flow packages.
//
// GetProfile returns models.ErrProfileNotFound when no profile exists for the
// identifier, so callers can tell "new user" apart from a backend outage.
type Store interface {
	// GetProfile retrieves the profile for a phone identifier.
	GetProfile(phone string) (*models.UserProfile, error)
	// SaveProfile upserts a profile by its phone identifier.
	SaveProfile(p models.UserProfile) error

	// AddChatEntry appends one immutable chat entry.
	AddChatEntry(e models.ChatEntry) error
	// RecentChatEntries returns up to n entries for the user, newest first.
	RecentChatEntries(phone string, n int) ([]models.ChatEntry, error)

	// CreateHandoff inserts a new handoff request.
	CreateHandoff(r models.HandoffRequest) error
	// GetHandoff retrieves a handoff request by id, or models.ErrHandoffNotFound.
	GetHandoff(id string) (*models.HandoffRequest, error)
	// ActiveHandoffForUser returns the user's waiting or assigned request, or
	// (nil, nil) when the user has none.
	ActiveHandoffForUser(phone string) (*models.HandoffRequest, error)
	// PendingHandoffs returns all waiting requests.
	PendingHandoffs() ([]models.HandoffRequest, error)
	// AssignHandoff binds an agent to a waiting request. It returns
	// models.ErrHandoffNotFound or models.ErrHandoffNotWaiting on failure and
	// leaves the request unchanged.
	AssignHandoff(id, agentID string, at time.Time) error
	// CompleteHandoff marks an assigned request completed. Same error contract
	// as AssignHandoff.
	CompleteHandoff(id string) error

	// SaveAgent upserts an agent record.
	SaveAgent(a models.Agent) error
	// GetAgent retrieves an agent by id, or models.ErrAgentNotFound.
	GetAgent(id string) (*models.Agent, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL-style connection strings and
// "sqlite" otherwise (a bare file path is treated as SQLite).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a Store backed by process memory. It is the conforming
// implementation used in tests and when no DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
	entries  []models.ChatEntry
	handoffs map[string]models.HandoffRequest
	agents   map[string]models.Agent
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("store.NewInMemoryStore: creating in-memory store")
	return &InMemoryStore{
		profiles: make(map[string]models.UserProfile),
		handoffs: make(map[string]models.HandoffRequest),
		agents:   make(map[string]models.Agent),
	}
}

// GetProfile retrieves a profile or models.ErrProfileNotFound.
func (s *InMemoryStore) GetProfile(phone string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[phone]
	if !ok {
		return nil, models.ErrProfileNotFound
	}
	cp := p
	return &cp, nil
}

// SaveProfile upserts a profile after validation.
func (s *InMemoryStore) SaveProfile(p models.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.PhoneNumber] = p
	return nil
}

// AddChatEntry appends a chat entry in arrival order.
func (s *InMemoryStore) AddChatEntry(e models.ChatEntry) error {
	if e.PhoneNumber == "" {
		return models.ErrEmptyIdentifier
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// RecentChatEntries returns up to n entries for the user, newest first.
func (s *InMemoryStore) RecentChatEntries(phone string, n int) ([]models.ChatEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Entries are appended chronologically; walk backwards for newest first.
	var matched []models.ChatEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].PhoneNumber == phone {
			matched = append(matched, s.entries[i])
			if n >= 0 && len(matched) == n {
				break
			}
		}
	}
	return matched, nil
}

// CreateHandoff inserts a handoff request.
func (s *InMemoryStore) CreateHandoff(r models.HandoffRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs[r.ID] = r
	return nil
}

// GetHandoff retrieves a request by id.
func (s *InMemoryStore) GetHandoff(id string) (*models.HandoffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.handoffs[id]
	if !ok {
		return nil, models.ErrHandoffNotFound
	}
	cp := r
	return &cp, nil
}

// ActiveHandoffForUser returns the user's waiting or assigned request, if any.
func (s *InMemoryStore) ActiveHandoffForUser(phone string) (*models.HandoffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.handoffs {
		if r.PhoneNumber == phone && r.Active() {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

// PendingHandoffs returns all waiting requests ordered oldest first.
func (s *InMemoryStore) PendingHandoffs() ([]models.HandoffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []models.HandoffRequest
	for _, r := range s.handoffs {
		if r.Status == models.HandoffWaiting {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

// AssignHandoff binds an agent to a waiting request.
func (s *InMemoryStore) AssignHandoff(id, agentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.handoffs[id]
	if !ok {
		return models.ErrHandoffNotFound
	}
	if r.Status != models.HandoffWaiting {
		return models.ErrHandoffNotWaiting
	}
	r.Status = models.HandoffAssigned
	r.AgentID = agentID
	r.AssignedAt = &at
	s.handoffs[id] = r
	return nil
}

// CompleteHandoff marks an assigned request completed.
func (s *InMemoryStore) CompleteHandoff(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.handoffs[id]
	if !ok {
		return models.ErrHandoffNotFound
	}
	if r.Status != models.HandoffAssigned {
		return models.ErrHandoffNotWaiting
	}
	r.Status = models.HandoffCompleted
	s.handoffs[id] = r
	return nil
}

// SaveAgent upserts an agent record.
func (s *InMemoryStore) SaveAgent(a models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

// GetAgent retrieves an agent by id.
func (s *InMemoryStore) GetAgent(id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, models.ErrAgentNotFound
	}
	cp := a
	return &cp, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
