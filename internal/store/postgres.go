// Package store provides storage backends for CareBridge.
//
// This file implements the PostgreSQL-backed store, selected automatically when
// the configured DSN looks like a PostgreSQL connection string.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"carebridge/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN and runs
// migrations to ensure the schema exists.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewPostgresStore invoked", "dsn_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied")

	return &PostgresStore{db: db}, nil
}

// GetProfile retrieves a profile or models.ErrProfileNotFound.
func (s *PostgresStore) GetProfile(phone string) (*models.UserProfile, error) {
	row := s.db.QueryRow(`SELECT phone_number, state, status, name, age, medical_history, conditions, medications, created_at, updated_at FROM user_profiles WHERE phone_number = $1`, phone)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrProfileNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get profile for %s: %w", phone, err)
	}
	return p, nil
}

// SaveProfile upserts a profile by its phone identifier.
func (s *PostgresStore) SaveProfile(p models.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	args, err := profileArgs(p, time.Now())
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO user_profiles (phone_number, state, status, name, age, medical_history, conditions, medications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (phone_number) DO UPDATE SET
			state=EXCLUDED.state, status=EXCLUDED.status, name=EXCLUDED.name, age=EXCLUDED.age,
			medical_history=EXCLUDED.medical_history, conditions=EXCLUDED.conditions,
			medications=EXCLUDED.medications, updated_at=EXCLUDED.updated_at`, args...)
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "phone", p.PhoneNumber)
		return fmt.Errorf("failed to save profile for %s: %w", p.PhoneNumber, err)
	}
	return nil
}

// AddChatEntry appends one chat entry.
func (s *PostgresStore) AddChatEntry(e models.ChatEntry) error {
	_, err := s.db.Exec(`INSERT INTO chat_entries (phone_number, message, response, timestamp) VALUES ($1, $2, $3, $4)`,
		e.PhoneNumber, e.Message, e.Response, e.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddChatEntry failed", "error", err, "phone", e.PhoneNumber)
		return fmt.Errorf("failed to insert chat entry for %s: %w", e.PhoneNumber, err)
	}
	return nil
}

// RecentChatEntries returns up to n entries for the user, newest first.
func (s *PostgresStore) RecentChatEntries(phone string, n int) ([]models.ChatEntry, error) {
	rows, err := s.db.Query(`SELECT phone_number, message, response, timestamp FROM chat_entries
		WHERE phone_number = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`, phone, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ChatEntry
	for rows.Next() {
		var e models.ChatEntry
		if err := rows.Scan(&e.PhoneNumber, &e.Message, &e.Response, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat entry rows: %w", err)
	}
	return entries, nil
}

// CreateHandoff inserts a new handoff request.
func (s *PostgresStore) CreateHandoff(r models.HandoffRequest) error {
	var assignedAt interface{}
	if r.AssignedAt != nil {
		assignedAt = *r.AssignedAt
	}
	_, err := s.db.Exec(`INSERT INTO handoff_requests (id, phone_number, status, agent_id, created_at, assigned_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.PhoneNumber, string(r.Status), nilIfEmpty(r.AgentID), r.CreatedAt, assignedAt)
	if err != nil {
		slog.Error("PostgresStore CreateHandoff failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to insert handoff request %s: %w", r.ID, err)
	}
	return nil
}

// GetHandoff retrieves a handoff request by id.
func (s *PostgresStore) GetHandoff(id string) (*models.HandoffRequest, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, status, agent_id, created_at, assigned_at FROM handoff_requests WHERE id = $1`, id)
	r, err := scanHandoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrHandoffNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get handoff request %s: %w", id, err)
	}
	return r, nil
}

// ActiveHandoffForUser returns the user's waiting or assigned request, if any.
func (s *PostgresStore) ActiveHandoffForUser(phone string) (*models.HandoffRequest, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, status, agent_id, created_at, assigned_at FROM handoff_requests
		WHERE phone_number = $1 AND status IN ($2, $3) LIMIT 1`,
		phone, string(models.HandoffWaiting), string(models.HandoffAssigned))
	r, err := scanHandoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active handoff for %s: %w", phone, err)
	}
	return r, nil
}

// PendingHandoffs returns all waiting requests ordered oldest first.
func (s *PostgresStore) PendingHandoffs() ([]models.HandoffRequest, error) {
	rows, err := s.db.Query(`SELECT id, phone_number, status, agent_id, created_at, assigned_at FROM handoff_requests
		WHERE status = $1 ORDER BY created_at`, string(models.HandoffWaiting))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending handoffs: %w", err)
	}
	defer rows.Close()

	var pending []models.HandoffRequest
	for rows.Next() {
		r, err := scanHandoff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan handoff row: %w", err)
		}
		pending = append(pending, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate handoff rows: %w", err)
	}
	return pending, nil
}

// AssignHandoff binds an agent to a waiting request using a conditional update.
func (s *PostgresStore) AssignHandoff(id, agentID string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE handoff_requests SET status = $1, agent_id = $2, assigned_at = $3 WHERE id = $4 AND status = $5`,
		string(models.HandoffAssigned), agentID, at, id, string(models.HandoffWaiting))
	if err != nil {
		slog.Error("PostgresStore AssignHandoff failed", "error", err, "id", id, "agent", agentID)
		return fmt.Errorf("failed to assign handoff %s: %w", id, err)
	}
	return s.checkHandoffUpdated(res, id)
}

// CompleteHandoff marks an assigned request completed.
func (s *PostgresStore) CompleteHandoff(id string) error {
	res, err := s.db.Exec(`UPDATE handoff_requests SET status = $1 WHERE id = $2 AND status = $3`,
		string(models.HandoffCompleted), id, string(models.HandoffAssigned))
	if err != nil {
		slog.Error("PostgresStore CompleteHandoff failed", "error", err, "id", id)
		return fmt.Errorf("failed to complete handoff %s: %w", id, err)
	}
	return s.checkHandoffUpdated(res, id)
}

func (s *PostgresStore) checkHandoffUpdated(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for handoff %s: %w", id, err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetHandoff(id); errors.Is(err, models.ErrHandoffNotFound) {
		return models.ErrHandoffNotFound
	}
	return models.ErrHandoffNotWaiting
}

// SaveAgent upserts an agent record.
func (s *PostgresStore) SaveAgent(a models.Agent) error {
	chats, err := marshalList(a.ActiveChats)
	if err != nil {
		return err
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.Exec(`INSERT INTO agents (id, name, status, active_chats, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, status=EXCLUDED.status, active_chats=EXCLUDED.active_chats`,
		a.ID, a.Name, string(a.Status), chats, createdAt)
	if err != nil {
		slog.Error("PostgresStore SaveAgent failed", "error", err, "id", a.ID)
		return fmt.Errorf("failed to save agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent by id.
func (s *PostgresStore) GetAgent(id string) (*models.Agent, error) {
	var a models.Agent
	var chats sql.NullString
	err := s.db.QueryRow(`SELECT id, name, status, active_chats, created_at FROM agents WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Status, &chats, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}
	if a.ActiveChats, err = unmarshalList(chats); err != nil {
		return nil, err
	}
	return &a, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
