// Package store provides storage backends for CareBridge.
//
// This file implements the SQLite-backed store, the default persistence layer.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"carebridge/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewSQLiteStore invoked", "dsn_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

// GetProfile retrieves a profile or models.ErrProfileNotFound.
func (s *SQLiteStore) GetProfile(phone string) (*models.UserProfile, error) {
	row := s.db.QueryRow(`SELECT phone_number, state, status, name, age, medical_history, conditions, medications, created_at, updated_at FROM user_profiles WHERE phone_number = ?`, phone)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrProfileNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get profile for %s: %w", phone, err)
	}
	return p, nil
}

// SaveProfile upserts a profile by its phone identifier.
func (s *SQLiteStore) SaveProfile(p models.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	args, err := profileArgs(p, time.Now())
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO user_profiles (phone_number, state, status, name, age, medical_history, conditions, medications, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			state=excluded.state, status=excluded.status, name=excluded.name, age=excluded.age,
			medical_history=excluded.medical_history, conditions=excluded.conditions,
			medications=excluded.medications, updated_at=excluded.updated_at`, args...)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "phone", p.PhoneNumber)
		return fmt.Errorf("failed to save profile for %s: %w", p.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore SaveProfile succeeded", "phone", p.PhoneNumber, "state", p.State)
	return nil
}

// AddChatEntry appends one chat entry.
func (s *SQLiteStore) AddChatEntry(e models.ChatEntry) error {
	_, err := s.db.Exec(`INSERT INTO chat_entries (phone_number, message, response, timestamp) VALUES (?, ?, ?, ?)`,
		e.PhoneNumber, e.Message, e.Response, e.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddChatEntry failed", "error", err, "phone", e.PhoneNumber)
		return fmt.Errorf("failed to insert chat entry for %s: %w", e.PhoneNumber, err)
	}
	return nil
}

// RecentChatEntries returns up to n entries for the user, newest first.
func (s *SQLiteStore) RecentChatEntries(phone string, n int) ([]models.ChatEntry, error) {
	rows, err := s.db.Query(`SELECT phone_number, message, response, timestamp FROM chat_entries
		WHERE phone_number = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, phone, n)
	if err != nil {
		slog.Error("SQLiteStore RecentChatEntries query failed", "error", err, "phone", phone)
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
func (s *SQLiteStore) CreateHandoff(r models.HandoffRequest) error {
	var assignedAt interface{}
	if r.AssignedAt != nil {
		assignedAt = *r.AssignedAt
	}
	_, err := s.db.Exec(`INSERT INTO handoff_requests (id, phone_number, status, agent_id, created_at, assigned_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.PhoneNumber, string(r.Status), nilIfEmpty(r.AgentID), r.CreatedAt, assignedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateHandoff failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to insert handoff request %s: %w", r.ID, err)
	}
	return nil
}

// GetHandoff retrieves a handoff request by id.
func (s *SQLiteStore) GetHandoff(id string) (*models.HandoffRequest, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, status, agent_id, created_at, assigned_at FROM handoff_requests WHERE id = ?`, id)
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
func (s *SQLiteStore) ActiveHandoffForUser(phone string) (*models.HandoffRequest, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, status, agent_id, created_at, assigned_at FROM handoff_requests
		WHERE phone_number = ? AND status IN (?, ?) LIMIT 1`,
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
func (s *SQLiteStore) PendingHandoffs() ([]models.HandoffRequest, error) {
	rows, err := s.db.Query(`SELECT id, phone_number, status, agent_id, created_at, assigned_at FROM handoff_requests
		WHERE status = ? ORDER BY created_at`, string(models.HandoffWaiting))
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

// AssignHandoff binds an agent to a waiting request using a conditional update
// so concurrent assignments cannot both succeed.
func (s *SQLiteStore) AssignHandoff(id, agentID string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE handoff_requests SET status = ?, agent_id = ?, assigned_at = ? WHERE id = ? AND status = ?`,
		string(models.HandoffAssigned), agentID, at, id, string(models.HandoffWaiting))
	if err != nil {
		slog.Error("SQLiteStore AssignHandoff failed", "error", err, "id", id, "agent", agentID)
		return fmt.Errorf("failed to assign handoff %s: %w", id, err)
	}
	return s.checkHandoffUpdated(res, id)
}

// CompleteHandoff marks an assigned request completed.
func (s *SQLiteStore) CompleteHandoff(id string) error {
	res, err := s.db.Exec(`UPDATE handoff_requests SET status = ? WHERE id = ? AND status = ?`,
		string(models.HandoffCompleted), id, string(models.HandoffAssigned))
	if err != nil {
		slog.Error("SQLiteStore CompleteHandoff failed", "error", err, "id", id)
		return fmt.Errorf("failed to complete handoff %s: %w", id, err)
	}
	return s.checkHandoffUpdated(res, id)
}

// checkHandoffUpdated maps a zero-row conditional update to the precise
// not-found / wrong-state error.
func (s *SQLiteStore) checkHandoffUpdated(res sql.Result, id string) error {
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
func (s *SQLiteStore) SaveAgent(a models.Agent) error {
	chats, err := marshalList(a.ActiveChats)
	if err != nil {
		return err
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.Exec(`INSERT INTO agents (id, name, status, active_chats, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, status=excluded.status, active_chats=excluded.active_chats`,
		a.ID, a.Name, string(a.Status), chats, createdAt)
	if err != nil {
		slog.Error("SQLiteStore SaveAgent failed", "error", err, "id", a.ID)
		return fmt.Errorf("failed to save agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves an agent by id.
func (s *SQLiteStore) GetAgent(id string) (*models.Agent, error) {
	var a models.Agent
	var chats sql.NullString
	err := s.db.QueryRow(`SELECT id, name, status, active_chats, created_at FROM agents WHERE id = ?`, id).
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
