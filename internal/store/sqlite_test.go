package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"carebridge/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "carebridge-test.db")
	s, err := NewSQLiteStore(WithDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreProfileRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	if _, err := s.GetProfile("+15551234567"); !errors.Is(err, models.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	age := 42
	p := models.UserProfile{
		PhoneNumber:    "+15551234567",
		State:          models.StateGetAge,
		Status:         models.UserStatusBot,
		Name:           "Maria",
		Age:            &age,
		MedicalHistory: []string{"asthma"},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetProfile("+15551234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Maria" || got.State != models.StateGetAge {
		t.Errorf("profile not stored correctly: %+v", got)
	}
	if got.Age == nil || *got.Age != 42 {
		t.Errorf("age not stored correctly: %v", got.Age)
	}
	if len(got.MedicalHistory) != 1 || got.MedicalHistory[0] != "asthma" {
		t.Errorf("medical history not stored correctly: %v", got.MedicalHistory)
	}

	// Upsert must replace, not duplicate.
	p.State = models.StateChat
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = s.GetProfile("+15551234567")
	if got.State != models.StateChat {
		t.Errorf("upsert did not update state: %v", got.State)
	}
}

func TestSQLiteStoreChatEntries(t *testing.T) {
	s := newTestSQLiteStore(t)
	base := time.Now()
	for i, msg := range []string{"first", "second", "third"} {
		err := s.AddChatEntry(models.ChatEntry{
			PhoneNumber: "+1",
			Message:     msg,
			Response:    "ok",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := s.RecentChatEntries("+1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "third" {
		t.Errorf("expected newest first, got %q", entries[0].Message)
	}
}

func TestSQLiteStoreHandoffConditionalTransitions(t *testing.T) {
	s := newTestSQLiteStore(t)
	req := models.HandoffRequest{
		ID:          "req-1",
		PhoneNumber: "+1",
		Status:      models.HandoffWaiting,
		CreatedAt:   time.Now(),
	}
	if err := s.CreateHandoff(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.AssignHandoff("req-1", "agent-1", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AssignHandoff("req-1", "agent-2", time.Now()); !errors.Is(err, models.ErrHandoffNotWaiting) {
		t.Errorf("expected ErrHandoffNotWaiting, got %v", err)
	}
	if err := s.AssignHandoff("missing", "agent-1", time.Now()); !errors.Is(err, models.ErrHandoffNotFound) {
		t.Errorf("expected ErrHandoffNotFound, got %v", err)
	}

	got, err := s.GetHandoff("req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AgentID != "agent-1" || got.Status != models.HandoffAssigned {
		t.Errorf("failed assignment mutated request: %+v", got)
	}

	if err := s.CompleteHandoff("req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, err := s.ActiveHandoffForUser("+1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active != nil {
		t.Errorf("completed request should not be active: %+v", active)
	}
}

func TestSQLiteStoreAgents(t *testing.T) {
	s := newTestSQLiteStore(t)
	a := models.Agent{
		ID:          "agent-1",
		Name:        "Dana",
		Status:      models.AgentBusy,
		ActiveChats: []string{"+1", "+2"},
		CreatedAt:   time.Now(),
	}
	if err := s.SaveAgent(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetAgent("agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.ActiveChats) != 2 || got.ActiveChats[0] != "+1" {
		t.Errorf("active chats not stored correctly: %v", got.ActiveChats)
	}
}
