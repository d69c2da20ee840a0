package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"carebridge/internal/models"
	"carebridge/internal/store"
)

func newTestConversation(t *testing.T, st store.Store, mock *mockGenAI, respOpts ...ResponderOption) *Conversation {
	t.Helper()
	onboarding := NewOnboarding(st, VariantHistory)
	responder := newTestResponder(t, st, mock, respOpts...)
	handoff := NewHandoffCoordinator(st)
	return NewConversation(st, onboarding, responder, handoff)
}

func TestConversationNewUserStartsOnboarding(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestConversation(t, st, &mockGenAI{reply: "ok"})

	reply := c.ProcessMessage(context.Background(), "+1", "hello")
	if !strings.Contains(reply, "What's your name?") {
		t.Fatalf("expected onboarding start, got %q", reply)
	}
	profile, err := st.GetProfile("+1")
	if err != nil {
		t.Fatalf("profile not created: %v", err)
	}
	if profile.State != models.StateGetName {
		t.Errorf("expected get_name state, got %v", profile.State)
	}
}

func TestConversationChatStateUsesResponder(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "Here's my advice."}
	c := newTestConversation(t, st, mock)
	seedChatUser(t, st, "+1")

	reply := c.ProcessMessage(context.Background(), "+1", "what helps with fever?")
	if reply != "Here's my advice." {
		t.Fatalf("expected responder reply, got %q", reply)
	}
	if mock.chatCalls != 1 {
		t.Errorf("expected 1 completion call, got %d", mock.chatCalls)
	}
}

func TestConversationReconciliationFromHistory(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "Welcome back."}
	c := newTestConversation(t, st, mock)

	// History exists but the profile row is gone: the user resumes in chat,
	// they are never re-onboarded.
	if err := st.AddChatEntry(models.ChatEntry{PhoneNumber: "+1", Message: "old", Response: "old", Timestamp: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply := c.ProcessMessage(context.Background(), "+1", "am I still registered?")
	if reply != "Welcome back." {
		t.Fatalf("expected responder reply, got %q", reply)
	}
	profile, err := st.GetProfile("+1")
	if err != nil {
		t.Fatalf("profile not recreated: %v", err)
	}
	if profile.State != models.StateChat {
		t.Errorf("reconciled profile should be in chat state, got %v", profile.State)
	}
}

func TestConversationEscalationKeyword(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestConversation(t, st, &mockGenAI{reply: "should not be used"})
	seedChatUser(t, st, "+1")

	reply := c.ProcessMessage(context.Background(), "+1", "I want to talk to a human agent")
	if !strings.Contains(reply, "human agent") {
		t.Fatalf("expected handoff acknowledgement, got %q", reply)
	}
	profile, _ := st.GetProfile("+1")
	if profile.Status != models.UserStatusPending {
		t.Errorf("expected pending status, got %v", profile.Status)
	}

	// While pending, messages short-circuit without invoking the responder.
	reply = c.ProcessMessage(context.Background(), "+1", "are you there?")
	if reply != handoffPending {
		t.Errorf("expected pending ack, got %q", reply)
	}
}

func TestConversationWithAgentShortCircuits(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "bot reply"}
	c := newTestConversation(t, st, mock)

	if err := st.SaveProfile(models.UserProfile{
		PhoneNumber: "+1",
		State:       models.StateChat,
		Status:      models.UserStatusWithAgent,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply := c.ProcessMessage(context.Background(), "+1", "hello?")
	if reply != handoffWithAgent {
		t.Fatalf("expected with-agent ack, got %q", reply)
	}
	if mock.chatCalls != 0 || mock.embedCalls != 0 {
		t.Errorf("backend called while user is with an agent: chat=%d embed=%d", mock.chatCalls, mock.embedCalls)
	}
}

func TestConversationOnboardingUserNotEscalated(t *testing.T) {
	// Escalation keywords only apply in the chat state; during onboarding the
	// text is an answer to the current question.
	st := store.NewInMemoryStore()
	c := newTestConversation(t, st, &mockGenAI{reply: "ok"})

	c.ProcessMessage(context.Background(), "+1", "hi")
	reply := c.ProcessMessage(context.Background(), "+1", "Agent Smith")
	if !strings.Contains(reply, "How old are you?") {
		t.Fatalf("expected age question, got %q", reply)
	}
	profile, _ := st.GetProfile("+1")
	if profile.Name != "Agent Smith" {
		t.Errorf("name answer not applied: %+v", profile)
	}
	if profile.Status != models.UserStatusBot {
		t.Errorf("onboarding user escalated: %v", profile.Status)
	}
}

func TestConversationEmptySenderDropped(t *testing.T) {
	st := store.NewInMemoryStore()
	c := newTestConversation(t, st, &mockGenAI{})
	if reply := c.ProcessMessage(context.Background(), "", "hello"); reply != "" {
		t.Errorf("expected empty reply for empty sender, got %q", reply)
	}
}
