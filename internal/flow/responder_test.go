package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"carebridge/internal/embedding"
	"carebridge/internal/knowledge"
	"carebridge/internal/models"
	"carebridge/internal/store"
)

// mockGenAI implements genai.ClientInterface with call counting.
type mockGenAI struct {
	reply        string
	replyErr     error
	embedErr     error
	chatCalls    int
	embedCalls   int
	lastSystem   string
	lastUserText string
}

func (m *mockGenAI) GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	m.chatCalls++
	m.lastSystem = systemPrompt
	m.lastUserText = userMessage
	return m.reply, m.replyErr
}

func (m *mockGenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	m.embedCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return embedding.NewLocalEmbedder(0).Embed(ctx, text)
}

func (m *mockGenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return embedding.NewLocalEmbedder(0).EmbedBatch(ctx, texts)
}

func newTestResponder(t *testing.T, st store.Store, mock *mockGenAI, opts ...ResponderOption) *Responder {
	t.Helper()
	emb := embedding.NewLocalEmbedder(0)
	ks := knowledge.NewStore(emb)
	if err := ks.Load(context.Background(), knowledge.DefaultCorpus()); err != nil {
		t.Fatalf("failed to load corpus: %v", err)
	}
	return NewResponder(st, mock, ks, mock, opts...)
}

func chatProfile(phone string) *models.UserProfile {
	return &models.UserProfile{
		PhoneNumber: phone,
		State:       models.StateChat,
		Status:      models.UserStatusBot,
	}
}

func TestRespondHappyPath(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "Drink fluids and rest."}
	r := newTestResponder(t, st, mock)

	reply := r.Respond(context.Background(), "+1", "how do I treat a fever?", chatProfile("+1"))
	if reply != "Drink fluids and rest." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if mock.chatCalls != 1 || mock.embedCalls != 1 {
		t.Errorf("expected 1 chat and 1 embed call, got %d and %d", mock.chatCalls, mock.embedCalls)
	}
	if !strings.Contains(mock.lastSystem, "healthcare assistant") {
		t.Errorf("persona missing from system prompt: %q", mock.lastSystem)
	}
	if !strings.Contains(mock.lastSystem, "reference information") {
		t.Errorf("retrieved context missing from system prompt: %q", mock.lastSystem)
	}

	entries, err := st.RecentChatEntries("+1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Response != "Drink fluids and rest." {
		t.Errorf("chat entry not persisted: %+v", entries)
	}
}

func TestRespondBackendFailureFallsBack(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{replyErr: errors.New("upstream timeout")}
	r := newTestResponder(t, st, mock)

	reply := r.Respond(context.Background(), "+1", "question", chatProfile("+1"))
	if reply != FallbackMessage {
		t.Fatalf("expected fallback message, got %q", reply)
	}

	// The failed turn is still recorded with the fallback as the response.
	entries, _ := st.RecentChatEntries("+1", 10)
	if len(entries) != 1 || entries[0].Response != FallbackMessage {
		t.Errorf("expected persisted fallback entry, got %+v", entries)
	}
}

func TestRespondEmbedFailureFallsBack(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{embedErr: errors.New("embedding unavailable")}
	r := newTestResponder(t, st, mock)

	reply := r.Respond(context.Background(), "+1", "question", chatProfile("+1"))
	if reply != FallbackMessage {
		t.Fatalf("expected fallback message, got %q", reply)
	}
	if mock.chatCalls != 0 {
		t.Errorf("completion must not be called after embed failure, got %d calls", mock.chatCalls)
	}
}

func TestRespondTopicFilterRefusal(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "should never be used"}
	r := newTestResponder(t, st, mock, WithTopicFilter())

	reply := r.Respond(context.Background(), "+1", "what's the weather tomorrow?", chatProfile("+1"))
	if reply != RefusalMessage {
		t.Fatalf("expected refusal, got %q", reply)
	}
	// The refusal short-circuit makes no backend calls and persists nothing.
	if mock.chatCalls != 0 || mock.embedCalls != 0 {
		t.Errorf("refusal made backend calls: chat=%d embed=%d", mock.chatCalls, mock.embedCalls)
	}
	entries, _ := st.RecentChatEntries("+1", 10)
	if len(entries) != 0 {
		t.Errorf("refusal persisted chat entries: %+v", entries)
	}
}

func TestRespondTopicFilterAllowsHealthQuestions(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "Take it with food."}
	r := newTestResponder(t, st, mock, WithTopicFilter())

	reply := r.Respond(context.Background(), "+1", "Should I take my MEDICATION with food?", chatProfile("+1"))
	if reply != "Take it with food." {
		t.Fatalf("expected normal reply, got %q", reply)
	}
	if mock.chatCalls != 1 {
		t.Errorf("expected 1 chat call, got %d", mock.chatCalls)
	}
}

func TestRespondAppendsInteractionWarningOnce(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "Here is some advice."}
	r := newTestResponder(t, st, mock)

	profile := chatProfile("+1")
	profile.Medications = []string{"aspirin", "warfarin"}

	reply := r.Respond(context.Background(), "+1", "is my medication safe?", profile)
	if !strings.HasPrefix(reply, "Here is some advice.") {
		t.Fatalf("advice missing from reply: %q", reply)
	}
	if got := strings.Count(reply, "increased bleeding risk"); got != 1 {
		t.Errorf("expected exactly one warning, found %d in %q", got, reply)
	}
}

func TestRespondNoWarningWithoutInteraction(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &mockGenAI{reply: "All good."}
	r := newTestResponder(t, st, mock)

	profile := chatProfile("+1")
	profile.Medications = []string{"metformin"}

	reply := r.Respond(context.Background(), "+1", "question about my meds", profile)
	if reply != "All good." {
		t.Errorf("unexpected warning appended: %q", reply)
	}
}

func TestRespondIncludesHistoryAndProfile(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.AddChatEntry(models.ChatEntry{PhoneNumber: "+1", Message: "earlier question", Response: "earlier answer"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mock := &mockGenAI{reply: "ok"}
	r := newTestResponder(t, st, mock)

	age := 50
	profile := chatProfile("+1")
	profile.Name = "John"
	profile.Age = &age

	r.Respond(context.Background(), "+1", "follow-up", profile)
	if !strings.Contains(mock.lastSystem, "earlier question") {
		t.Errorf("history missing from system prompt: %q", mock.lastSystem)
	}
	if !strings.Contains(mock.lastSystem, "Name: John") || !strings.Contains(mock.lastSystem, "Age: 50") {
		t.Errorf("profile missing from system prompt: %q", mock.lastSystem)
	}
}
