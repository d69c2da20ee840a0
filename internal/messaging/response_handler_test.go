package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"carebridge/internal/models"
)

// mockService implements Service with injectable channels and send recording.
type mockService struct {
	mu        sync.Mutex
	sent      []models.Response
	responses chan models.Response
	receipts  chan models.Receipt
}

func newMockService() *mockService {
	return &mockService{
		responses: make(chan models.Response, 10),
		receipts:  make(chan models.Receipt, 10),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, models.Response{From: to, Body: body})
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) sentMessages() []models.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Response, len(m.sent))
	copy(out, m.sent)
	return out
}

// echoRouter replies with a fixed transformation of the inbound text.
type echoRouter struct{}

func (echoRouter) ProcessMessage(ctx context.Context, from, text string) string {
	if text == "silent" {
		return ""
	}
	return "reply to " + text
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestResponseHandlerRoutesInboundToReply(t *testing.T) {
	svc := newMockService()
	h := NewResponseHandler(svc, echoRouter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	svc.responses <- models.Response{From: "+1", Body: "hello", Time: time.Now().Unix()}

	waitFor(t, func() bool { return len(svc.sentMessages()) == 1 })
	sent := svc.sentMessages()
	if sent[0].From != "+1" || sent[0].Body != "reply to hello" {
		t.Errorf("unexpected outbound message: %+v", sent[0])
	}
}

func TestResponseHandlerSkipsEmptyReply(t *testing.T) {
	svc := newMockService()
	h := NewResponseHandler(svc, echoRouter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	svc.responses <- models.Response{From: "+1", Body: "silent"}
	svc.responses <- models.Response{From: "+1", Body: "hello"}

	waitFor(t, func() bool { return len(svc.sentMessages()) == 1 })
	sent := svc.sentMessages()
	if sent[0].Body != "reply to hello" {
		t.Errorf("empty reply was sent: %+v", sent)
	}
}

func TestResponseHandlerStopsOnContextCancel(t *testing.T) {
	svc := newMockService()
	h := NewResponseHandler(svc, echoRouter{})

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()

	// After cancellation new messages are not processed.
	time.Sleep(50 * time.Millisecond)
	svc.responses <- models.Response{From: "+1", Body: "late"}
	time.Sleep(100 * time.Millisecond)
	if len(svc.sentMessages()) != 0 {
		t.Errorf("message processed after cancellation: %+v", svc.sentMessages())
	}
}
