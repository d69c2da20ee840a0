package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"carebridge/internal/embedding"
	"carebridge/internal/genai"
	"carebridge/internal/interactions"
	"carebridge/internal/knowledge"
	"carebridge/internal/models"
	"carebridge/internal/store"
)

// User-facing strings for the responder's degraded paths. The responder never
// lets an error escape its boundary; every failure becomes one of these.
const (
	// FallbackMessage is returned on any embedding, retrieval, or completion failure.
	FallbackMessage = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."
	// RefusalMessage is returned when the topic filter rejects a message.
	RefusalMessage = "I can only help with health-related questions. Please ask me something about your health, symptoms, or medications."

	// personaDirective anchors every completion request.
	personaDirective = "You are a healthcare assistant. Keep responses concise and under 150 words."

	// DefaultHistoryLimit is how many recent chat turns are rendered into the prompt.
	DefaultHistoryLimit = 5
)

// healthKeywords is the fixed set used by the optional topic filter. A message
// is in-domain when any keyword appears as a case-insensitive substring.
var healthKeywords = []string{
	"health", "doctor", "nurse", "hospital", "clinic", "symptom", "pain",
	"medic", "drug", "pill", "prescription", "dose", "treatment", "therapy",
	"disease", "condition", "diagnos", "infect", "fever", "cough", "headache",
	"blood", "pressure", "heart", "diabetes", "asthma", "allerg", "vaccin",
	"sick", "ill", "hurt", "injur", "wound", "rash", "dizz", "nausea",
}

// internal failure classification, converted to a user-facing string only at
// the Respond boundary.
type respondError struct {
	op  string
	err error
}

func (e *respondError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *respondError) Unwrap() error { return e.err }

// Responder produces retrieval-augmented replies for users in the chat state.
type Responder struct {
	store        store.Store
	embedder     embedding.Embedder
	knowledge    *knowledge.Store
	genaiClient  genai.ClientInterface
	topicFilter  bool
	topK         int
	historyLimit int
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithTopicFilter enables the health-domain keyword gate.
func WithTopicFilter() ResponderOption {
	return func(r *Responder) { r.topicFilter = true }
}

// WithTopK overrides how many documents are retrieved per query.
func WithTopK(k int) ResponderOption {
	return func(r *Responder) { r.topK = k }
}

// WithHistoryLimit overrides how many recent chat turns enter the prompt.
// Zero disables history rendering.
func WithHistoryLimit(n int) ResponderOption {
	return func(r *Responder) { r.historyLimit = n }
}

// NewResponder creates a responder with the given collaborators.
func NewResponder(st store.Store, emb embedding.Embedder, ks *knowledge.Store, client genai.ClientInterface, opts ...ResponderOption) *Responder {
	r := &Responder{
		store:        st,
		embedder:     emb,
		knowledge:    ks,
		genaiClient:  client,
		topK:         knowledge.DefaultTopK,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	slog.Debug("flow.NewResponder: created", "topic_filter", r.topicFilter, "top_k", r.topK, "history_limit", r.historyLimit)
	return r
}

// Respond answers a chat-state message. It never returns an error: every
// failure path degrades to a user-visible string, and the reply is persisted
// to chat history on a best-effort basis.
func (r *Responder) Respond(ctx context.Context, userID, message string, profile *models.UserProfile) string {
	if r.topicFilter && !r.inDomain(message) {
		slog.Info("flow.Responder.Respond: message rejected by topic filter", "user", userID)
		return RefusalMessage
	}

	reply, err := r.respond(ctx, userID, message, profile)
	if err != nil {
		slog.Error("flow.Responder.Respond: degraded to fallback", "error", err, "user", userID)
		reply = FallbackMessage
	}

	if err := r.store.AddChatEntry(models.ChatEntry{
		PhoneNumber: userID,
		Message:     message,
		Response:    reply,
		Timestamp:   time.Now(),
	}); err != nil {
		// Logged, not retried; the user still gets their reply.
		slog.Error("flow.Responder.Respond: failed to persist chat entry", "error", err, "user", userID)
	}
	return reply
}

// respond runs the retrieval-augmented pipeline and returns typed failures.
func (r *Responder) respond(ctx context.Context, userID, message string, profile *models.UserProfile) (string, error) {
	queryVector, err := r.embedder.Embed(ctx, message)
	if err != nil {
		return "", &respondError{op: "embed query", err: err}
	}

	retrieved := r.knowledge.Search(queryVector, r.topK)
	slog.Debug("flow.Responder.respond: documents retrieved", "user", userID, "count", len(retrieved))

	systemPrompt := r.buildSystemPrompt(userID, retrieved, profile)
	reply, err := r.genaiClient.GenerateReply(ctx, systemPrompt, message)
	if err != nil {
		return "", &respondError{op: "generate completion", err: err}
	}

	if profile != nil && len(profile.Medications) > 0 {
		if warnings := interactions.Check(profile.Medications); len(warnings) > 0 {
			reply = reply + "\n\n" + interactions.FormatWarnings(warnings)
		}
	}
	return reply, nil
}

// inDomain tests message membership against the fixed keyword set.
func (r *Responder) inDomain(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range healthKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// buildSystemPrompt assembles the persona directive, retrieved context, the
// user profile, and recent chat turns into one system instruction.
func (r *Responder) buildSystemPrompt(userID string, retrieved []knowledge.ScoredDocument, profile *models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString(personaDirective)

	if len(retrieved) > 0 {
		sb.WriteString("\n\nUse the following reference information when relevant:")
		for _, sd := range retrieved {
			sb.WriteString("\n- ")
			sb.WriteString(sd.Document.Text)
		}
	}

	if rendered := renderProfile(profile); rendered != "" {
		sb.WriteString("\n\nUser profile:\n")
		sb.WriteString(rendered)
	}

	if r.historyLimit > 0 {
		entries, err := r.store.RecentChatEntries(userID, r.historyLimit)
		if err != nil {
			// History is an enrichment; skip it rather than fail the reply.
			slog.Warn("flow.Responder.buildSystemPrompt: failed to load chat history", "error", err, "user", userID)
		} else if len(entries) > 0 {
			sb.WriteString("\n\nRecent conversation (newest first):")
			for _, e := range entries {
				sb.WriteString("\nUser: ")
				sb.WriteString(e.Message)
				sb.WriteString("\nAssistant: ")
				sb.WriteString(e.Response)
			}
		}
	}
	return sb.String()
}

// renderProfile formats the known profile fields for the prompt.
func renderProfile(profile *models.UserProfile) string {
	if profile == nil {
		return ""
	}
	var lines []string
	if profile.Name != "" {
		lines = append(lines, "Name: "+profile.Name)
	}
	if profile.Age != nil {
		lines = append(lines, fmt.Sprintf("Age: %d", *profile.Age))
	}
	if len(profile.MedicalHistory) > 0 {
		lines = append(lines, "Medical history: "+strings.Join(profile.MedicalHistory, ", "))
	}
	if len(profile.Conditions) > 0 {
		lines = append(lines, "Conditions: "+strings.Join(profile.Conditions, ", "))
	}
	if len(profile.Medications) > 0 {
		lines = append(lines, "Medications: "+strings.Join(profile.Medications, ", "))
	}
	return strings.Join(lines, "\n")
}
