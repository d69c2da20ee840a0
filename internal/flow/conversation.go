package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"carebridge/internal/models"
	"carebridge/internal/store"
)

// escalationKeywords trigger a handoff request from a chat-state message.
var escalationKeywords = []string{"agent", "human", "representative"}

// Conversation routes each inbound message to onboarding, the responder, or
// the handoff coordinator based on the user's persisted state and status.
type Conversation struct {
	store      store.Store
	onboarding *Onboarding
	responder  *Responder
	handoff    *HandoffCoordinator
	locks      *userLocks
}

// NewConversation wires the flow components into a message router.
func NewConversation(st store.Store, onboarding *Onboarding, responder *Responder, handoff *HandoffCoordinator) *Conversation {
	return &Conversation{
		store:      st,
		onboarding: onboarding,
		responder:  responder,
		handoff:    handoff,
		locks:      newUserLocks(),
	}
}

// ProcessMessage handles one inbound message end to end and returns the reply
// to send. Messages from the same user are serialized so concurrent delivery
// cannot lose a state transition. It never returns an error; degraded paths
// yield user-facing strings.
func (c *Conversation) ProcessMessage(ctx context.Context, from, text string) string {
	if from == "" {
		slog.Warn("flow.Conversation.ProcessMessage: empty sender, dropping")
		return ""
	}
	c.locks.Lock(from)
	defer c.locks.Unlock(from)

	profile, err := c.store.GetProfile(from)
	switch {
	case err == nil:
		// Known user; route below.
	case errors.Is(err, models.ErrProfileNotFound):
		return c.handleUnknownUser(ctx, from, text)
	default:
		// Backend outage. Never treat it as a new user: restarting onboarding
		// would discard the existing profile once the store recovers.
		slog.Error("flow.Conversation.ProcessMessage: profile read failed", "error", err, "phone", from)
		return promptRetry
	}

	switch profile.Status {
	case models.UserStatusPending:
		return handoffPending
	case models.UserStatusWithAgent:
		return handoffWithAgent
	}

	if profile.State != models.StateChat {
		return c.onboarding.Process(ctx, *profile, text)
	}

	if wantsAgent(text) {
		if _, err := c.handoff.Request(ctx, from); err != nil {
			if errors.Is(err, models.ErrActiveHandoffExists) {
				return handoffPending
			}
			slog.Error("flow.Conversation.ProcessMessage: handoff request failed", "error", err, "phone", from)
			return promptRetry
		}
		return handoffRequested
	}

	return c.responder.Respond(ctx, from, text, profile)
}

// handleUnknownUser reconciles a missing profile against chat history before
// starting onboarding. A user with recorded conversation turns but no profile
// row is an existing user whose record was lost; they resume in the chat state
// rather than being asked their name again.
func (c *Conversation) handleUnknownUser(ctx context.Context, from, text string) string {
	entries, err := c.store.RecentChatEntries(from, 1)
	if err != nil {
		slog.Error("flow.Conversation.handleUnknownUser: history read failed", "error", err, "phone", from)
		return promptRetry
	}
	if len(entries) > 0 {
		now := time.Now()
		profile := models.UserProfile{
			PhoneNumber: from,
			State:       models.StateChat,
			Status:      models.UserStatusBot,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := c.store.SaveProfile(profile); err != nil {
			slog.Error("flow.Conversation.handleUnknownUser: failed to recreate profile", "error", err, "phone", from)
			return promptRetry
		}
		slog.Info("flow.Conversation.handleUnknownUser: profile reconciled from history", "phone", from)
		return c.responder.Respond(ctx, from, text, &profile)
	}

	return c.onboarding.Process(ctx, c.onboarding.InitialProfile(from), text)
}

// wantsAgent reports whether the message asks for a human takeover.
func wantsAgent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range escalationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
