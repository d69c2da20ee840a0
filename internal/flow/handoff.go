package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carebridge/internal/models"
	"carebridge/internal/store"
)

// Handoff acknowledgement strings.
const (
	handoffRequested = "🧑‍⚕️ I've asked a human agent to join. Please hold on — someone will be with you shortly."
	handoffPending   = "You're in the queue for a human agent. Please hold on."
	handoffWithAgent = "You're currently chatting with a human agent."
	handoffResumed   = "The agent conversation has ended. I'm back — feel free to ask me anything."
)

// HandoffCoordinator manages the bot → human-agent escalation lifecycle. A
// user has at most one active (waiting or assigned) request at a time, and
// the user's status mirrors the request's: pending while waiting, with_agent
// once assigned, bot after completion.
type HandoffCoordinator struct {
	store store.Store
}

// NewHandoffCoordinator creates a coordinator over the given store.
func NewHandoffCoordinator(st store.Store) *HandoffCoordinator {
	return &HandoffCoordinator{store: st}
}

// Request escalates the user to the agent queue. It returns the created
// request and models.ErrActiveHandoffExists when the user already has an
// active request.
func (h *HandoffCoordinator) Request(ctx context.Context, phone string) (*models.HandoffRequest, error) {
	if phone == "" {
		return nil, models.ErrEmptyIdentifier
	}

	profile, err := h.store.GetProfile(phone)
	if err != nil {
		return nil, err
	}

	active, err := h.store.ActiveHandoffForUser(phone)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, models.ErrActiveHandoffExists
	}

	req := models.HandoffRequest{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		Status:      models.HandoffWaiting,
		CreatedAt:   time.Now(),
	}
	if err := h.store.CreateHandoff(req); err != nil {
		return nil, err
	}

	profile.Status = models.UserStatusPending
	profile.UpdatedAt = time.Now()
	if err := h.store.SaveProfile(*profile); err != nil {
		// The request exists but the user record did not follow; the router
		// re-derives the short-circuit from the active request next message.
		slog.Error("flow.HandoffCoordinator.Request: failed to mark user pending", "error", err, "phone", phone)
	}

	slog.Info("flow.HandoffCoordinator.Request: handoff queued", "phone", phone, "request_id", req.ID)
	return &req, nil
}

// Assign hands a waiting request to an agent. It fails with
// models.ErrHandoffNotWaiting when the request is already assigned or done.
func (h *HandoffCoordinator) Assign(ctx context.Context, requestID, agentID string) error {
	if requestID == "" || agentID == "" {
		return models.ErrEmptyIdentifier
	}

	now := time.Now()
	if err := h.store.AssignHandoff(requestID, agentID, now); err != nil {
		return err
	}

	req, err := h.store.GetHandoff(requestID)
	if err != nil {
		return err
	}
	if err := h.setUserStatus(req.PhoneNumber, models.UserStatusWithAgent); err != nil {
		slog.Error("flow.HandoffCoordinator.Assign: failed to mark user with_agent", "error", err, "phone", req.PhoneNumber)
	}
	h.trackAgentChat(agentID, req.PhoneNumber, true)

	slog.Info("flow.HandoffCoordinator.Assign: handoff assigned", "request_id", requestID, "agent_id", agentID)
	return nil
}

// Complete closes an assigned request and returns the user to the bot.
func (h *HandoffCoordinator) Complete(ctx context.Context, requestID string) error {
	if requestID == "" {
		return models.ErrEmptyIdentifier
	}

	req, err := h.store.GetHandoff(requestID)
	if err != nil {
		return err
	}
	if err := h.store.CompleteHandoff(requestID); err != nil {
		return err
	}

	if err := h.setUserStatus(req.PhoneNumber, models.UserStatusBot); err != nil {
		slog.Error("flow.HandoffCoordinator.Complete: failed to return user to bot", "error", err, "phone", req.PhoneNumber)
	}
	if req.AgentID != "" {
		h.trackAgentChat(req.AgentID, req.PhoneNumber, false)
	}

	slog.Info("flow.HandoffCoordinator.Complete: handoff completed", "request_id", requestID)
	return nil
}

// Pending lists waiting requests, oldest first.
func (h *HandoffCoordinator) Pending(ctx context.Context) ([]models.HandoffRequest, error) {
	return h.store.PendingHandoffs()
}

// setUserStatus updates only the status field of an existing profile.
func (h *HandoffCoordinator) setUserStatus(phone string, status models.UserStatus) error {
	profile, err := h.store.GetProfile(phone)
	if err != nil {
		return err
	}
	profile.Status = status
	profile.UpdatedAt = time.Now()
	return h.store.SaveProfile(*profile)
}

// trackAgentChat adds or removes a conversation from an agent's active set and
// updates availability. Unknown agents are tolerated; assignment does not
// require pre-registration.
func (h *HandoffCoordinator) trackAgentChat(agentID, phone string, add bool) {
	agent, err := h.store.GetAgent(agentID)
	if err != nil {
		slog.Debug("flow.HandoffCoordinator: agent not registered, skipping chat tracking", "agent_id", agentID)
		return
	}

	chats := agent.ActiveChats[:0:0]
	for _, c := range agent.ActiveChats {
		if c != phone {
			chats = append(chats, c)
		}
	}
	if add {
		chats = append(chats, phone)
	}
	agent.ActiveChats = chats

	if len(agent.ActiveChats) > 0 {
		agent.Status = models.AgentBusy
	} else {
		agent.Status = models.AgentAvailable
	}
	if err := h.store.SaveAgent(*agent); err != nil {
		slog.Error("flow.HandoffCoordinator: failed to update agent", "error", err, "agent_id", agentID)
	}
}
