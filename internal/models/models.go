// Package models defines the core data structures for CareBridge.
//
// It includes the user profile with its onboarding state, chat history entries,
// knowledge documents, and the handoff request/agent types shared across modules.
package models

import (
	"errors"
	"time"
)

// OnboardingState identifies a step of the onboarding state machine.
type OnboardingState string

const (
	// StateWelcome is the initial state for a newly created profile.
	StateWelcome OnboardingState = "welcome"
	// StateGetName collects the user's name.
	StateGetName OnboardingState = "get_name"
	// StateGetAge collects the user's age.
	StateGetAge OnboardingState = "get_age"
	// StateGetMedicalHistory collects free-text medical history.
	StateGetMedicalHistory OnboardingState = "get_medical_history"
	// StateGetConditions collects a structured condition list (alternate variant).
	StateGetConditions OnboardingState = "get_conditions"
	// StateGetMedications collects a structured medication list (alternate variant).
	StateGetMedications OnboardingState = "get_medications"
	// StateChat is the terminal state; all input is handled by the responder.
	StateChat OnboardingState = "chat"
)

// IsValidOnboardingState checks whether s is a member of the onboarding enum.
func IsValidOnboardingState(s OnboardingState) bool {
	switch s {
	case StateWelcome, StateGetName, StateGetAge, StateGetMedicalHistory,
		StateGetConditions, StateGetMedications, StateChat:
		return true
	default:
		return false
	}
}

// UserStatus tracks who currently owns a user's conversation.
type UserStatus string

const (
	// UserStatusBot means the bot is handling the conversation.
	UserStatusBot UserStatus = "bot"
	// UserStatusPending means a handoff request is waiting for an agent.
	UserStatusPending UserStatus = "pending"
	// UserStatusWithAgent means a human agent owns the conversation.
	UserStatusWithAgent UserStatus = "with_agent"
)

// HandoffStatus is the lifecycle state of a handoff request.
type HandoffStatus string

const (
	// HandoffWaiting means the request has not been assigned yet.
	HandoffWaiting HandoffStatus = "waiting"
	// HandoffAssigned means an agent has been bound to the request.
	HandoffAssigned HandoffStatus = "assigned"
	// HandoffCompleted means the conversation returned to the bot.
	HandoffCompleted HandoffStatus = "completed"
)

// AgentStatus is the availability state of a human agent.
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOffline   AgentStatus = "offline"
)

// Error variables for better error handling and testability.
var (
	// ErrProfileNotFound is returned by stores when no profile exists for an
	// identifier. Callers must treat this differently from a backend outage so a
	// transient read failure never re-onboards an existing user.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrHandoffNotFound is returned when a handoff request id is unknown.
	ErrHandoffNotFound = errors.New("handoff request not found")
	// ErrHandoffNotWaiting is returned when assignment targets a request that is
	// not in the waiting state.
	ErrHandoffNotWaiting = errors.New("handoff request is not waiting")
	// ErrActiveHandoffExists is returned when a user already has a waiting or
	// assigned handoff request.
	ErrActiveHandoffExists = errors.New("user already has an active handoff request")
	// ErrAgentNotFound is returned when an agent id is unknown.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrInvalidState is returned when a profile carries a state outside the enum.
	ErrInvalidState = errors.New("invalid onboarding state")
	// ErrEmptyIdentifier is returned when a user identifier is empty.
	ErrEmptyIdentifier = errors.New("user identifier cannot be empty")
)

// UserProfile is the persistent per-user record built by onboarding.
// Exactly one profile exists per identifier; the identifier is the phone number.
type UserProfile struct {
	PhoneNumber    string          `json:"phone_number"`
	State          OnboardingState `json:"state"`
	Status         UserStatus      `json:"status"`
	Name           string          `json:"name,omitempty"`
	Age            *int            `json:"age,omitempty"`
	MedicalHistory []string        `json:"medical_history,omitempty"`
	Conditions     []string        `json:"conditions,omitempty"`
	Medications    []string        `json:"medications,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate checks profile invariants before persistence.
func (p *UserProfile) Validate() error {
	if p.PhoneNumber == "" {
		return ErrEmptyIdentifier
	}
	if !IsValidOnboardingState(p.State) {
		return ErrInvalidState
	}
	return nil
}

// ChatEntry is one immutable (message, response) pair in a user's history.
type ChatEntry struct {
	PhoneNumber string    `json:"phone_number"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	Timestamp   time.Time `json:"timestamp"`
}

// KnowledgeDocument is one entry of the static retrieval corpus. The embedding
// is always derived from Text at load time and never persisted independently.
type KnowledgeDocument struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float64         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// HandoffRequest tracks one escalation of a user conversation to a human agent.
type HandoffRequest struct {
	ID          string        `json:"id"`
	PhoneNumber string        `json:"phone_number"`
	Status      HandoffStatus `json:"status"`
	AgentID     string        `json:"agent_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	AssignedAt  *time.Time    `json:"assigned_at,omitempty"`
}

// Active reports whether the request still occupies the user's handoff slot.
func (r *HandoffRequest) Active() bool {
	return r.Status == HandoffWaiting || r.Status == HandoffAssigned
}

// Agent is a human agent who can take over conversations.
type Agent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Status      AgentStatus `json:"status"`
	ActiveChats []string    `json:"active_chats,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Receipt is a delivery/read event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response is an incoming message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIResponse is the standard JSON envelope returned by the HTTP API.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
