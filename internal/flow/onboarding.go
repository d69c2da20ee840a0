// Package flow implements the conversational logic of CareBridge: the
// onboarding state machine, the retrieval-augmented responder, the handoff
// coordinator, and the router that ties them together per inbound message.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"carebridge/internal/models"
	"carebridge/internal/store"
)

// Variant selects which onboarding question sequence is used.
type Variant string

const (
	// VariantHistory collects name, age, and free-text medical history.
	// This is the canonical sequence.
	VariantHistory Variant = "history"
	// VariantStructured collects condition and medication lists instead.
	VariantStructured Variant = "structured"
)

// Onboarding prompts. Every transition returns the question for the next state.
const (
	promptWelcome = "👋 Hi, I'm your healthcare assistant. Before we start, I have a few quick questions. What's your name?"

	promptAge           = "Thanks, %s! How old are you?"
	promptAgeInvalid    = "Please enter your age as a number (for example: 29)."
	promptHistory       = "Got it. Do you have any medical conditions or relevant medical history? You can list them separated by commas."
	promptConditions    = "👋 Hi, I'm your healthcare assistant. Before we start: do you have any medical conditions? You can list them separated by commas, or say \"none\"."
	promptMedications   = "Are you currently taking any medications? List them separated by commas, or say \"none\"."
	promptOnboardingEnd = "✅ All set! You can now ask me any health question."

	// promptRetry is returned when a persistence write fails mid-onboarding.
	promptRetry = "Sorry, something went wrong on our side. Please try again."
)

// Onboarding drives new users through the profile-building question sequence.
// Every successful transition persists the full profile before replying; the
// store is the single source of truth for state, never an in-memory cache.
type Onboarding struct {
	store   store.Store
	variant Variant
}

// NewOnboarding creates an onboarding state machine over the given store.
func NewOnboarding(st store.Store, variant Variant) *Onboarding {
	if variant == "" {
		variant = VariantHistory
	}
	slog.Debug("flow.NewOnboarding: created", "variant", variant)
	return &Onboarding{store: st, variant: variant}
}

// InitialProfile returns a fresh profile for an unseen identifier.
func (o *Onboarding) InitialProfile(phone string) models.UserProfile {
	now := time.Now()
	return models.UserProfile{
		PhoneNumber: phone,
		State:       models.StateWelcome,
		Status:      models.UserStatusBot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Process consumes one inbound message as the answer to the current state's
// question, advances the profile, persists it, and returns the next prompt.
// Validation failures re-prompt the same state without mutating the profile.
// Persistence failures are logged and surface promptRetry; the caller never
// sees an error.
func (o *Onboarding) Process(ctx context.Context, profile models.UserProfile, text string) string {
	text = strings.TrimSpace(text)
	slog.Debug("flow.Onboarding.Process: handling message", "phone", profile.PhoneNumber, "state", profile.State)

	switch profile.State {
	case models.StateWelcome:
		// The first inbound message triggers onboarding; its content is not an
		// answer to anything.
		if o.variant == VariantStructured {
			profile.State = models.StateGetConditions
			return o.persistAndReply(profile, promptConditions)
		}
		profile.State = models.StateGetName
		return o.persistAndReply(profile, promptWelcome)

	case models.StateGetName:
		if text == "" {
			return promptWelcome
		}
		profile.Name = text
		profile.State = models.StateGetAge
		return o.persistAndReply(profile, fmt.Sprintf(promptAge, profile.Name))

	case models.StateGetAge:
		age, err := strconv.Atoi(text)
		if err != nil || age <= 0 || age > 150 {
			slog.Debug("flow.Onboarding.Process: age validation failed", "phone", profile.PhoneNumber, "input", text)
			return promptAgeInvalid
		}
		profile.Age = &age
		profile.State = models.StateGetMedicalHistory
		return o.persistAndReply(profile, promptHistory)

	case models.StateGetMedicalHistory:
		profile.MedicalHistory = splitList(text)
		profile.State = models.StateChat
		return o.persistAndReply(profile, promptOnboardingEnd)

	case models.StateGetConditions:
		profile.Conditions = splitList(text)
		profile.State = models.StateGetMedications
		return o.persistAndReply(profile, promptMedications)

	case models.StateGetMedications:
		profile.Medications = splitList(text)
		profile.State = models.StateChat
		return o.persistAndReply(profile, promptOnboardingEnd)

	default:
		// StateChat is handled by the router; anything else is a corrupt record.
		slog.Error("flow.Onboarding.Process: unexpected state", "phone", profile.PhoneNumber, "state", profile.State)
		return promptRetry
	}
}

// persistAndReply writes the advanced profile and returns the next prompt, or
// promptRetry when the write fails so the user can resend their answer.
func (o *Onboarding) persistAndReply(profile models.UserProfile, reply string) string {
	profile.UpdatedAt = time.Now()
	if err := o.store.SaveProfile(profile); err != nil {
		slog.Error("flow.Onboarding: failed to persist profile", "error", err, "phone", profile.PhoneNumber, "state", profile.State)
		return promptRetry
	}
	slog.Info("flow.Onboarding: state advanced", "phone", profile.PhoneNumber, "state", profile.State)
	return reply
}

// splitList parses a comma-separated answer into trimmed non-empty items.
// "none" (any case) yields an empty list.
func splitList(text string) []string {
	if strings.EqualFold(strings.TrimSpace(text), "none") {
		return nil
	}
	var items []string
	for _, part := range strings.Split(text, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return items
}
