package flow

import (
	"context"
	"strings"
	"testing"

	"carebridge/internal/models"
	"carebridge/internal/store"
)

func advance(t *testing.T, o *Onboarding, st store.Store, phone, text string) string {
	t.Helper()
	profile, err := st.GetProfile(phone)
	if err != nil {
		p := o.InitialProfile(phone)
		profile = &p
	}
	return o.Process(context.Background(), *profile, text)
}

func TestOnboardingHistoryVariantEndToEnd(t *testing.T) {
	st := store.NewInMemoryStore()
	o := NewOnboarding(st, VariantHistory)
	phone := "+15551234567"

	// First contact: content is not consumed, next question is the name.
	reply := advance(t, o, st, phone, "hi")
	if !strings.Contains(reply, "What's your name?") {
		t.Fatalf("expected name question, got %q", reply)
	}
	profile, err := st.GetProfile(phone)
	if err != nil {
		t.Fatalf("profile not persisted: %v", err)
	}
	if profile.State != models.StateGetName {
		t.Fatalf("expected state get_name, got %v", profile.State)
	}

	reply = advance(t, o, st, phone, "John")
	if !strings.Contains(reply, "John") || !strings.Contains(reply, "How old are you?") {
		t.Fatalf("expected personalized age question, got %q", reply)
	}
	profile, _ = st.GetProfile(phone)
	if profile.Name != "John" || profile.State != models.StateGetAge {
		t.Fatalf("name answer not applied: %+v", profile)
	}

	reply = advance(t, o, st, phone, "29")
	if !strings.Contains(reply, "medical conditions") {
		t.Fatalf("expected history question, got %q", reply)
	}
	profile, _ = st.GetProfile(phone)
	if profile.Age == nil || *profile.Age != 29 {
		t.Fatalf("age not stored as integer: %+v", profile)
	}

	reply = advance(t, o, st, phone, "asthma, hay fever")
	if !strings.Contains(reply, "All set") {
		t.Fatalf("expected completion message, got %q", reply)
	}
	profile, _ = st.GetProfile(phone)
	if profile.State != models.StateChat {
		t.Fatalf("expected terminal chat state, got %v", profile.State)
	}
	if len(profile.MedicalHistory) != 2 || profile.MedicalHistory[0] != "asthma" {
		t.Errorf("medical history not parsed: %v", profile.MedicalHistory)
	}
}

func TestOnboardingInvalidAgeReprompts(t *testing.T) {
	st := store.NewInMemoryStore()
	o := NewOnboarding(st, VariantHistory)
	phone := "+1"

	advance(t, o, st, phone, "hello")
	advance(t, o, st, phone, "Maria")

	for _, bad := range []string{"abc", "-3", "0", "900", "29 years"} {
		reply := advance(t, o, st, phone, bad)
		if reply != promptAgeInvalid {
			t.Errorf("input %q: expected age re-prompt, got %q", bad, reply)
		}
		profile, _ := st.GetProfile(phone)
		if profile.State != models.StateGetAge {
			t.Errorf("input %q: state moved to %v", bad, profile.State)
		}
		if profile.Age != nil {
			t.Errorf("input %q: age was set to %d", bad, *profile.Age)
		}
	}

	// A valid answer still works after failed attempts.
	advance(t, o, st, phone, "33")
	profile, _ := st.GetProfile(phone)
	if profile.Age == nil || *profile.Age != 33 {
		t.Errorf("valid age not accepted after re-prompts: %+v", profile)
	}
}

func TestOnboardingStructuredVariant(t *testing.T) {
	st := store.NewInMemoryStore()
	o := NewOnboarding(st, VariantStructured)
	phone := "+1"

	reply := advance(t, o, st, phone, "hey")
	if !strings.Contains(reply, "medical conditions") {
		t.Fatalf("expected conditions question, got %q", reply)
	}

	reply = advance(t, o, st, phone, "diabetes, hypertension")
	if !strings.Contains(reply, "medications") {
		t.Fatalf("expected medications question, got %q", reply)
	}
	profile, _ := st.GetProfile(phone)
	if len(profile.Conditions) != 2 {
		t.Errorf("conditions not parsed: %v", profile.Conditions)
	}

	reply = advance(t, o, st, phone, "none")
	if !strings.Contains(reply, "All set") {
		t.Fatalf("expected completion, got %q", reply)
	}
	profile, _ = st.GetProfile(phone)
	if profile.State != models.StateChat {
		t.Errorf("expected chat state, got %v", profile.State)
	}
	if len(profile.Medications) != 0 {
		t.Errorf("\"none\" should yield empty medication list, got %v", profile.Medications)
	}
}

func TestOnboardingEmptyNameReprompts(t *testing.T) {
	st := store.NewInMemoryStore()
	o := NewOnboarding(st, VariantHistory)
	phone := "+1"

	advance(t, o, st, phone, "hi")
	reply := advance(t, o, st, phone, "   ")
	if reply != promptWelcome {
		t.Errorf("expected name re-prompt, got %q", reply)
	}
	profile, _ := st.GetProfile(phone)
	if profile.State != models.StateGetName || profile.Name != "" {
		t.Errorf("empty name mutated profile: %+v", profile)
	}
}

func TestSplitList(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"a, b, c", 3},
		{"none", 0},
		{"NONE", 0},
		{"", 0},
		{"aspirin,,warfarin", 2},
	}
	for _, c := range cases {
		if got := splitList(c.in); len(got) != c.want {
			t.Errorf("splitList(%q) = %v, want %d items", c.in, got, c.want)
		}
	}
}
