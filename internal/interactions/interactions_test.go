package interactions

import (
	"strings"
	"testing"
)

func TestCheckKnownPair(t *testing.T) {
	warnings := Check([]string{"aspirin", "warfarin"})
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	w := warnings[0]
	if w.First != "aspirin" || w.Second != "warfarin" {
		t.Errorf("unexpected pair: %s / %s", w.First, w.Second)
	}
	if w.Message != "increased bleeding risk" {
		t.Errorf("unexpected message: %s", w.Message)
	}
}

func TestCheckOrderIndependent(t *testing.T) {
	a := Check([]string{"aspirin", "warfarin"})
	b := Check([]string{"warfarin", "aspirin"})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected 1 warning each, got %d and %d", len(a), len(b))
	}
	if a[0] != b[0] {
		t.Errorf("warnings differ by input order: %+v vs %+v", a[0], b[0])
	}
}

func TestCheckCaseInsensitive(t *testing.T) {
	warnings := Check([]string{" Aspirin ", "WARFARIN"})
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
}

func TestCheckDeduplicatesPairs(t *testing.T) {
	// Duplicated entries must still yield a single warning per unordered pair.
	warnings := Check([]string{"aspirin", "warfarin", "aspirin"})
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
}

func TestCheckMultiplePairs(t *testing.T) {
	warnings := Check([]string{"aspirin", "warfarin", "ibuprofen"})
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %+v", len(warnings), warnings)
	}
	// Result must be sorted by pair.
	for i := 1; i < len(warnings); i++ {
		prev, cur := warnings[i-1], warnings[i]
		if prev.First > cur.First || (prev.First == cur.First && prev.Second > cur.Second) {
			t.Errorf("warnings not sorted: %+v before %+v", prev, cur)
		}
	}
}

func TestCheckNoInteraction(t *testing.T) {
	if warnings := Check([]string{"metformin", "sertraline"}); len(warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", warnings)
	}
	if warnings := Check(nil); len(warnings) != 0 {
		t.Errorf("expected no warnings for empty list, got %+v", warnings)
	}
	if warnings := Check([]string{"aspirin"}); len(warnings) != 0 {
		t.Errorf("expected no warnings for single medication, got %+v", warnings)
	}
}

func TestFormatWarnings(t *testing.T) {
	out := FormatWarnings(Check([]string{"aspirin", "warfarin"}))
	if !strings.Contains(out, "Medication interaction warning") {
		t.Errorf("missing header in %q", out)
	}
	if !strings.Contains(out, "aspirin and warfarin: increased bleeding risk.") {
		t.Errorf("missing warning line in %q", out)
	}
	if FormatWarnings(nil) != "" {
		t.Error("expected empty string for no warnings")
	}
}
