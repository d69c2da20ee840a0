// Package interactions checks medication lists against a static table of known
// drug-drug interactions.
package interactions

import (
	"fmt"
	"sort"
	"strings"
)

// Warning describes one known interaction between two medications.
type Warning struct {
	First   string `json:"first"`
	Second  string `json:"second"`
	Message string `json:"message"`
}

// interactionTable maps a lower-cased medication name to the set of
// medications it is known to conflict with. Entries are listed in one
// direction; lookups check both.
var interactionTable = map[string]map[string]string{
	"aspirin": {
		"warfarin":  "increased bleeding risk",
		"ibuprofen": "increased risk of gastrointestinal bleeding",
	},
	"warfarin": {
		"ibuprofen":  "increased bleeding risk",
		"amiodarone": "enhanced anticoagulant effect",
	},
	"lisinopril": {
		"spironolactone": "risk of high potassium levels",
		"ibuprofen":      "reduced kidney function and blood pressure control",
	},
	"metformin": {
		"furosemide": "may affect blood sugar control",
	},
	"simvastatin": {
		"amiodarone":     "increased risk of muscle damage",
		"clarithromycin": "increased risk of muscle damage",
	},
	"sertraline": {
		"tramadol": "risk of serotonin syndrome",
	},
}

// Check returns one warning per unordered pair of interacting medications in
// the input list. Matching is case-insensitive and the result is independent
// of input ordering; a pair found in both directions of the table is still
// reported once.
func Check(medications []string) []Warning {
	seen := make(map[string]bool)
	var warnings []Warning

	for i := 0; i < len(medications); i++ {
		for j := i + 1; j < len(medications); j++ {
			a := strings.ToLower(strings.TrimSpace(medications[i]))
			b := strings.ToLower(strings.TrimSpace(medications[j]))
			if a == "" || b == "" || a == b {
				continue
			}

			message, found := lookup(a, b)
			if !found {
				continue
			}

			// Key on the sorted pair so symmetric hits dedupe.
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			key := lo + "|" + hi
			if seen[key] {
				continue
			}
			seen[key] = true
			warnings = append(warnings, Warning{
				First:   lo,
				Second:  hi,
				Message: message,
			})
		}
	}

	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].First != warnings[j].First {
			return warnings[i].First < warnings[j].First
		}
		return warnings[i].Second < warnings[j].Second
	})
	return warnings
}

// lookup finds an interaction message for the pair in either direction.
func lookup(a, b string) (string, bool) {
	if conflicts, ok := interactionTable[a]; ok {
		if msg, ok := conflicts[b]; ok {
			return msg, true
		}
	}
	if conflicts, ok := interactionTable[b]; ok {
		if msg, ok := conflicts[a]; ok {
			return msg, true
		}
	}
	return "", false
}

// FormatWarnings renders warnings as user-facing lines, one per pair.
func FormatWarnings(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("⚠️ Medication interaction warning:")
	for _, w := range warnings {
		sb.WriteString(fmt.Sprintf("\n- %s and %s: %s.", w.First, w.Second, w.Message))
	}
	return sb.String()
}
