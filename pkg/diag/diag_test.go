package diag

import (
	"errors"
	"testing"
)

func TestCatchableDistinguishesDiagnosticKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not implemented", NewNotImplemented("generators"), true},
		{"reference unresolved", NewReferenceUnresolved("x"), true},
		{"internal invariant", NewInternalInvariant("carrier has neither value nor node"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Catchable(tt.err); got != tt.want {
				t.Errorf("Catchable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewInternalInvariantFormatsLikeFmtErrorf(t *testing.T) {
	err := NewInternalInvariant("unexpected %s in %s", "carrier", "ValueLift")
	want := "internal invariant violated: unexpected carrier in ValueLift"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestEachConstructorAssignsAUniqueID(t *testing.T) {
	a := NewNotImplemented("x")
	b := NewNotImplemented("x")
	if a.ID == "" || b.ID == "" {
		t.Fatal("expected a non-empty ID from each constructor")
	}
	if a.ID == b.ID {
		t.Error("expected two separate diagnostics to get distinct IDs")
	}
}

func TestOccurrencesRecordsCaughtAndIDFromEachDiagnosticKind(t *testing.T) {
	var occ Occurrences

	ni := NewNotImplemented("destructuring")
	occ.Record(ni, true)

	ru := NewReferenceUnresolved("y")
	occ.Record(ru, false)

	plain := errors.New("thrown value")
	occ.Record(plain, true)

	all := occ.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 recorded occurrences, got %d", len(all))
	}
	if all[0].ID != ni.ID || !all[0].Caught {
		t.Errorf("entry 0 = %#v, want ID %q caught=true", all[0], ni.ID)
	}
	if all[1].ID != ru.ID || all[1].Caught {
		t.Errorf("entry 1 = %#v, want ID %q caught=false", all[1], ru.ID)
	}
	if all[2].ID != "" || !all[2].Caught {
		t.Errorf("entry 2 = %#v, want empty ID (non-diagnostic) caught=true", all[2])
	}
	if all[2].Message != "thrown value" {
		t.Errorf("entry 2 message = %q, want %q", all[2].Message, "thrown value")
	}
}
