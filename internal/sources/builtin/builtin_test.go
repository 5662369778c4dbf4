package builtin

import (
	"testing"

	"github.com/usgs/vdx/internal/source"
)

func TestFactoriesHoldsEveryKind(t *testing.T) {
	f := Factories()
	want := []string{"csv", "generic", "gps", "hypocenters", "lightning", "rainfall", "ratio", "rsam", "strain", "thermal", "tilt", "voltage"}
	got := f.Kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d kinds, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kind %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	f := source.NewFactories()
	if err := Register(f); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(f); err == nil {
		t.Fatalf("expected duplicate kinds to be rejected")
	}
}
