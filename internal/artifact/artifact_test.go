package artifact

import "testing"

func TestAggregatorPreservesOrderAndDuplicates(t *testing.T) {
	agg := NewAggregator()
	agg.Absorb("scaffold", []Ref{{Locator: "src/server.go"}, {Locator: "src/routes.go"}})
	agg.Absorb("implementation", []Ref{{Locator: "src/server.go"}})
	agg.Absorb("validation", []Ref{{Locator: "reports/validation.json"}})

	refs := agg.Refs()
	want := []Ref{
		{Locator: "src/server.go", Phase: "scaffold"},
		{Locator: "src/routes.go", Phase: "scaffold"},
		{Locator: "src/server.go", Phase: "implementation"},
		{Locator: "reports/validation.json", Phase: "validation"},
	}
	if len(refs) != len(want) {
		t.Fatalf("expected %d refs, got %d", len(want), len(refs))
	}
	for i, ref := range refs {
		if ref != want[i] {
			t.Fatalf("ref[%d] = %+v, want %+v", i, ref, want[i])
		}
	}
}

func TestRefsReturnsCopy(t *testing.T) {
	agg := NewAggregator()
	agg.Absorb("a", []Ref{{Locator: "one"}})
	refs := agg.Refs()
	refs[0].Locator = "mutated"
	if agg.Refs()[0].Locator != "one" {
		t.Fatalf("aggregator state leaked through Refs copy")
	}
}

func TestRefValidate(t *testing.T) {
	if err := (Ref{Locator: "  "}).Validate(); err == nil {
		t.Fatalf("expected error for blank locator")
	}
	if err := (Ref{Locator: "out/report.md"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
