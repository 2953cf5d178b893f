package task

import (
	"testing"

	"github.com/MaTriXy/babysitter-sub005/internal/schema"
)

func TestDefinitionValidate(t *testing.T) {
	output := schema.MustCompile(schema.Schema{})
	cases := []struct {
		name string
		def  Definition
		ok   bool
	}{
		{"valid", Definition{ID: "scaffold", Title: "Scaffold project", Output: output}, true},
		{"missing-id", Definition{Title: "x", Output: output}, false},
		{"missing-title", Definition{ID: "x", Output: output}, false},
		{"missing-output", Definition{ID: "x", Title: "x"}, false},
	}
	for _, tc := range cases {
		err := tc.def.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParamsCloneIsIndependent(t *testing.T) {
	params := Params{"project": "demo"}
	clone := params.Clone()
	clone["project"] = "other"
	if params["project"] != "demo" {
		t.Fatalf("clone mutated the original params")
	}
}

func TestResultCloneIsIndependent(t *testing.T) {
	result := Result{Data: map[string]any{"score": 90}}
	clone := result.Clone()
	clone.Data["score"] = 10
	if result.Data["score"] != 90 {
		t.Fatalf("clone mutated the original result")
	}
}

func TestHasLabel(t *testing.T) {
	def := Definition{Labels: []string{"testing", "final"}}
	if !def.HasLabel("testing") {
		t.Fatalf("expected testing label")
	}
	if def.HasLabel("planning") {
		t.Fatalf("unexpected planning label")
	}
}
