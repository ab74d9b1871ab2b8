package ai

import "testing"

type sampleOut struct {
	Method string   `json:"method"`
	Names  []string `json:"names"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "standard json",
			input: `{"method": "exact", "names": ["Jane"]}`,
		},
		{
			name:  "double encoded",
			input: `"{\"method\": \"exact\", \"names\": [\"Jane\"]}"`,
		},
		{
			name:  "unquoted keys repaired",
			input: `{method: "exact", names: ["Jane"]}`,
		},
		{
			name:  "trailing comma repaired",
			input: `{"method": "exact", "names": ["Jane"],}`,
		},
		{
			name:  "duplicate leading brace",
			input: `{{"method": "exact", "names": ["Jane"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out sampleOut
			if err := UnmarshalFlexible(tt.input, &out); err != nil {
				t.Fatalf("UnmarshalFlexible failed: %v", err)
			}
			if out.Method != "exact" {
				t.Fatalf("unexpected method: %q", out.Method)
			}
			if len(out.Names) != 1 || out.Names[0] != "Jane" {
				t.Fatalf("unexpected names: %v", out.Names)
			}
		})
	}
}

func TestUnmarshalFlexibleRejectsGarbage(t *testing.T) {
	var out sampleOut
	if err := UnmarshalFlexible("not json at all [[[", &out); err == nil {
		t.Fatal("expected error for unrepairable input")
	}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(&sampleOut{})
	if schema == nil {
		t.Fatal("expected non-nil schema")
	}
}
