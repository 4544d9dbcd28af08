package lsp

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeDiagnostics_Empty(t *testing.T) {
	uri, diags, err := DecodeDiagnostics(json.RawMessage(`{"uri":"file:///a.cpp","diagnostics":[]}`))
	if err != nil {
		t.Fatalf("DecodeDiagnostics() error = %v", err)
	}
	if uri != "file:///a.cpp" {
		t.Errorf("uri = %q", uri)
	}
	if diags == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(diags) != 0 {
		t.Errorf("len = %d, want 0", len(diags))
	}
}

func TestDecodeDiagnostics_Entries(t *testing.T) {
	params := `{
		"uri": "file:///a.cpp",
		"version": 3,
		"diagnostics": [
			{
				"category": "Semantic Issue",
				"message": "use of undeclared identifier 'x'",
				"range": {"start": {"line": 4, "character": 2}, "end": {"line": 4, "character": 3}},
				"severity": 1,
				"source": "clang"
			},
			{
				"category": "Parse Issue",
				"message": "expected ';' after expression",
				"range": {"start": {"line": 0, "character": 10}, "end": {"line": 1, "character": 0}}
			}
		]
	}`

	_, diags, err := DecodeDiagnostics(json.RawMessage(params))
	if err != nil {
		t.Fatalf("DecodeDiagnostics() error = %v", err)
	}
	if len(diags) != 2 {
		t.Fatalf("len = %d, want 2", len(diags))
	}

	want := []Diagnostic{
		{
			Category: "Semantic Issue",
			Message:  "use of undeclared identifier 'x'",
			Range:    Range{Start: Position{Line: 4, Character: 2}, End: Position{Line: 4, Character: 3}},
			Severity: DiagnosticSeverityError,
			Source:   "clang",
		},
		{
			Category: "Parse Issue",
			Message:  "expected ';' after expression",
			Range:    Range{Start: Position{Line: 0, Character: 10}, End: Position{Line: 1, Character: 0}},
		},
	}
	for i := range want {
		if diags[i] != want[i] {
			t.Errorf("diags[%d] = %+v, want %+v", i, diags[i], want[i])
		}
	}
}

func TestDecodeDiagnostics_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing diagnostics", `{"uri":"file:///a.c"}`},
		{"diagnostics not array", `{"uri":"file:///a.c","diagnostics":{}}`},
		{"entry not object", `{"uri":"file:///a.c","diagnostics":[1]}`},
		{"params not object", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags, err := DecodeDiagnostics(json.RawMessage(tt.input))
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("error = %v, want ErrInvalidResponse", err)
			}
			if diags != nil {
				t.Errorf("diags = %v, want nil", diags)
			}
		})
	}
}

func TestDiagnosticSeverity_String(t *testing.T) {
	tests := map[DiagnosticSeverity]string{
		DiagnosticSeverityError:       "error",
		DiagnosticSeverityWarning:     "warning",
		DiagnosticSeverityInformation: "info",
		DiagnosticSeverityHint:        "hint",
		0:                             "unknown",
	}
	for sev, want := range tests {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
	}
}
