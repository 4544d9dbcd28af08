package lsp

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// DecodeDiagnostics reads a textDocument/publishDiagnostics notification.
//
// Entries keep their order and are not filtered. An empty array yields an
// empty, non-nil slice so that clearing diagnostics can be told apart from a
// malformed payload, which is reported as an error.
func DecodeDiagnostics(params json.RawMessage) (DocumentURI, []Diagnostic, error) {
	root := gjson.ParseBytes(params)
	if !root.IsObject() {
		return "", nil, fmt.Errorf("%w: diagnostics params are not an object", ErrInvalidResponse)
	}

	uri := DocumentURI(root.Get("uri").String())

	list := root.Get("diagnostics")
	if !list.IsArray() {
		return uri, nil, fmt.Errorf("%w: missing diagnostics array", ErrInvalidResponse)
	}

	diags := make([]Diagnostic, 0, len(list.Array()))
	var err error
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			err = fmt.Errorf("%w: diagnostic is not an object: %s", ErrInvalidResponse, entry.Raw)
			return false
		}
		diags = append(diags, Diagnostic{
			Category: entry.Get("category").String(),
			Message:  entry.Get("message").String(),
			Range:    decodeRange(entry.Get("range")),
			Severity: DiagnosticSeverity(entry.Get("severity").Int()),
			Source:   entry.Get("source").String(),
		})
		return true
	})
	if err != nil {
		return uri, nil, err
	}
	return uri, diags, nil
}

func decodeRange(v gjson.Result) Range {
	return Range{
		Start: decodePosition(v.Get("start")),
		End:   decodePosition(v.Get("end")),
	}
}

func decodePosition(v gjson.Result) Position {
	return Position{
		Line:      int(v.Get("line").Int()),
		Character: int(v.Get("character").Int()),
	}
}
