package lsp

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// DocumentURI represents a URI as used in LSP.
// It is typically a file:// URI.
type DocumentURI string

// Position in a text document expressed as zero-based line and character offset.
// Character offset is measured in UTF-16 code units per the LSP specification.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document expressed as start and end positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a text document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem is an item to transfer a text document from the client to the server.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is a parameter literal used in requests to pass
// a text document and a position inside that document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextEdit represents a textual edit applicable to a text document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentContentChangeEvent describes a content change event.
// Only full-text changes are sent, so Range is never set.
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// --- Initialize ---

// InitializeParams are the parameters sent in an initialize request.
type InitializeParams struct {
	ProcessID    int                `json:"processId"`
	RootURI      DocumentURI        `json:"rootUri,omitempty"`
	Capabilities ClientCapabilities `json:"capabilities"`
}

// InitializedParams are the parameters sent in an initialized notification.
type InitializedParams struct{}

// ClientCapabilities define capabilities the client provides.
type ClientCapabilities struct {
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
	Window       *WindowClientCapabilities       `json:"window,omitempty"`
}

// TextDocumentClientCapabilities define capabilities for text documents.
type TextDocumentClientCapabilities struct {
	Completion         *CompletionClientCapabilities         `json:"completion,omitempty"`
	PublishDiagnostics *PublishDiagnosticsClientCapabilities `json:"publishDiagnostics,omitempty"`
	CodeAction         *struct{}                             `json:"codeAction,omitempty"`
	Formatting         *struct{}                             `json:"formatting,omitempty"`
	RangeFormatting    *struct{}                             `json:"rangeFormatting,omitempty"`
	FoldingRange       *FoldingRangeClientCapabilities       `json:"foldingRange,omitempty"`
	SelectionRange     *struct{}                             `json:"selectionRange,omitempty"`
}

// CompletionClientCapabilities define capabilities for completion.
type CompletionClientCapabilities struct {
	CompletionItem *CompletionItemCapabilities `json:"completionItem,omitempty"`
}

// CompletionItemCapabilities define capabilities for completion items.
type CompletionItemCapabilities struct {
	SnippetSupport bool `json:"snippetSupport"`
}

// PublishDiagnosticsClientCapabilities define capabilities for diagnostics.
type PublishDiagnosticsClientCapabilities struct {
	RelatedInformation bool `json:"relatedInformation,omitempty"`
	// CategorySupport is a clangd extension that adds "category" to diagnostics.
	CategorySupport bool `json:"categorySupport,omitempty"`
}

// FoldingRangeClientCapabilities define capabilities for folding ranges.
type FoldingRangeClientCapabilities struct {
	LineFoldingOnly bool `json:"lineFoldingOnly,omitempty"`
}

// WindowClientCapabilities define capabilities for the window.
type WindowClientCapabilities struct {
	WorkDoneProgress bool `json:"workDoneProgress,omitempty"`
}

// DefaultClientCapabilities returns the capabilities announced in initialize.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		TextDocument: &TextDocumentClientCapabilities{
			Completion: &CompletionClientCapabilities{
				CompletionItem: &CompletionItemCapabilities{SnippetSupport: false},
			},
			PublishDiagnostics: &PublishDiagnosticsClientCapabilities{
				RelatedInformation: true,
				CategorySupport:    true,
			},
			CodeAction:      &struct{}{},
			Formatting:      &struct{}{},
			RangeFormatting: &struct{}{},
			FoldingRange:    &FoldingRangeClientCapabilities{LineFoldingOnly: true},
			SelectionRange:  &struct{}{},
		},
		Window: &WindowClientCapabilities{WorkDoneProgress: true},
	}
}

// --- Document Sync ---

// DidOpenTextDocumentParams are parameters for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams are parameters for textDocument/didChange.
//
// WantDiagnostics is a clangd extension asking the server to publish
// diagnostics for this version.
type DidChangeTextDocumentParams struct {
	TextDocument    VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges  []TextDocumentContentChangeEvent `json:"contentChanges"`
	WantDiagnostics bool                             `json:"wantDiagnostics"`
}

// DidCloseTextDocumentParams are parameters for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// --- Completion ---

// CompletionParams are parameters for textDocument/completion.
type CompletionParams struct {
	TextDocumentPositionParams
}

// --- Diagnostics ---

// Diagnostic represents a diagnostic published by the server.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
	// Category is clangd's diagnostic category, e.g. "Semantic Issue".
	Category string `json:"category,omitempty"`
}

// DiagnosticSeverity represents the severity of a diagnostic.
type DiagnosticSeverity int

const (
	DiagnosticSeverityError       DiagnosticSeverity = 1
	DiagnosticSeverityWarning     DiagnosticSeverity = 2
	DiagnosticSeverityInformation DiagnosticSeverity = 3
	DiagnosticSeverityHint        DiagnosticSeverity = 4
)

// String returns the lower-case severity name.
func (s DiagnosticSeverity) String() string {
	switch s {
	case DiagnosticSeverityError:
		return "error"
	case DiagnosticSeverityWarning:
		return "warning"
	case DiagnosticSeverityInformation:
		return "info"
	case DiagnosticSeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// --- Code Action ---

// CodeActionParams are parameters for textDocument/codeAction.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

// CodeActionContext contains additional information for code action requests.
type CodeActionContext struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// CodeAction represents a code action or a bare command.
type CodeAction struct {
	Title   string `json:"title"`
	Kind    string `json:"kind,omitempty"`
	Command string `json:"command,omitempty"`
}

// --- Formatting ---

// DocumentFormattingParams are parameters for textDocument/formatting.
type DocumentFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Options      FormattingOptions      `json:"options"`
}

// DocumentRangeFormattingParams are parameters for textDocument/rangeFormatting.
type DocumentRangeFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Options      FormattingOptions      `json:"options"`
}

// FormattingOptions describe options for formatting.
type FormattingOptions struct {
	TabSize      int  `json:"tabSize"`
	InsertSpaces bool `json:"insertSpaces"`
}

// DefaultFormattingOptions returns four-space indentation.
func DefaultFormattingOptions() FormattingOptions {
	return FormattingOptions{TabSize: 4, InsertSpaces: true}
}

// --- Folding / Selection ---

// FoldingRangeParams are parameters for textDocument/foldingRange.
type FoldingRangeParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// FoldingRange is a foldable region of lines.
type FoldingRange struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Kind      string `json:"kind,omitempty"`
}

// SelectionRangeParams are parameters for textDocument/selectionRange.
type SelectionRangeParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Positions    []Position             `json:"positions"`
}

// SelectionRange is a range with an optional enclosing parent range.
type SelectionRange struct {
	Range  Range           `json:"range"`
	Parent *SelectionRange `json:"parent,omitempty"`
}

// --- Window ---

// MessageType is the severity of a window/logMessage or window/showMessage.
type MessageType int

const (
	MessageTypeError   MessageType = 1
	MessageTypeWarning MessageType = 2
	MessageTypeInfo    MessageType = 3
	MessageTypeLog     MessageType = 4
)

// --- Utility Functions ---

// FilePathToURI converts a file path to a DocumentURI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	path = filepath.ToSlash(path)

	// On Windows, add extra slash for drive letter
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}

	u := &url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a DocumentURI to a file path.
// Non-file URIs are returned unchanged.
func URIToFilePath(uri DocumentURI) string {
	if uri == "" {
		return ""
	}

	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}

	path := u.Path
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// DetectLanguageID returns the LSP language ID for a file path.
// The set covers the languages clangd understands plus a plaintext fallback.
func DetectLanguageID(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return "c"
	case ".cpp", ".cc", ".cxx", ".c++", ".hpp", ".hh", ".hxx", ".h", ".ipp", ".tpp":
		return "cpp"
	case ".m":
		return "objective-c"
	case ".mm":
		return "objective-cpp"
	case ".cu", ".cuh":
		return "cuda-cpp"
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".py":
		return "python"
	default:
		return "plaintext"
	}
}
