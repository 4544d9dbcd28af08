package lsp

import "unicode"

// DocumentConfig describes the document a session opens.
type DocumentConfig struct {
	// Path is the file path. Used to derive URI and LanguageID when they are empty.
	Path string

	// URI overrides the URI derived from Path.
	URI DocumentURI

	// LanguageID overrides the language detected from Path.
	LanguageID string

	// Text is the initial full text sent with didOpen.
	Text string
}

// Document is the client-side state of the synchronized document.
type Document struct {
	URI        DocumentURI
	Path       string
	LanguageID string
	Version    int
	Text       string
	Open       bool

	// Cursor is the last known cursor position, in UTF-16 code units.
	Cursor Position

	// CompletionRequired is true when the character after Cursor is a
	// completion boundary.
	CompletionRequired bool
}

func newDocument(cfg DocumentConfig) *Document {
	doc := &Document{
		URI:        cfg.URI,
		Path:       cfg.Path,
		LanguageID: cfg.LanguageID,
		Text:       cfg.Text,
	}
	if doc.URI == "" {
		doc.URI = FilePathToURI(cfg.Path)
	}
	if doc.Path == "" {
		doc.Path = URIToFilePath(doc.URI)
	}
	if doc.LanguageID == "" {
		doc.LanguageID = DetectLanguageID(doc.Path)
	}
	return doc
}

// identifier returns the TextDocumentIdentifier of the document.
func (d *Document) identifier() TextDocumentIdentifier {
	return TextDocumentIdentifier{URI: d.URI}
}

// item returns the TextDocumentItem sent with didOpen.
func (d *Document) item() TextDocumentItem {
	return TextDocumentItem{
		URI:        d.URI,
		LanguageID: d.LanguageID,
		Version:    d.Version,
		Text:       d.Text,
	}
}

// moveCursor stores the cursor and recomputes CompletionRequired.
func (d *Document) moveCursor(pos Position) bool {
	d.Cursor = pos
	d.CompletionRequired = CompletionBoundaryAt(d.Text, pos)
	return d.CompletionRequired
}

// CompletionBoundaryAt reports whether the character following pos ends a word
// for completion purposes: end of text, end of line, whitespace or a closing
// bracket.
func CompletionBoundaryAt(text string, pos Position) bool {
	r, ok := NewPositionConverter(text).CharAfter(pos)
	if !ok {
		return true
	}
	return isBoundaryRune(r)
}

func isBoundaryRune(r rune) bool {
	switch r {
	case ')', ']', '}':
		return true
	}
	return unicode.IsSpace(r)
}
