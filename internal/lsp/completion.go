package lsp

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DefaultMaxSuggestions is the largest suggestion list that is delivered.
// Longer lists are considered unusable and replaced by an empty one.
const DefaultMaxSuggestions = 13

// reservedPrefix marks standard library implementation details.
const reservedPrefix = "std::__"

// stopChars end the useful part of an insert text, e.g. template or call syntax.
const stopChars = "<($ {"

// RawCompletionItem is a completion candidate as sent by the server.
type RawCompletionItem struct {
	Label      string
	InsertText string
}

// SuggestionList is a sorted set of unique completion strings.
type SuggestionList []string

// SuggestionHook post-processes a filtered suggestion list.
type SuggestionHook interface {
	FilterSuggestions(suggestions []string) ([]string, error)
}

// DecodeCompletionItems extracts candidates from a textDocument/completion result.
//
// The result may be a CompletionList object, a bare array of items, or null.
// The insert text falls back to textEdit.newText and then to the label when
// absent; an explicitly empty insertText is kept as is.
func DecodeCompletionItems(result json.RawMessage) ([]RawCompletionItem, error) {
	root := gjson.ParseBytes(result)

	var items gjson.Result
	switch {
	case root.IsObject():
		items = root.Get("items")
		if !items.IsArray() {
			return nil, fmt.Errorf("%w: completion list without items array", ErrInvalidResponse)
		}
	case root.IsArray():
		items = root
	case root.Type == gjson.Null:
		return []RawCompletionItem{}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected completion result %s", ErrInvalidResponse, truncateBody(result))
	}

	decoded := make([]RawCompletionItem, 0, len(items.Array()))
	var err error
	items.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			err = fmt.Errorf("%w: completion item is not an object: %s", ErrInvalidResponse, item.Raw)
			return false
		}
		raw := RawCompletionItem{Label: item.Get("label").String()}
		if text := item.Get("insertText"); text.Exists() {
			raw.InsertText = text.String()
		} else if edit := item.Get("textEdit.newText"); edit.Exists() {
			raw.InsertText = edit.String()
		} else {
			raw.InsertText = raw.Label
		}
		decoded = append(decoded, raw)
		return true
	})
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// FilterSuggestions turns raw candidates into a short suggestion list.
//
// Empty and reserved texts are rejected, the rest is cut at the first
// stop character, sorted and deduplicated. When more than limit entries
// remain the whole list is discarded. A non-positive limit means
// DefaultMaxSuggestions. The result is never nil.
func FilterSuggestions(items []RawCompletionItem, limit int) SuggestionList {
	if limit <= 0 {
		limit = DefaultMaxSuggestions
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		text := item.InsertText
		if text == "" || isReserved(text) {
			continue
		}
		// A stop character at the start leaves an empty entry, which
		// still counts toward the limit.
		if i := strings.IndexAny(text, stopChars); i >= 0 {
			text = text[:i]
		}
		out = append(out, text)
	}

	slices.Sort(out)
	out = slices.Compact(out)

	if len(out) > limit {
		return SuggestionList{}
	}
	return SuggestionList(out)
}

// isReserved reports whether s names an implementation-reserved symbol:
// a leading underscore followed by another underscore or an upper-case
// letter, or anything under std::__.
func isReserved(s string) bool {
	if len(s) >= 2 && s[0] == '_' && (s[1] == '_' || (s[1] >= 'A' && s[1] <= 'Z')) {
		return true
	}
	return strings.HasPrefix(s, reservedPrefix)
}

// CompletionPipeline decodes, filters and optionally hooks completion results.
type CompletionPipeline struct {
	limit  int
	hook   SuggestionHook
	logger *logrus.Entry
}

// CompletionOption configures a CompletionPipeline.
type CompletionOption func(*CompletionPipeline)

// WithMaxSuggestions sets the suggestion cap.
func WithMaxSuggestions(n int) CompletionOption {
	return func(p *CompletionPipeline) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithSuggestionHook runs hook on every filtered list.
func WithSuggestionHook(hook SuggestionHook) CompletionOption {
	return func(p *CompletionPipeline) {
		p.hook = hook
	}
}

// NewCompletionPipeline creates a pipeline that logs hook failures to logger.
func NewCompletionPipeline(logger *logrus.Entry, opts ...CompletionOption) *CompletionPipeline {
	p := &CompletionPipeline{
		limit:  DefaultMaxSuggestions,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit returns the suggestion cap.
func (p *CompletionPipeline) Limit() int {
	return p.limit
}

// Process turns a completion result into the list delivered to the editor.
// Hook output is sorted and deduplicated again. A failing hook is logged
// and the unhooked list is returned.
func (p *CompletionPipeline) Process(result json.RawMessage) (SuggestionList, error) {
	items, err := DecodeCompletionItems(result)
	if err != nil {
		return nil, err
	}

	list := FilterSuggestions(items, p.limit)
	if p.hook == nil || len(list) == 0 {
		return list, nil
	}

	hooked, err := p.hook.FilterSuggestions(slices.Clone(list))
	if err != nil {
		p.logger.WithError(err).Warn("suggestion hook failed, using unfiltered suggestions")
		return list, nil
	}
	slices.Sort(hooked)
	hooked = slices.Compact(hooked)
	if len(hooked) > p.limit {
		return SuggestionList{}, nil
	}
	if hooked == nil {
		hooked = []string{}
	}
	return SuggestionList(hooked), nil
}
