package lsp

import "testing"

func TestPositionConverter_Lines(t *testing.T) {
	pc := NewPositionConverter("one\ntwo\n\nfour")

	if pc.LineCount() != 4 {
		t.Fatalf("LineCount() = %d, want 4", pc.LineCount())
	}
	tests := []struct {
		line int
		want string
	}{
		{0, "one"},
		{1, "two"},
		{2, ""},
		{3, "four"},
		{4, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := pc.LineContent(tt.line); got != tt.want {
			t.Errorf("LineContent(%d) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestPositionConverter_PositionToByteOffset(t *testing.T) {
	// "é" is two bytes and one UTF-16 unit, "𝄞" is four bytes and two units.
	pc := NewPositionConverter("aé𝄞b\nxy")

	tests := []struct {
		name string
		pos  Position
		want int
	}{
		{"start", Position{Line: 0, Character: 0}, 0},
		{"after ascii", Position{Line: 0, Character: 1}, 1},
		{"after two byte rune", Position{Line: 0, Character: 2}, 3},
		{"after surrogate pair", Position{Line: 0, Character: 4}, 7},
		{"end of line", Position{Line: 0, Character: 5}, 8},
		{"clamped to line end", Position{Line: 0, Character: 99}, 8},
		{"second line", Position{Line: 1, Character: 1}, 10},
		{"negative line", Position{Line: -1, Character: 3}, 0},
		{"past last line", Position{Line: 5, Character: 0}, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pc.PositionToByteOffset(tt.pos); got != tt.want {
				t.Errorf("PositionToByteOffset(%v) = %d, want %d", tt.pos, got, tt.want)
			}
		})
	}
}

func TestPositionConverter_CharAfter(t *testing.T) {
	pc := NewPositionConverter("a𝄞)\n")

	if r, ok := pc.CharAfter(Position{Line: 0, Character: 1}); !ok || r != '𝄞' {
		t.Errorf("CharAfter(0:1) = %q, %v", r, ok)
	}
	if r, ok := pc.CharAfter(Position{Line: 0, Character: 3}); !ok || r != ')' {
		t.Errorf("CharAfter(0:3) = %q, %v", r, ok)
	}
	if _, ok := pc.CharAfter(Position{Line: 0, Character: 4}); ok {
		t.Error("expected end of line")
	}
	if _, ok := pc.CharAfter(Position{Line: 1, Character: 0}); ok {
		t.Error("expected end of text on trailing empty line")
	}
}

func TestComparePositions(t *testing.T) {
	tests := []struct {
		a, b Position
		want int
	}{
		{Position{Line: 1, Character: 0}, Position{Line: 2, Character: 0}, -1},
		{Position{Line: 2, Character: 0}, Position{Line: 1, Character: 9}, 1},
		{Position{Line: 1, Character: 2}, Position{Line: 1, Character: 3}, -1},
		{Position{Line: 1, Character: 4}, Position{Line: 1, Character: 3}, 1},
		{Position{Line: 1, Character: 3}, Position{Line: 1, Character: 3}, 0},
	}
	for _, tt := range tests {
		if got := ComparePositions(tt.a, tt.b); got != tt.want {
			t.Errorf("ComparePositions(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
