package extract

import (
	"reflect"
	"strings"
	"testing"
)

func TestParagraphs_EmptyInput(t *testing.T) {
	if got := Paragraphs("  \n\n ", 0); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestParagraphs_SplitsOnBlankLinesAndBreaks(t *testing.T) {
	text := "# Chapter One\nMara woke.\nShe stood.\n\n***\nTom slept.\n"
	got := Paragraphs(text, 0)
	want := []Paragraph{
		{Text: "Mara woke.\nShe stood.", StartLine: 2, EndLine: 3},
		{Text: "Tom slept.", StartLine: 6, EndLine: 6},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParagraphs_SplitsOversizeOnSentences(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."
	got := Paragraphs(text, 40)
	if len(got) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %+v", len(got), got)
	}
	if got[0].Text != "One two three. Four five six." {
		t.Errorf("first paragraph = %q", got[0].Text)
	}
	for _, p := range got {
		if len(p.Text) > 40 {
			t.Errorf("paragraph exceeds max size: %d chars", len(p.Text))
		}
	}
}

func TestParagraphs_LongSentenceKeptWhole(t *testing.T) {
	long := strings.Repeat("word ", 30) + "end."
	got := Paragraphs(long, 20)
	if len(got) != 1 {
		t.Fatalf("expected 1 paragraph, got %d", len(got))
	}
}

func TestSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"No terminator", []string{"No terminator"}},
		{`"Run!" Mara cried. The end`, []string{`"Run!"`, "Mara cried.", "The end"}},
		{"Wait... what? Yes!", []string{"Wait...", "what?", "Yes!"}},
		{"Version 1.5 shipped.", []string{"Version 1.5 shipped."}},
	}
	for _, tt := range tests {
		got := Sentences(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Sentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
