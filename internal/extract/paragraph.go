package extract

import (
	"strings"
)

// DefaultMaxParagraph bounds a paragraph before it is split on sentences.
const DefaultMaxParagraph = 1200

// Paragraph is a block of narrative with its position in the input.
type Paragraph struct {
	Text      string
	StartLine int
	EndLine   int
}

// Paragraphs splits narrative on blank lines, headings and scene breaks
// ("***", "---"). Paragraphs longer than maxSize are split on sentence
// boundaries; maxSize <= 0 uses DefaultMaxParagraph.
func Paragraphs(text string, maxSize int) []Paragraph {
	if maxSize <= 0 {
		maxSize = DefaultMaxParagraph
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Paragraph
	var current []string
	start := 1

	flush := func(end int) {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			p := Paragraph{Text: t, StartLine: start, EndLine: end}
			if len(t) > maxSize {
				out = append(out, splitSentences(p, maxSize)...)
			} else {
				out = append(out, p)
			}
		}
		current = nil
	}

	for i, line := range strings.Split(text, "\n") {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isSceneBreak(trimmed) || strings.HasPrefix(trimmed, "#") {
			flush(lineNum - 1)
			continue
		}
		if len(current) == 0 {
			start = lineNum
		}
		current = append(current, trimmed)
	}
	flush(strings.Count(text, "\n") + 1)
	return out
}

func isSceneBreak(s string) bool {
	if len(s) < 3 {
		return false
	}
	return strings.Trim(s, "*-_~ ") == ""
}

// splitSentences breaks an oversized paragraph into pieces no longer than
// maxSize where sentence boundaries allow.
func splitSentences(p Paragraph, maxSize int) []Paragraph {
	var out []Paragraph
	var b strings.Builder
	for _, s := range Sentences(p.Text) {
		if b.Len() > 0 && b.Len()+1+len(s) > maxSize {
			out = append(out, Paragraph{Text: b.String(), StartLine: p.StartLine, EndLine: p.EndLine})
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	if b.Len() > 0 {
		out = append(out, Paragraph{Text: b.String(), StartLine: p.StartLine, EndLine: p.EndLine})
	}
	return out
}

// Sentences splits text after '.', '!' or '?' (optionally followed by a
// closing quote) when whitespace follows.
func Sentences(text string) []string {
	var out []string
	rs := []rune(text)
	begin := 0
	for i := 0; i < len(rs); i++ {
		if rs[i] != '.' && rs[i] != '!' && rs[i] != '?' {
			continue
		}
		end := i + 1
		for end < len(rs) && (rs[end] == '"' || rs[end] == '\'' || rs[end] == '”' || rs[end] == '’') {
			end++
		}
		if end < len(rs) && !isSpace(rs[end]) {
			continue
		}
		if s := strings.TrimSpace(string(rs[begin:end])); s != "" {
			out = append(out, s)
		}
		begin = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(rs[begin:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
