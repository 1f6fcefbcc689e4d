// Package chunker splits long markdown-ish text into bounded windows. The
// embedding adapter mean-pools over windows when content exceeds the
// provider input limit, and `put --chunk` stores each window as its own memory.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxSize is the window size used when none is given.
const DefaultMaxSize = 600

// Window is a piece of the input with its 1-based line span.
type Window struct {
	Text      string
	StartLine int
	EndLine   int
}

// Split cuts text into windows of at most maxSize bytes. Paragraph and
// heading boundaries are preferred; paragraphs are packed together while they
// fit, oversized paragraphs fall back to line and finally rune boundaries.
// Short text yields a single window; blank text yields none.
func Split(text string, maxSize int) []Window {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		out  []Window
		acc  Window
		have bool
	)
	emit := func() {
		if have {
			out = append(out, acc)
		}
		acc, have = Window{}, false
	}

	for _, p := range paragraphs(text) {
		if len(p.Text) > maxSize {
			emit()
			out = append(out, splitLines(p, maxSize)...)
			continue
		}
		if have && len(acc.Text)+2+len(p.Text) <= maxSize {
			acc.Text += "\n\n" + p.Text
			acc.EndLine = p.EndLine
			continue
		}
		emit()
		acc, have = p, true
	}
	emit()
	return out
}

// paragraphs splits on blank lines and before markdown headings.
func paragraphs(text string) []Window {
	lines := strings.Split(text, "\n")
	var (
		out   []Window
		cur   []string
		start int
	)
	flush := func(end int) {
		t := strings.TrimSpace(strings.Join(cur, "\n"))
		if t != "" {
			out = append(out, Window{Text: t, StartLine: start, EndLine: end})
		}
		cur = nil
	}
	for i, line := range lines {
		n := i + 1
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush(n - 1)
			continue
		case strings.HasPrefix(trimmed, "#"):
			flush(n - 1)
		}
		if len(cur) == 0 {
			start = n
		}
		cur = append(cur, line)
	}
	flush(len(lines))
	return out
}

func splitLines(p Window, maxSize int) []Window {
	var (
		out []Window
		cur strings.Builder
		beg = p.StartLine
	)
	lines := strings.Split(p.Text, "\n")
	for i, line := range lines {
		n := p.StartLine + i
		if cur.Len() > 0 && cur.Len()+1+len(line) > maxSize {
			out = append(out, Window{Text: cur.String(), StartLine: beg, EndLine: n - 1})
			cur.Reset()
		}
		if cur.Len() == 0 {
			beg = n
		}
		if len(line) > maxSize {
			for _, piece := range splitRunes(line, maxSize) {
				out = append(out, Window{Text: piece, StartLine: n, EndLine: n})
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		out = append(out, Window{Text: cur.String(), StartLine: beg, EndLine: p.EndLine})
	}
	return out
}

func splitRunes(s string, maxSize int) []string {
	var out []string
	for len(s) > maxSize {
		cut := maxSize
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxSize
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
