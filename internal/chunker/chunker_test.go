package chunker

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	if got := Split("   \n\n ", 100); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestSplit_ShortContent(t *testing.T) {
	text := "This is a short memory."
	got := Split(text, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Text != text {
		t.Errorf("expected %q, got %q", text, got[0].Text)
	}
	if got[0].StartLine != 1 || got[0].EndLine != 1 {
		t.Errorf("expected lines 1-1, got %d-%d", got[0].StartLine, got[0].EndLine)
	}
}

func TestSplit_PacksSmallParagraphs(t *testing.T) {
	text := "# A\n\nShort.\n\n# B\n\nAlso short."
	got := Split(text, 600)
	if len(got) != 1 {
		t.Fatalf("expected 1 packed window, got %d", len(got))
	}
	if got[0].Text != text {
		t.Errorf("packed text = %q", got[0].Text)
	}
	if got[0].EndLine != 7 {
		t.Errorf("expected EndLine 7, got %d", got[0].EndLine)
	}
}

func TestSplit_SplitsOnHeadings(t *testing.T) {
	section := strings.Repeat("Some content filling space. ", 12)
	text := "# One\n" + section + "\n# Two\n" + section + "\n# Three\n" + section
	got := Split(text, 400)
	if len(got) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(got))
	}
	for i, name := range []string{"One", "Two", "Three"} {
		if !strings.HasPrefix(got[i].Text, "# "+name) {
			t.Errorf("window %d should start with heading %q, got %q", i, name, got[i].Text[:10])
		}
	}
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "This is a line of text that is about fifty characters long.")
	}
	long := strings.Repeat("x", 700)
	text := strings.Join(lines, "\n") + "\n" + long

	got := Split(text, 300)
	if len(got) < 5 {
		t.Fatalf("expected several windows, got %d", len(got))
	}
	for i, w := range got {
		if len(w.Text) > 300 {
			t.Errorf("window %d is %d bytes, over the limit", i, len(w.Text))
		}
		if w.StartLine > w.EndLine {
			t.Errorf("window %d has inverted span %d-%d", i, w.StartLine, w.EndLine)
		}
	}
}

func TestSplit_KeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("é", 100) // 200 bytes, no line breaks
	for _, w := range Split(text, 33) {
		if !strings.HasPrefix(w.Text, "é") || strings.ContainsRune(w.Text, '�') {
			t.Fatalf("window split a rune: %q", w.Text)
		}
	}
}
