package markdown

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestCompileInline(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"**bold**", "<strong>bold</strong>"},
		{"*italic*", "<em>italic</em>"},
		{"`code`", "<code>code</code>"},
		{"~~gone~~", "<del>gone</del>"},
		{"[link](https://example.com)", `<a href="https://example.com">link</a>`},
	}
	for _, tt := range tests {
		doc, err := Compile(tt.input)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tt.input, err)
		}
		if !strings.Contains(doc.HTML, tt.expected) {
			t.Errorf("Compile(%q) = %q, want it to contain %q", tt.input, doc.HTML, tt.expected)
		}
	}
}

func TestCompileHeadingIDs(t *testing.T) {
	doc, err := Compile("## Our Process\n\ntext")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.HTML, `<h2 id="our-process">Our Process</h2>`) {
		t.Errorf("expected heading id, got %q", doc.HTML)
	}
}

func TestCompileTable(t *testing.T) {
	doc, err := Compile("| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.HTML, "<table>") || !strings.Contains(doc.HTML, "<td>2</td>") {
		t.Errorf("expected a table, got %q", doc.HTML)
	}
}

func TestCompileDropsRawHTML(t *testing.T) {
	doc, err := Compile("hello\n\n<script>alert(1)</script>\n")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(doc.HTML, "<script>") {
		t.Errorf("raw HTML leaked: %q", doc.HTML)
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		words    int
		expected string
	}{
		{0, "1 min read"},
		{1, "1 min read"},
		{200, "1 min read"},
		{201, "2 min read"},
		{1000, "5 min read"},
	}
	for _, tt := range tests {
		content := strings.Repeat("word ", tt.words)
		if got := ReadingTime(content); got != tt.expected {
			t.Errorf("ReadingTime(%d words) = %q, want %q", tt.words, got, tt.expected)
		}
	}
}

func TestCountWordsIgnoresMarkup(t *testing.T) {
	if got := CountWords("# Title\n\n- one\n- two\n\n---\n"); got != 3 {
		t.Errorf("CountWords = %d, want 3", got)
	}
}

func TestComponentRendersHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := Markdown("Hello *world*").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "<p>Hello <em>world</em></p>\n" {
		t.Errorf("rendered %q", got)
	}
}
