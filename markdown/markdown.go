// Package markdown compiles post bodies to HTML and estimates reading time.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/a-h/templ"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// WordsPerMinute is the reading speed behind ReadingTime.
const WordsPerMinute = 200

var engine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Document is a compiled post body.
type Document struct {
	HTML        string
	Words       int
	ReadingTime string
}

// Compile renders content to HTML. Raw HTML in the source is dropped.
func Compile(content string) (Document, error) {
	var buf bytes.Buffer
	if err := engine.Convert([]byte(content), &buf); err != nil {
		return Document{}, eris.Wrap(err, "rendering markdown")
	}
	words := CountWords(content)
	return Document{
		HTML:        buf.String(),
		Words:       words,
		ReadingTime: formatMinutes(words),
	}, nil
}

// Component returns a templ.Component writing the compiled HTML.
func (d Document) Component() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, d.HTML)
		return err
	})
}

// Markdown compiles content and returns it as a component. Compilation
// errors surface when the component renders.
func Markdown(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		doc, err := Compile(content)
		if err != nil {
			return err
		}
		return doc.Component().Render(ctx, w)
	})
}

// CountWords counts whitespace separated words, ignoring markup-only tokens
// such as list bullets and heading markers.
func CountWords(content string) int {
	n := 0
	for _, f := range strings.Fields(content) {
		if strings.Trim(f, "#*-_>`|~=+") != "" {
			n++
		}
	}
	return n
}

// ReadingTime returns an estimate like "4 min read". Never less than one
// minute.
func ReadingTime(content string) string {
	return formatMinutes(CountWords(content))
}

func formatMinutes(words int) string {
	minutes := int(math.Ceil(float64(words) / WordsPerMinute))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d min read", minutes)
}
