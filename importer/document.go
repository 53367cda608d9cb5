package importer

import (
	"bytes"
	_ "embed"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/eringen/agencycms/markdown"
	"github.com/eringen/agencycms/store"
)

//go:embed frontmatter.schema.json
var schemaJSON []byte

var frontMatterSchema = mustSchema(schemaJSON)

func mustSchema(b []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		panic(err)
	}
	return s
}

// ErrInvalidDocument is returned for files whose front matter is missing,
// malformed or fails schema validation.
var ErrInvalidDocument = eris.New("invalid document")

type tagList []string

// UnmarshalYAML accepts a sequence or a comma separated scalar.
func (t *tagList) UnmarshalYAML(n *yaml.Node) error {
	var raw []string
	switch n.Kind {
	case yaml.SequenceNode:
		if err := n.Decode(&raw); err != nil {
			return err
		}
	case yaml.ScalarNode:
		raw = strings.Split(n.Value, ",")
	default:
		return eris.New("tags must be a list or a comma separated string")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*t = out
	return nil
}

type frontMatter struct {
	Title       string  `yaml:"title"`
	Slug        string  `yaml:"slug"`
	Date        string  `yaml:"date"`
	Excerpt     string  `yaml:"excerpt"`
	Description string  `yaml:"description"`
	Author      string  `yaml:"author"`
	AuthorImage string  `yaml:"authorImage"`
	CoverImage  string  `yaml:"coverImage"`
	Image       string  `yaml:"image"`
	Category    string  `yaml:"category"`
	Tags        tagList `yaml:"tags"`
	Draft       bool    `yaml:"draft"`
	Featured    bool    `yaml:"featured"`
	ReadingTime string  `yaml:"readingTime"`
}

// Document is a parsed content file.
type Document struct {
	Post store.PostPatch
	Tags []string
}

// ParseDocument splits YAML front matter from the body of a markdown file,
// validates it and builds a post patch. The slug falls back to the file name
// and reading time is computed from the body when not given.
func ParseDocument(name string, data []byte) (Document, error) {
	head, body, err := splitFrontMatter(data)
	if err != nil {
		return Document{}, eris.Wrapf(ErrInvalidDocument, "%s: %v", name, err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(head, &generic); err != nil {
		return Document{}, eris.Wrapf(ErrInvalidDocument, "%s: front matter: %v", name, err)
	}
	if generic == nil {
		generic = map[string]any{}
	}
	result, err := frontMatterSchema.Validate(gojsonschema.NewGoLoader(generic))
	if err != nil {
		return Document{}, eris.Wrapf(ErrInvalidDocument, "%s: %v", name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Document{}, eris.Wrapf(ErrInvalidDocument, "%s: %s", name, strings.Join(msgs, "; "))
	}

	var fm frontMatter
	if err := yaml.Unmarshal(head, &fm); err != nil {
		return Document{}, eris.Wrapf(ErrInvalidDocument, "%s: front matter: %v", name, err)
	}

	slug := fm.Slug
	if slug == "" {
		slug = store.Slugify(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	}
	excerpt := firstNonEmpty(fm.Excerpt, fm.Description)
	cover := firstNonEmpty(fm.CoverImage, fm.Image)
	content := strings.TrimSpace(string(body))
	reading := firstNonEmpty(fm.ReadingTime, markdown.ReadingTime(content))
	tags := []string(fm.Tags)
	if tags == nil {
		tags = []string{}
	}

	patch := store.PostPatch{
		Slug:        &slug,
		Title:       store.Ptr(strings.TrimSpace(fm.Title)),
		Content:     &content,
		Excerpt:     &excerpt,
		Author:      &fm.Author,
		AuthorImage: &fm.AuthorImage,
		CoverImage:  &cover,
		Category:    &fm.Category,
		Tags:        &tags,
		Draft:       &fm.Draft,
		Featured:    &fm.Featured,
		ReadingTime: &reading,
	}
	if d := strings.TrimSpace(fm.Date); d != "" {
		if len(d) > 10 {
			d = d[:10]
		}
		patch.Date = &d
	}
	return Document{Post: patch, Tags: tags}, nil
}

// splitFrontMatter returns the YAML between leading "---" fences and the
// rest of the file.
func splitFrontMatter(data []byte) (head, body []byte, err error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, nil, eris.New("missing front matter")
	}
	rest := data[len("---\n"):]
	end := 0
	if !bytes.HasPrefix(rest, []byte("---")) {
		i := bytes.Index(rest, []byte("\n---"))
		if i < 0 {
			return nil, nil, eris.New("unterminated front matter")
		}
		end = i + 1
	}
	head = rest[:end]
	after := rest[end+len("---"):]
	if i := bytes.IndexByte(after, '\n'); i >= 0 {
		body = after[i+1:]
	}
	return head, body, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
