// Package vault imports markdown files with YAML frontmatter as items and
// keeps them in sync with the item store.
package vault

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/tagpath"
)

// frontmatter is the YAML header of a vault file.
type frontmatter struct {
	ID    string   `yaml:"id,omitempty"`
	Title string   `yaml:"title,omitempty"`
	Kind  string   `yaml:"kind,omitempty"`
	Done  bool     `yaml:"done,omitempty"`
	Tags  []string `yaml:"tags,omitempty"`
}

// File is a parsed vault file.
type File struct {
	ID    string
	Title string
	Kind  string
	Done  bool
	Body  string
	// Tags is the union of frontmatter tags and inline tag references.
	Tags tagpath.Set
	// InvalidTags lists frontmatter tags that are not valid paths.
	InvalidTags []string
	// HasFrontmatter is false when the file had no readable header.
	HasFrontmatter bool
}

// Parse splits frontmatter from the markup body and collects tags.
func Parse(data []byte) (*File, error) {
	fm, body, ok := splitFrontmatter(data)
	body = strings.TrimRight(body, "\r\n")

	tags, invalid := tagpath.ParseSetLenient(fm.Tags)
	doc := markup.Decode(body)
	for _, p := range doc.Tags() {
		tags.Add(p)
	}

	kind := fm.Kind
	switch kind {
	case "":
		kind = models.KindNote
	case models.KindNote, models.KindTask:
	default:
		return nil, fmt.Errorf("vault: unknown kind %q", fm.Kind)
	}

	return &File{
		ID:             fm.ID,
		Title:          deriveTitle(fm.Title, doc),
		Kind:           kind,
		Done:           fm.Done,
		Body:           body,
		Tags:           tags,
		InvalidTags:    invalid,
		HasFrontmatter: ok,
	}, nil
}

// Render writes an item back to file form.
func Render(it models.Item) ([]byte, error) {
	fm := frontmatter{
		ID:    it.ID,
		Title: it.Title,
		Tags:  it.Tags.Strings(),
		Done:  it.Done,
	}
	if it.Kind != models.KindNote {
		fm.Kind = it.Kind
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("vault: marshal frontmatter: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n")
	b.WriteString(it.Body)
	if it.Body != "" && !strings.HasSuffix(it.Body, "\n") {
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Without a readable header the entire content is body.
func splitFrontmatter(data []byte) (frontmatter, string, bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return frontmatter{}, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return frontmatter{}, string(data), false
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm frontmatter
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return frontmatter{}, string(data), false
	}
	return fm, body, true
}

// deriveTitle prefers the frontmatter title, then the first level-1 heading.
func deriveTitle(title string, doc markup.Document) string {
	if title != "" {
		return title
	}
	for _, b := range doc.Blocks {
		if b.Kind == markup.BlockHeading && b.Level == 1 {
			return strings.TrimSpace(markup.PlainText(b.Spans))
		}
	}
	return ""
}
