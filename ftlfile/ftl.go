// Package ftlfile implements lossless reading and writing of Fluent (.ftl)
// localization resources.
//
// A Resource keeps every byte of its source: entries, blank runs, comments
// and unparsable junk are stored in document order together with the exact
// separators between them, so Marshal on an unmodified Resource reproduces
// the input byte for byte (CRLF line ends and a UTF-8 BOM included).
//
// Only the Value of a Text element is writable. When it changes, the
// element is re-rendered using the owning pattern's indentation and line
// ending; everything else is written back as it was read.
//
//	greeting = Hello, { $name }!
//	    .title = Welcome
//	items = { $count ->
//	    [one] One item
//	   *[other] { $count } items
//	}
package ftlfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// Resource model
// ---------------------------------------------------------------------------

// Resource is one parsed .ftl document.
type Resource struct {
	// Entries holds all top-level entries in document order.
	Entries []Entry

	bom bool
}

// Entry is a top-level construct of a Resource: *Message, *Term, *Comment,
// *Junk or *Blank.
type Entry interface {
	entry()
	render(b *strings.Builder)
}

// Message is a public message with an optional value and attributes.
type Message struct {
	ID         string
	Value      *Pattern
	Attributes []*Attribute

	chunks []chunk
}

// Term is a private "-id = ..." definition. Terms are kept as parsed.
type Term struct {
	ID         string
	Value      *Pattern
	Attributes []*Attribute

	chunks []chunk
}

// Attribute is a ".name = pattern" line attached to a message or term.
type Attribute struct {
	ID    string
	Value *Pattern
}

// Comment is a run of consecutive comment lines of the same level
// (1 for "#", 2 for "##", 3 for "###").
type Comment struct {
	Level   int
	Content string

	raw string
}

// Junk is source that could not be parsed as an entry. It is written back
// verbatim.
type Junk struct {
	Content string
	Err     *SyntaxError
}

// Blank is a run of whitespace-only lines between entries.
type Blank struct {
	Content string
}

func (*Message) entry() {}
func (*Term) entry()    {}
func (*Comment) entry() {}
func (*Junk) entry()    {}
func (*Blank) entry()   {}

// ---------------------------------------------------------------------------
// Pattern model
// ---------------------------------------------------------------------------

// Pattern is the value of a message, term, attribute or select variant.
type Pattern struct {
	// Elements holds text and placeables in source order.
	Elements []Element

	lead   string // indentation preceding a pattern that starts on its own line
	indent string // common indentation of continuation lines
	nl     string
}

// Element is a pattern element: *Text or *Placeable.
type Element interface {
	element()
}

// Text is a run of literal text. Value holds the text with the pattern's
// common indentation removed and line ends normalised to "\n".
type Text struct {
	Value string

	orig       string
	raw        string
	startsLine bool
}

// Placeable is a "{ ... }" expression. Its source is never modified; when it
// is a select expression, Select exposes the variants so that the text
// nested in them can be reached.
type Placeable struct {
	Select *SelectExpression

	raw string
}

// SelectExpression is "{ selector -> variants }".
type SelectExpression struct {
	// Selector is the source text between "{" and "->".
	Selector string
	Variants []*Variant

	chunks []chunk
}

// Variant is one "[key] pattern" (or "*[key] pattern" for the default).
type Variant struct {
	Key     string
	Default bool
	Value   *Pattern
}

func (*Text) element()      {}
func (*Placeable) element() {}

// Modified reports whether Value differs from the parsed text.
func (t *Text) Modified() bool { return t.Value != t.orig }

// chunk is either a verbatim slice of the source or a pattern rendered in
// its place.
type chunk struct {
	raw string
	pat *Pattern
}

func renderChunks(b *strings.Builder, chunks []chunk) {
	for _, c := range chunks {
		if c.pat != nil {
			c.pat.render(b)
			continue
		}
		b.WriteString(c.raw)
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Messages returns all messages in document order.
func (r *Resource) Messages() []*Message {
	var out []*Message
	for _, e := range r.Entries {
		if m, ok := e.(*Message); ok {
			out = append(out, m)
		}
	}
	return out
}

// Message returns the message with the given id.
func (r *Resource) Message(id string) (*Message, bool) {
	for _, m := range r.Messages() {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Errors returns the syntax errors of all junk entries.
func (r *Resource) Errors() []*SyntaxError {
	var out []*SyntaxError
	for _, e := range r.Entries {
		if j, ok := e.(*Junk); ok && j.Err != nil {
			out = append(out, j.Err)
		}
	}
	return out
}

// Attribute returns the attribute with the given id.
func (m *Message) Attribute(id string) (*Attribute, bool) {
	for _, a := range m.Attributes {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// String renders the pattern as it would appear in the source.
func (p *Pattern) String() string {
	var b strings.Builder
	p.render(&b)
	return strings.TrimPrefix(b.String(), p.lead)
}

// Source returns the placeable's source text.
func (p *Placeable) Source() string {
	var b strings.Builder
	p.render(&b)
	return b.String()
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serializes the resource.
func (r *Resource) Marshal() []byte {
	var b strings.Builder
	if r.bom {
		b.WriteString(bom)
	}
	for _, e := range r.Entries {
		e.render(&b)
	}
	return []byte(b.String())
}

// WriteFile serializes the resource and writes it to disk.
func (r *Resource) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(path, r.Marshal(), 0644)
}

func (m *Message) render(b *strings.Builder) { renderChunks(b, m.chunks) }
func (t *Term) render(b *strings.Builder)    { renderChunks(b, t.chunks) }
func (c *Comment) render(b *strings.Builder) { b.WriteString(c.raw) }
func (j *Junk) render(b *strings.Builder)    { b.WriteString(j.Content) }
func (bl *Blank) render(b *strings.Builder)  { b.WriteString(bl.Content) }

func (p *Pattern) render(b *strings.Builder) {
	b.WriteString(p.lead)
	for i, el := range p.Elements {
		switch el := el.(type) {
		case *Text:
			el.render(b, p, i == len(p.Elements)-1)
		case *Placeable:
			el.render(b)
		}
	}
}

func (pl *Placeable) render(b *strings.Builder) {
	if pl.Select == nil {
		b.WriteString(pl.raw)
		return
	}
	renderChunks(b, pl.Select.chunks)
}

func (t *Text) render(b *strings.Builder, p *Pattern, last bool) {
	if !t.Modified() {
		b.WriteString(t.raw)
		return
	}
	lines := strings.Split(t.Value, "\n")
	for i, ln := range lines {
		if i > 0 {
			b.WriteString(p.nl)
			if ln == "" {
				// Keep a following placeable on an indented line.
				if i == len(lines)-1 && !last {
					b.WriteString(p.indent)
				}
				continue
			}
			b.WriteString(p.indent)
		}
		b.WriteString(escapeLine(ln, i > 0 || t.startsLine))
	}
}

// escapeLine writes braces as string-literal placeables. At the start of a
// line, the characters that would begin a variant key, a default variant or
// an attribute are escaped the same way.
func escapeLine(s string, lineStart bool) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '{' || r == '}':
			fmt.Fprintf(&b, `{ "%c" }`, r)
		case i == 0 && lineStart && (r == '[' || r == '*' || r == '.'):
			fmt.Fprintf(&b, `{ "%c" }`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
