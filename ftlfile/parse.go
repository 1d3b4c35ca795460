package ftlfile

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

const bom = "\uFEFF"

// defaultIndent is used when modified text gains lines in a pattern that had
// no continuation lines.
const defaultIndent = "    "

// SyntaxError describes malformed input. Line and Column are 1-based.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses a .ftl file from disk.
func ParseFile(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	res, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// Parse parses .ftl content. Entries that are not valid Fluent are kept as
// Junk and reported by Errors; Parse itself fails only on input that is not
// valid UTF-8.
func Parse(data []byte) (*Resource, error) {
	if !utf8.Valid(data) {
		return nil, &SyntaxError{Line: 1, Column: 1, Message: "invalid UTF-8"}
	}
	res := &Resource{}
	src := string(data)
	if strings.HasPrefix(src, bom) {
		res.bom = true
		src = src[len(bom):]
	}

	p := &parser{src: src, nl: "\n"}
	if i := strings.IndexByte(src, '\n'); i > 0 && src[i-1] == '\r' {
		p.nl = "\r\n"
	}

	for !p.eof() {
		res.Entries = append(res.Entries, p.entry())
	}
	return res, nil
}

type parser struct {
	src string
	pos int
	nl  string
}

// parseError aborts the current entry; the entry is then recovered as Junk.
type parseError struct {
	pos int
	msg string
}

func (p *parser) fail(format string, args ...any) {
	panic(parseError{pos: p.pos, msg: fmt.Sprintf(format, args...)})
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) at(i int) byte {
	if i >= len(p.src) {
		return 0
	}
	return p.src[i]
}

// atNewline reports whether i is at "\n" or "\r\n".
func (p *parser) atNewline(i int) bool {
	c := p.at(i)
	return c == '\n' || (c == '\r' && p.at(i+1) == '\n')
}

// afterNewline returns the index following the line end at i.
func (p *parser) afterNewline(i int) int {
	if p.at(i) == '\r' {
		i++
	}
	return i + 1
}

func (p *parser) lineEnd(i int) int {
	if j := strings.IndexByte(p.src[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(p.src)
}

func (p *parser) spacesAt(i int) int {
	n := 0
	for p.at(i+n) == ' ' {
		n++
	}
	return n
}

func (p *parser) blankLine(i int) bool {
	for _, c := range []byte(p.src[i:p.lineEnd(i)]) {
		if c != ' ' && c != '\r' {
			return false
		}
	}
	return true
}

// nextContentLine returns the start of the first non-blank line at or
// after the line starting at i, or -1.
func (p *parser) nextContentLine(i int) int {
	for i < len(p.src) {
		if !p.blankLine(i) {
			return i
		}
		i = p.lineEnd(i) + 1
	}
	return -1
}

// continues reports whether the line starting at i continues a pattern.
func (p *parser) continues(i int) bool {
	n := p.spacesAt(i)
	c := p.at(i + n)
	if n == 0 {
		return c == '{'
	}
	switch c {
	case 0, '\n', '\r', '[', '*', '.', '}':
		return false
	}
	return true
}

func (p *parser) position(off int) (line, col int) {
	line = 1 + strings.Count(p.src[:off], "\n")
	col = 1 + utf8.RuneCountInString(p.src[strings.LastIndexByte(p.src[:off], '\n')+1:off])
	return line, col
}

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

func (p *parser) entry() Entry {
	start := p.pos
	c := p.peek()
	switch {
	case p.blankLine(start):
		for !p.eof() && p.blankLine(p.pos) {
			p.pos = min(p.lineEnd(p.pos)+1, len(p.src))
		}
		return &Blank{Content: p.src[start:p.pos]}
	case c == '#':
		if cm, ok := p.comment(); ok {
			return cm
		}
		p.pos = start
		return p.junk(start, start, "expected a space after the comment sigil")
	case c == '-' || isIdentStart(c):
		e, err := p.recoverEntry(c == '-')
		if err != nil {
			return p.junk(start, err.pos, err.msg)
		}
		return e
	default:
		return p.junk(start, start, "expected an entry start")
	}
}

func (p *parser) recoverEntry(term bool) (e Entry, perr *parseError) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(parseError)
			if !ok {
				panic(r)
			}
			e, perr = nil, &pe
		}
	}()
	return p.message(term), nil
}

// junk consumes source up to the next line that can begin an entry.
func (p *parser) junk(start, errPos int, msg string) *Junk {
	i := p.lineEnd(start)
	for i < len(p.src) {
		i++
		if c := p.at(i); c == '#' || c == '-' || isIdentStart(c) {
			break
		}
		i = p.lineEnd(i)
	}
	p.pos = min(i, len(p.src))
	line, col := p.position(errPos)
	return &Junk{
		Content: p.src[start:p.pos],
		Err:     &SyntaxError{Line: line, Column: col, Message: msg},
	}
}

func (p *parser) comment() (*Comment, bool) {
	start := p.pos
	level := 0
	var lines []string
	for !p.eof() {
		n := 0
		for p.at(p.pos+n) == '#' {
			n++
		}
		if n == 0 || n > 3 || (level != 0 && n != level) {
			break
		}
		rest := p.pos + n
		if !p.atNewline(rest) && p.at(rest) != ' ' && rest < len(p.src) {
			if level == 0 {
				return nil, false
			}
			break
		}
		level = n
		end := p.lineEnd(p.pos)
		text := strings.TrimSuffix(p.src[rest:end], "\r")
		lines = append(lines, strings.TrimPrefix(text, " "))
		p.pos = min(end+1, len(p.src))
	}
	if level == 0 {
		return nil, false
	}
	return &Comment{Level: level, Content: strings.Join(lines, "\n"), raw: p.src[start:p.pos]}, true
}

// message parses a message or, when term is set, a term.
func (p *parser) message(term bool) Entry {
	start := p.pos
	if term {
		p.pos++
	}
	id := p.identifier()
	if id == "" {
		p.fail("expected an identifier")
	}
	p.skipInline()
	if p.peek() != '=' {
		p.fail("expected \"=\" after %q", id)
	}
	p.pos++
	p.skipInline()

	var (
		chunks []chunk
		value  *Pattern
		attrs  []*Attribute
		mark   = start
	)
	patStart := p.pos
	if pat, block := p.patternAfterEquals(); pat != nil {
		if block >= 0 {
			patStart = block
		}
		chunks = append(chunks, chunk{raw: p.src[mark:patStart]}, chunk{pat: pat})
		value = pat
		mark = p.pos
	}

	for {
		if p.peek() == '}' {
			p.fail("unbalanced closing brace")
		}
		if p.eof() {
			break
		}
		j := p.nextContentLine(p.afterNewline(p.pos))
		if j < 0 {
			break
		}
		n := p.spacesAt(j)
		if n == 0 || p.at(j+n) != '.' {
			break
		}
		p.pos = j + n + 1
		aid := p.identifier()
		if aid == "" {
			p.fail("expected an attribute identifier")
		}
		p.skipInline()
		if p.peek() != '=' {
			p.fail("expected \"=\" after attribute %q", aid)
		}
		p.pos++
		p.skipInline()
		patStart = p.pos
		pat, block := p.patternAfterEquals()
		if pat == nil {
			p.fail("attribute %q has no value", aid)
		}
		if block >= 0 {
			patStart = block
		}
		chunks = append(chunks, chunk{raw: p.src[mark:patStart]}, chunk{pat: pat})
		attrs = append(attrs, &Attribute{ID: aid, Value: pat})
		mark = p.pos
	}

	if term && value == nil {
		p.fail("term %q has no value", "-"+id)
	}
	if value == nil && len(attrs) == 0 {
		p.fail("message %q has neither a value nor attributes", id)
	}
	if !p.eof() {
		p.pos = p.afterNewline(p.pos)
	}
	chunks = append(chunks, chunk{raw: p.src[mark:p.pos]})

	if term {
		return &Term{ID: id, Value: value, Attributes: attrs, chunks: chunks}
	}
	return &Message{ID: id, Value: value, Attributes: attrs, chunks: chunks}
}

// patternAfterEquals parses an inline pattern at the current position or a
// block pattern on the following lines. block is the start of the block
// pattern's first line, or -1 for an inline pattern.
func (p *parser) patternAfterEquals() (pat *Pattern, block int) {
	if !p.eof() && !p.atNewline(p.pos) {
		return p.pattern(false), -1
	}
	if p.eof() {
		return nil, -1
	}
	j := p.nextContentLine(p.afterNewline(p.pos))
	if j < 0 || !p.continues(j) {
		return nil, -1
	}
	p.pos = j
	return p.pattern(true), j
}

func (p *parser) identifier() string {
	start := p.pos
	if !isIdentStart(p.peek()) {
		return ""
	}
	for !p.eof() && isIdentChar(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) skipInline() {
	for p.peek() == ' ' {
		p.pos++
	}
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '_' || c == '-'
}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

// pattern parses text and placeables until the end of the pattern. When
// lineStart is set, the current position is the start of an indented line.
// The pattern ends before the line end that is not followed by a
// continuation line, or before an unmatched "}".
func (p *parser) pattern(lineStart bool) *Pattern {
	pat := &Pattern{nl: p.nl}
	var indents []int
	if lineStart {
		n := p.spacesAt(p.pos)
		indents = append(indents, n)
		pat.lead = p.src[p.pos : p.pos+n]
		p.pos += n
	}

	textStart := -1
	startsLine := false
	flush := func() {
		if textStart >= 0 && p.pos > textStart {
			pat.Elements = append(pat.Elements, &Text{raw: p.src[textStart:p.pos], startsLine: startsLine})
		}
		textStart = -1
		startsLine = false
	}

loop:
	for !p.eof() {
		switch {
		case p.peek() == '{':
			flush()
			pat.Elements = append(pat.Elements, p.placeable())
		case p.peek() == '}':
			break loop
		case p.atNewline(p.pos):
			j := p.nextContentLine(p.afterNewline(p.pos))
			if j < 0 || !p.continues(j) {
				break loop
			}
			n := p.spacesAt(j)
			if n > 0 {
				indents = append(indents, n)
			}
			if textStart < 0 {
				textStart = p.pos
			}
			p.pos = j + n
		default:
			if textStart < 0 {
				textStart = p.pos
				startsLine = lineStart && len(pat.Elements) == 0
			}
			p.pos++
		}
	}
	flush()

	common := -1
	for _, n := range indents {
		if common < 0 || n < common {
			common = n
		}
	}
	if common > 0 {
		pat.indent = strings.Repeat(" ", common)
	} else {
		pat.indent = defaultIndent
	}
	for _, el := range pat.Elements {
		if t, ok := el.(*Text); ok {
			t.Value = dedent(t.raw, max(common, 0))
			t.orig = t.Value
		}
	}
	return pat
}

// dedent removes up to n leading spaces from every line but the first,
// turns whitespace-only lines into empty ones and normalises line ends.
func dedent(raw string, n int) string {
	lines := strings.Split(raw, "\n")
	for i, ln := range lines {
		if i < len(lines)-1 {
			ln = strings.TrimSuffix(ln, "\r")
		}
		if i > 0 {
			if strings.Trim(ln, " ") == "" {
				ln = ""
			} else {
				k := 0
				for k < n && k < len(ln) && ln[k] == ' ' {
					k++
				}
				ln = ln[k:]
			}
		}
		lines[i] = ln
	}
	return strings.Join(lines, "\n")
}

// ---------------------------------------------------------------------------
// Placeables
// ---------------------------------------------------------------------------

// placeable parses "{ ... }" starting at the opening brace.
func (p *parser) placeable() *Placeable {
	start := p.pos
	p.pos++
	for {
		if p.eof() {
			p.pos = start
			p.fail("unclosed placeable")
		}
		switch c := p.peek(); {
		case c == '"':
			p.stringLiteral()
		case c == '{':
			p.placeable()
		case c == '}':
			p.pos++
			return &Placeable{raw: p.src[start:p.pos]}
		case c == '-' && p.at(p.pos+1) == '>':
			p.pos += 2
			return &Placeable{Select: p.selectExpression(start)}
		default:
			p.pos++
		}
	}
}

func (p *parser) stringLiteral() {
	p.pos++
	for !p.eof() && p.peek() != '"' {
		switch p.peek() {
		case '\\':
			p.pos++
		case '\n':
			p.fail("unterminated string literal")
		}
		p.pos++
	}
	if p.eof() {
		p.fail("unterminated string literal")
	}
	p.pos++
}

// selectExpression parses the variant list following "->". start is the
// position of the opening brace.
func (p *parser) selectExpression(start int) *SelectExpression {
	head := p.src[start:p.pos]
	sel := &SelectExpression{
		Selector: strings.TrimSpace(strings.TrimSuffix(head[1:], "->")),
		chunks:   []chunk{{raw: head}},
	}
	mark := p.pos
	defaults := 0
	for {
		for c := p.peek(); c == ' ' || c == '\n' || c == '\r'; c = p.peek() {
			p.pos++
		}
		if p.eof() {
			p.fail("unclosed select expression")
		}
		if p.peek() == '}' {
			p.pos++
			break
		}
		v := &Variant{}
		if p.peek() == '*' {
			v.Default = true
			defaults++
			p.pos++
		}
		if p.peek() != '[' {
			p.fail("expected a variant key")
		}
		p.pos++
		keyStart := p.pos
		for !p.eof() && p.peek() != ']' && p.peek() != '\n' {
			p.pos++
		}
		if p.peek() != ']' {
			p.fail("unclosed variant key")
		}
		v.Key = strings.TrimSpace(p.src[keyStart:p.pos])
		if v.Key == "" {
			p.fail("empty variant key")
		}
		p.pos++
		p.skipInline()

		patStart := p.pos
		pat, block := p.patternAfterEquals()
		if pat == nil {
			p.fail("variant [%s] has no value", v.Key)
		}
		if block >= 0 {
			patStart = block
		}
		v.Value = pat
		sel.chunks = append(sel.chunks, chunk{raw: p.src[mark:patStart]}, chunk{pat: pat})
		sel.Variants = append(sel.Variants, v)
		mark = p.pos
	}
	if len(sel.Variants) == 0 {
		p.fail("select expression has no variants")
	}
	if defaults != 1 {
		p.fail("select expression must have exactly one default variant")
	}
	sel.chunks = append(sel.chunks, chunk{raw: p.src[mark:p.pos]})
	return sel
}
