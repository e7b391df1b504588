// Package bibtex reads and writes BibTeX entries.
package bibtex

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

var (
	// ErrEmpty is returned when the input holds no entries.
	ErrEmpty = eris.New("no bibtex entries")
	// ErrMalformed is returned when an entry cannot be parsed.
	ErrMalformed = eris.New("malformed bibtex")
)

// Entry is one parsed @type{key, ...} block.
type Entry struct {
	Type   string            // lowercased, e.g. "inproceedings"
	Key    string            // citation key
	Fields map[string]string // lowercased field names, values without outer delimiters
	Raw    string            // source text of the entry
}

// Field returns the cleaned value of a field, or "".
func (e Entry) Field(name string) string {
	return Clean(e.Fields[strings.ToLower(name)])
}

// Clean removes grouping braces and collapses whitespace.
func Clean(v string) string {
	v = strings.NewReplacer("{", "", "}", "").Replace(v)
	return strings.Join(strings.Fields(v), " ")
}

// Parse reads every entry in s. @comment, @preamble and @string blocks are
// skipped.
func Parse(s string) ([]Entry, error) {
	p := &parser{src: s}
	var entries []Entry
	for {
		at := strings.IndexByte(p.src[p.pos:], '@')
		if at < 0 {
			break
		}
		p.pos += at
		e, skip, err := p.entry()
		if err != nil {
			return nil, err
		}
		if !skip {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	return entries, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return eris.Wrapf(ErrMalformed, "offset %d: "+format, append([]interface{}{p.pos}, args...)...)
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.peek())) {
		p.pos++
	}
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) || strings.IndexByte("_-:.+/", c) >= 0 {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

// entry parses from an '@'. skip is true for blocks that are not entries.
func (p *parser) entry() (e Entry, skip bool, err error) {
	start := p.pos
	p.pos++ // '@'
	p.skipSpace()
	typ := strings.ToLower(p.ident())
	p.skipSpace()
	// An '@' without an entry header (an e-mail address in a comment) is
	// plain text between entries.
	if typ == "" || p.eof() || (p.peek() != '{' && p.peek() != '(') {
		p.pos = start + 1
		return e, true, nil
	}
	closer := byte('}')
	if p.peek() == '(' {
		closer = ')'
	}

	switch typ {
	case "comment", "preamble", "string":
		if _, err := p.balanced(p.peek(), closer); err != nil {
			return e, false, err
		}
		return e, true, nil
	}
	p.pos++

	e.Type = typ
	e.Fields = make(map[string]string)
	p.skipSpace()
	keyStart := p.pos
	for !p.eof() && p.peek() != ',' && p.peek() != closer {
		p.pos++
	}
	if p.eof() {
		return e, false, p.errorf("unterminated entry %s", typ)
	}
	e.Key = strings.TrimSpace(p.src[keyStart:p.pos])

	for {
		p.skipSpace()
		if p.eof() {
			return e, false, p.errorf("unterminated entry %s", e.Key)
		}
		c := p.peek()
		if c == closer {
			p.pos++
			break
		}
		if c == ',' {
			p.pos++
			continue
		}
		name := strings.ToLower(p.ident())
		if name == "" {
			return e, false, p.errorf("expected field name in %s", e.Key)
		}
		p.skipSpace()
		if p.eof() || p.peek() != '=' {
			return e, false, p.errorf("expected = after %s in %s", name, e.Key)
		}
		p.pos++
		value, err := p.value(closer)
		if err != nil {
			return e, false, err
		}
		e.Fields[name] = value
	}
	e.Raw = strings.TrimSpace(p.src[start:p.pos])
	return e, false, nil
}

// value parses a field value, joining # concatenations.
func (p *parser) value(closer byte) (string, error) {
	var parts []string
	for {
		p.skipSpace()
		if p.eof() {
			return "", p.errorf("unexpected end in value")
		}
		switch c := p.peek(); c {
		case '{':
			v, err := p.balanced('{', '}')
			if err != nil {
				return "", err
			}
			parts = append(parts, v)
		case '"':
			v, err := p.quoted()
			if err != nil {
				return "", err
			}
			parts = append(parts, v)
		default:
			start := p.pos
			for !p.eof() {
				c := p.peek()
				if c == ',' || c == closer || c == '#' || unicode.IsSpace(rune(c)) {
					break
				}
				p.pos++
			}
			if p.pos == start {
				return "", p.errorf("empty value")
			}
			parts = append(parts, p.src[start:p.pos])
		}
		p.skipSpace()
		if !p.eof() && p.peek() == '#' {
			p.pos++
			continue
		}
		return strings.Join(parts, ""), nil
	}
}

// balanced consumes open ... close with nesting and returns the inner text.
func (p *parser) balanced(open, close byte) (string, error) {
	start := p.pos
	depth := 0
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return p.src[start+1 : p.pos-1], nil
			}
		}
	}
	p.pos = start
	return "", p.errorf("unbalanced %c", open)
}

func (p *parser) quoted() (string, error) {
	start := p.pos
	p.pos++
	depth := 0
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch {
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == '"' && depth == 0 && p.src[p.pos-2] != '\\':
			return p.src[start+1 : p.pos-1], nil
		}
	}
	p.pos = start
	return "", p.errorf("unterminated quoted value")
}
