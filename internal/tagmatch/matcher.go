// Package tagmatch checks that the tags of a markup document nest properly.
//
// The matcher reads the document once, rune by rune, keeping a stack of open
// tag names. It understands void elements, quoted attribute values, markup
// comments and the bodies of script and style elements, which are scanned
// only far enough to find their closing tag. It does not build a tree and
// does not look at attributes.
//
// A scan stops at the first closing tag that does not match the innermost
// open tag. Tags still open at the end of the input are reported innermost
// first. Each call owns all of its state, so documents may be checked
// concurrently.
package tagmatch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// ErrInputUnavailable is returned when the input fails before yielding its
// first rune.
var ErrInputUnavailable = errors.New("input unavailable")

// Options configures a single Match call.
type Options struct {
	// Diagnostics enables diagnostic collection. The verdict is the same
	// either way.
	Diagnostics bool
	// Reporter, if set, receives each diagnostic as soon as it is found.
	// It is only called when Diagnostics is true.
	Reporter Reporter
}

// Result is the outcome of a Match call.
type Result struct {
	Valid       bool         `json:"valid" yaml:"valid"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

type mode int

const (
	modeText mode = iota
	modeTagName
	modeTagAttrs
	modeString
	modeMarkupComment
)

// body is the raw-text element whose content is being skipped.
type body int

const (
	bodyNone body = iota
	bodyScript
	bodyStyle
)

func (b body) tag() string {
	switch b {
	case bodyScript:
		return "script"
	case bodyStyle:
		return "style"
	default:
		return ""
	}
}

// bodyComment is a script or style comment. Only meaningful inside a body.
type bodyComment int

const (
	commentNone bodyComment = iota
	commentLine
	commentBlock
)

type openTag struct {
	name      string
	line, col int
}

type matcher struct {
	opts   Options
	result *Result

	stack []openTag

	mode    mode
	body    body
	comment bodyComment

	// tag being read
	name        strings.Builder
	closing     bool
	selfClosing bool
	// inValue is set inside an unquoted attribute token, where '/' is
	// ordinary text.
	inValue     bool
	pending     string
	hasPending  bool
	tagLine     int
	tagCol      int

	quote        rune
	stringReturn mode

	// markup comment progress
	commentRunes int
	dashes       int

	line, col int
	prev      rune
	// prevSpent is set when prev finished a two-rune comment token and
	// cannot start another one.
	prevSpent bool
}

// Match scans the document read from r and reports whether its tags nest
// properly. A read error is returned only when the input cannot be read at
// all (wrapping ErrInputUnavailable) or fails part way; a badly nested
// document is not an error.
func Match(r io.Reader, opts Options) (*Result, error) {
	rr, ok := r.(io.RuneReader)
	if !ok {
		rr = bufio.NewReader(r)
	}

	m := &matcher{
		opts:   opts,
		result: &Result{},
		line:   1,
	}

	for first := true; ; first = false {
		ch, _, err := rr.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if first {
				return &Result{}, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
			}
			return &Result{}, fmt.Errorf("reading input at line %d: %w", m.line, err)
		}
		if !m.step(ch) {
			return m.result, nil
		}
	}

	m.finish()
	return m.result, nil
}

// MatchString is Match over an in-memory document.
func MatchString(s string, opts Options) *Result {
	res, _ := Match(strings.NewReader(s), opts)
	return res
}

// step consumes one rune. It returns false when scanning must stop.
func (m *matcher) step(ch rune) bool {
	ch = unicode.ToLower(ch)
	m.col++

	if ch == '\n' || ch == '\r' {
		if ch != '\n' || m.prev != '\r' {
			m.line++
		}
		m.col = 0
		if m.comment == commentLine {
			m.comment = commentNone
		}
	}

	ok, spent := true, false
	switch m.mode {
	case modeMarkupComment:
		m.markupComment(ch)
	case modeString:
		m.inString(ch)
	case modeTagName:
		ok = m.tagName(ch)
	case modeTagAttrs:
		m.tagAttrs(ch)
	default:
		spent = m.text(ch)
	}

	m.prev = ch
	m.prevSpent = spent
	return ok
}

// text handles a rune outside any tag. The result reports whether the rune
// completed a comment token.
func (m *matcher) text(ch rune) bool {
	if m.body != bodyNone {
		lead := m.prev == '/' && !m.prevSpent
		switch {
		case m.comment == commentBlock:
			if ch == '/' && m.prev == '*' && !m.prevSpent {
				m.comment = commentNone
				return true
			}
		case m.comment == commentLine:
		case lead && ch == '*':
			m.comment = commentBlock
			return true
		case lead && ch == '/':
			m.comment = commentLine
			return true
		case m.isQuote(ch):
			m.openString(ch, modeText)
			return false
		}
	}

	if ch == '<' {
		m.startTag()
	}
	return false
}

func (m *matcher) isQuote(ch rune) bool {
	switch ch {
	case '"', '\'':
		return true
	case '`':
		return m.body == bodyScript
	default:
		return false
	}
}

func (m *matcher) openString(quote rune, ret mode) {
	m.quote = quote
	m.stringReturn = ret
	m.mode = modeString
}

func (m *matcher) inString(ch rune) {
	if ch != m.quote {
		return
	}
	// Inside bodies a backslash escapes the quote. Only one rune is looked
	// at, so "\\" followed by a quote is still treated as escaped.
	if m.body != bodyNone && m.prev == '\\' {
		return
	}
	m.mode = m.stringReturn
}

func (m *matcher) startTag() {
	m.mode = modeTagName
	m.name.Reset()
	m.closing = false
	m.selfClosing = false
	m.inValue = false
	m.hasPending = false
	m.pending = ""
	m.tagLine, m.tagCol = m.line, m.col
}

func (m *matcher) tagName(ch rune) bool {
	switch {
	case ch == '<':
		m.startTag()
	case ch == '>':
		if !m.endName() {
			return false
		}
		m.commit()
	case isSpace(ch):
		if m.name.Len() == 0 && !m.closing {
			// a lone '<' is text
			m.mode = modeText
			return true
		}
		if !m.endName() {
			return false
		}
		m.mode = modeTagAttrs
	case ch == '/' && m.name.Len() == 0 && !m.closing:
		m.closing = true
	case ch == '/':
		if !m.endName() {
			return false
		}
		m.mode = modeTagAttrs
		m.selfClosing = true
	default:
		m.name.WriteRune(ch)
		name := m.name.String()
		if name == "!--" {
			m.name.Reset()
			m.mode = modeMarkupComment
			m.commentRunes = 0
			m.dashes = 0
			return true
		}
		// Inside script and style only the element's own tag can start
		// here; anything else means the '<' was part of the body.
		if !m.closing && m.body != bodyNone && m.comment == commentNone &&
			!strings.HasPrefix(m.body.tag(), name) {
			m.name.Reset()
			m.mode = modeText
		}
	}
	return true
}

func (m *matcher) tagAttrs(ch rune) {
	switch {
	case ch == '>':
		m.commit()
	case ch == '<':
		m.commit()
		m.startTag()
	case m.isQuote(ch):
		m.selfClosing = false
		m.inValue = false
		m.openString(ch, modeTagAttrs)
	case ch == '/' && !m.inValue:
		m.selfClosing = true
	case isSpace(ch):
		m.inValue = false
	default:
		m.selfClosing = false
		m.inValue = true
	}
}

// endName finishes the tag name. Closing tags are matched right away;
// opening tags wait for their '>' in commit.
func (m *matcher) endName() bool {
	name := m.name.String()
	m.name.Reset()
	if m.closing {
		return m.close(name)
	}
	if name != "" {
		m.pending = name
		m.hasPending = true
	}
	return true
}

func (m *matcher) close(name string) bool {
	if len(m.stack) == 0 {
		m.report(Diagnostic{
			Line:   m.tagLine,
			Column: m.tagCol,
			Kind:   UnexpectedClosingTag,
			Tag:    name,
		})
		return false
	}

	top := m.stack[len(m.stack)-1]
	if top.name != name {
		m.report(Diagnostic{
			Line:     m.tagLine,
			Column:   m.tagCol,
			Kind:     NestingMismatch,
			Tag:      name,
			Expected: top.name,
		})
		return false
	}

	m.stack = m.stack[:len(m.stack)-1]
	if name == "script" || name == "style" {
		m.body = bodyNone
		m.comment = commentNone
	}
	return true
}

// commit ends the current tag, pushing a pending opening tag when it needs
// a closing tag.
func (m *matcher) commit() {
	m.mode = modeText
	if !m.hasPending {
		return
	}
	name := m.pending
	m.pending = ""
	m.hasPending = false

	if !m.pushable(name) {
		return
	}
	m.stack = append(m.stack, openTag{name: name, line: m.tagLine, col: m.tagCol})

	switch name {
	case "script":
		m.body = bodyScript
	case "style":
		m.body = bodyStyle
	}
}

func (m *matcher) pushable(name string) bool {
	if m.selfClosing {
		return false
	}
	if m.body != bodyNone {
		// A nested script or style tag inside a comment is likely a
		// fragment and never opens anything.
		return (name == "script" || name == "style") && m.comment == commentNone
	}
	if IsVoidElement(name) {
		return false
	}
	// comments and processing instructions are not elements
	return !strings.HasPrefix(name, "!--") && !strings.HasPrefix(name, "?")
}

func (m *matcher) markupComment(ch rune) {
	if ch == '>' && m.commentRunes >= 2 && m.dashes >= 2 {
		m.mode = modeText
		return
	}
	m.commentRunes++
	if ch == '-' {
		m.dashes++
	} else {
		m.dashes = 0
	}
}

func (m *matcher) finish() {
	if m.mode == modeTagAttrs || (m.mode == modeString && m.stringReturn == modeTagAttrs) {
		m.commit()
	}

	for i := len(m.stack) - 1; i >= 0; i-- {
		open := m.stack[i]
		m.report(Diagnostic{
			Line:   open.line,
			Column: open.col,
			Kind:   MissingClosingTag,
			Tag:    open.name,
		})
	}
	m.result.Valid = len(m.stack) == 0
}

func (m *matcher) report(d Diagnostic) {
	if !m.opts.Diagnostics {
		return
	}
	m.result.Diagnostics = append(m.result.Diagnostics, d)
	if m.opts.Reporter != nil {
		m.opts.Reporter.Report(d)
	}
}

func isSpace(ch rune) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	default:
		return false
	}
}
