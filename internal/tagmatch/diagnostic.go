package tagmatch

import (
	"fmt"
)

// Kind classifies a nesting problem.
type Kind int

const (
	// NestingMismatch is a closing tag that does not match the innermost
	// open tag.
	NestingMismatch Kind = iota
	// UnexpectedClosingTag is a closing tag seen while no tag is open.
	UnexpectedClosingTag
	// MissingClosingTag is a tag still open at the end of the document.
	MissingClosingTag
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case NestingMismatch:
		return "nesting-mismatch"
	case UnexpectedClosingTag:
		return "unexpected-closing-tag"
	case MissingClosingTag:
		return "missing-closing-tag"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "nesting-mismatch":
		*k = NestingMismatch
	case "unexpected-closing-tag":
		*k = UnexpectedClosingTag
	case "missing-closing-tag":
		*k = MissingClosingTag
	default:
		return fmt.Errorf("unknown diagnostic kind %q", text)
	}
	return nil
}

// Diagnostic describes one nesting problem. Line and Column locate the '<'
// that opened the offending tag.
type Diagnostic struct {
	Line     int    `json:"line" yaml:"line"`
	Column   int    `json:"column" yaml:"column"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Tag      string `json:"tag" yaml:"tag"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// String renders the diagnostic as a single human-readable line.
func (d Diagnostic) String() string {
	switch d.Kind {
	case NestingMismatch:
		return fmt.Sprintf("Tag nesting error on line %d at character number %d for: </%s>, the expected tag was: </%s>",
			d.Line, d.Column, d.Tag, d.Expected)
	case UnexpectedClosingTag:
		return fmt.Sprintf("Unexpected closing tag on line %d at character number %d: </%s> has no open tag",
			d.Line, d.Column, d.Tag)
	case MissingClosingTag:
		return fmt.Sprintf("Missing end tag for: <%s> (opened on line %d at character number %d)",
			d.Tag, d.Line, d.Column)
	default:
		return fmt.Sprintf("%s on line %d at character number %d: %s", d.Kind, d.Line, d.Column, d.Tag)
	}
}

// Reporter receives diagnostics as the matcher finds them.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a plain function to Reporter.
type ReporterFunc func(d Diagnostic)

// Report calls f(d).
func (f ReporterFunc) Report(d Diagnostic) {
	f(d)
}
