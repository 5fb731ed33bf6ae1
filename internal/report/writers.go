package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tagnest/internal/tagmatch"
)

// WriteText renders one block per document. Runs over several documents end
// with a totals line.
func WriteText(w io.Writer, s *Summary, opts Options) error {
	var b strings.Builder
	title := cases.Title(language.English)

	for _, r := range s.Results {
		fmt.Fprintf(&b, "%s: %s\n", r.Path, title.String(string(r.Status())))

		switch r.Status() {
		case StatusFailed:
			fmt.Fprintf(&b, "Error: %s\n", r.Error)
			continue
		case StatusValid:
			if !opts.Quiet {
				b.WriteString("This is a valid HTML file\n")
			}
			continue
		}

		if opts.Quiet {
			continue
		}
		for _, d := range r.Diagnostics {
			writeDiagnostic(&b, d)
		}
	}

	if s.Total > 1 {
		fmt.Fprintf(&b, "\nChecked %d documents: %d valid, %d invalid, %d failed\n",
			s.Total, s.Valid, s.Invalid, s.Failed)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDiagnostic(b *strings.Builder, d tagmatch.Diagnostic) {
	switch d.Kind {
	case tagmatch.NestingMismatch:
		fmt.Fprintf(b, "Tag nesting error on line %d at character number %d for: </%s>\n",
			d.Line, d.Column, d.Tag)
		fmt.Fprintf(b, "The expected tag was: </%s>\n", d.Expected)
	case tagmatch.UnexpectedClosingTag:
		fmt.Fprintf(b, "Tag nesting error on line %d at character number %d for: </%s>\n",
			d.Line, d.Column, d.Tag)
		b.WriteString("No tag was open\n")
	case tagmatch.MissingClosingTag:
		fmt.Fprintf(b, "Missing end tag for: <%s>\n", d.Tag)
	default:
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
}

// WriteJSON renders the summary as indented JSON.
func WriteJSON(w io.Writer, s *Summary, opts Options) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stripped(s, opts))
}

// WriteYAML renders the summary as YAML.
func WriteYAML(w io.Writer, s *Summary, opts Options) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(stripped(s, opts)); err != nil {
		return err
	}
	return encoder.Close()
}

// WriteTable renders one row per diagnostic, or one row per document when it
// has none.
func WriteTable(w io.Writer, s *Summary, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "FILE\tSTATUS\tLINE\tCOLUMN\tKIND\tTAG\tEXPECTED")
	fmt.Fprintln(tw, "----\t------\t----\t------\t----\t---\t--------")

	for _, r := range s.Results {
		status := string(r.Status())
		if r.Status() == StatusFailed {
			fmt.Fprintf(tw, "%s\t%s\t\t\t\t\t%s\n", r.Path, status, r.Error)
			continue
		}
		if opts.Quiet || len(r.Diagnostics) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t\t\t\t\t\n", r.Path, status)
			continue
		}
		for _, d := range r.Diagnostics {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				r.Path, status, d.Line, d.Column, d.Kind, d.Tag, d.Expected)
		}
	}

	fmt.Fprintf(tw, "\nTotal: %d documents (%d valid, %d invalid, %d failed)\n",
		s.Total, s.Valid, s.Invalid, s.Failed)

	return tw.Flush()
}
