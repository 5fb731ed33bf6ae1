// Package report collects per-document results of a check run and renders
// them as text, JSON, YAML or a table.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/tagnest/internal/tagmatch"
)

// Exit codes returned by Summary.ExitCode.
const (
	ExitValid   = 0
	ExitInvalid = 1
	ExitFatal   = 2
)

// Status of a single document.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusFailed  Status = "failed"
)

// FileResult is the outcome of checking one document. Error is set when the
// document could not be read; Valid is then false and Diagnostics empty.
type FileResult struct {
	Path        string                `json:"path" yaml:"path"`
	Valid       bool                  `json:"valid" yaml:"valid"`
	Encoding    string                `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Diagnostics []tagmatch.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Error       string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// Status classifies the result.
func (r FileResult) Status() Status {
	switch {
	case r.Error != "":
		return StatusFailed
	case r.Valid:
		return StatusValid
	default:
		return StatusInvalid
	}
}

// Summary aggregates the results of one check run in input order.
type Summary struct {
	Total   int          `json:"total" yaml:"total"`
	Valid   int          `json:"valid" yaml:"valid"`
	Invalid int          `json:"invalid" yaml:"invalid"`
	Failed  int          `json:"failed" yaml:"failed"`
	Results []FileResult `json:"results" yaml:"results"`
}

// NewSummary counts results by status.
func NewSummary(results []FileResult) *Summary {
	s := &Summary{Results: results}
	if s.Results == nil {
		s.Results = []FileResult{}
	}
	for _, r := range results {
		s.Total++
		switch r.Status() {
		case StatusValid:
			s.Valid++
		case StatusInvalid:
			s.Invalid++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// OK reports whether every document was read and valid.
func (s *Summary) OK() bool {
	return s.Invalid == 0 && s.Failed == 0
}

// ExitCode maps the summary to the process exit status. Unreadable documents
// take precedence over invalid ones.
func (s *Summary) ExitCode() int {
	switch {
	case s.Failed > 0:
		return ExitFatal
	case s.Invalid > 0:
		return ExitInvalid
	default:
		return ExitValid
	}
}

// Options controls rendering.
type Options struct {
	// Quiet drops diagnostics, keeping one verdict per document.
	Quiet bool
}

// Formats lists the names accepted by Write.
var Formats = []string{"text", "json", "yaml", "table"}

// Write renders s to w in the named format.
func Write(w io.Writer, format string, s *Summary, opts Options) error {
	switch strings.ToLower(format) {
	case "", "text":
		return WriteText(w, s, opts)
	case "json":
		return WriteJSON(w, s, opts)
	case "yaml":
		return WriteYAML(w, s, opts)
	case "table":
		return WriteTable(w, s, opts)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// stripped returns a copy of s without diagnostics when opts.Quiet is set.
func stripped(s *Summary, opts Options) *Summary {
	if !opts.Quiet {
		return s
	}
	out := *s
	out.Results = make([]FileResult, len(s.Results))
	for i, r := range s.Results {
		r.Diagnostics = nil
		out.Results[i] = r
	}
	return &out
}
