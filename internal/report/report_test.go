package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tagnest/internal/tagmatch"
)

func sampleResults() []FileResult {
	return []FileResult{
		{Path: "ok.html", Valid: true},
		{
			Path: "bad.html",
			Diagnostics: []tagmatch.Diagnostic{
				{Line: 3, Column: 12, Kind: tagmatch.NestingMismatch, Tag: "div", Expected: "span"},
			},
		},
		{
			Path: "open.html",
			Diagnostics: []tagmatch.Diagnostic{
				{Line: 1, Column: 6, Kind: tagmatch.MissingClosingTag, Tag: "p"},
				{Line: 1, Column: 1, Kind: tagmatch.MissingClosingTag, Tag: "div"},
			},
		},
		{Path: "gone.html", Error: "input unavailable: no such file"},
	}
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(sampleResults())

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Valid)
	assert.Equal(t, 2, s.Invalid)
	assert.Equal(t, 1, s.Failed)
	assert.False(t, s.OK())

	empty := NewSummary(nil)
	assert.NotNil(t, empty.Results)
	assert.True(t, empty.OK())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		results []FileResult
		want    int
	}{
		{"no documents", nil, ExitValid},
		{"all valid", []FileResult{{Valid: true}, {Valid: true}}, ExitValid},
		{"one invalid", []FileResult{{Valid: true}, {Valid: false}}, ExitInvalid},
		{"failure wins", []FileResult{{Valid: false}, {Error: "boom"}}, ExitFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewSummary(tt.results).ExitCode())
		})
	}
}

func TestFileResultStatus(t *testing.T) {
	assert.Equal(t, StatusValid, FileResult{Valid: true}.Status())
	assert.Equal(t, StatusInvalid, FileResult{}.Status())
	assert.Equal(t, StatusFailed, FileResult{Valid: true, Error: "x"}.Status())
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, NewSummary(sampleResults()), Options{}))

	want := `ok.html: Valid
This is a valid HTML file
bad.html: Invalid
Tag nesting error on line 3 at character number 12 for: </div>
The expected tag was: </span>
open.html: Invalid
Missing end tag for: <p>
Missing end tag for: <div>
gone.html: Failed
Error: input unavailable: no such file

Checked 4 documents: 1 valid, 2 invalid, 1 failed
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("text report mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteTextSingleDocument(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary([]FileResult{{
		Path: "-",
		Diagnostics: []tagmatch.Diagnostic{
			{Line: 1, Column: 1, Kind: tagmatch.UnexpectedClosingTag, Tag: "p"},
		},
	}})
	require.NoError(t, WriteText(&buf, s, Options{}))

	assert.Equal(t,
		"-: Invalid\nTag nesting error on line 1 at character number 1 for: </p>\nNo tag was open\n",
		buf.String())
}

func TestWriteTextNoDocuments(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, NewSummary(nil), Options{}))

	assert.Empty(t, buf.String())
}

func TestWriteTextQuiet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, NewSummary(sampleResults()), Options{Quiet: true}))

	out := buf.String()
	assert.Contains(t, out, "bad.html: Invalid\n")
	assert.Contains(t, out, "Error: input unavailable")
	assert.NotContains(t, out, "Tag nesting error")
	assert.NotContains(t, out, "This is a valid HTML file")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary(sampleResults())
	require.NoError(t, WriteJSON(&buf, s, Options{}))

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	if diff := cmp.Diff(*s, got); diff != "" {
		t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, buf.String(), `"kind": "nesting-mismatch"`)
	assert.NotContains(t, buf.String(), `"expected": ""`)
}

func TestWriteJSONQuiet(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary(sampleResults())
	require.NoError(t, WriteJSON(&buf, s, Options{Quiet: true}))

	assert.NotContains(t, buf.String(), "diagnostics")
	// The caller's summary is untouched.
	assert.Len(t, s.Results[1].Diagnostics, 1)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary(sampleResults())
	require.NoError(t, WriteYAML(&buf, s, Options{}))

	out := buf.String()
	assert.Contains(t, out, "total: 4")
	assert.Contains(t, out, "kind: missing-closing-tag")

	var got Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	if diff := cmp.Diff(*s, got); diff != "" {
		t.Errorf("yaml round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, NewSummary(sampleResults()), Options{}))

	out := buf.String()
	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "EXPECTED")
	assert.Regexp(t, `bad\.html\s+invalid\s+3\s+12\s+nesting-mismatch\s+div\s+span`, out)
	assert.Regexp(t, `gone\.html\s+failed\s+input unavailable`, out)
	assert.Contains(t, out, "Total: 4 documents (1 valid, 2 invalid, 1 failed)")
}

func TestWrite(t *testing.T) {
	s := NewSummary(sampleResults())
	for _, format := range Formats {
		var buf bytes.Buffer
		assert.NoError(t, Write(&buf, format, s, Options{}), format)
		assert.NotEmpty(t, buf.String(), format)
	}

	err := Write(&bytes.Buffer{}, "xml", s, Options{})
	assert.EqualError(t, err, "unsupported format: xml")
}
