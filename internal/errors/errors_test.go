package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/conneroisu/tagnest/internal/tagmatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagnestErrorError(t *testing.T) {
	tests := []struct {
		name string
		err  *TagnestError
		want string
	}{
		{
			name: "code and message",
			err:  NewValidationError("ERR_X", "bad thing"),
			want: "[ERR_X] bad thing",
		},
		{
			name: "with location",
			err:  NewValidationError("ERR_X", "bad thing").WithLocation("a.html", 3, 7),
			want: "[ERR_X] a.html:3:7 bad thing",
		},
		{
			name: "file only",
			err:  NewIOError("ERR_Y", "cannot read", nil).WithLocation("a.html", 0, 0),
			want: "[ERR_Y] a.html cannot read",
		},
		{
			name: "with cause",
			err:  NewIOError("ERR_Y", "cannot read", fmt.Errorf("permission denied")),
			want: "[ERR_Y] cannot read: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTagnestErrorIsAndUnwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := ErrInputUnavailable("index.html", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, NewIOError(ErrCodeInputUnavailable, "other message", nil))
	assert.NotErrorIs(t, err, NewIOError(ErrCodeInvalidPath, "", nil))
	assert.False(t, IsRecoverable(err))
	assert.True(t, IsInputUnavailable(err))
}

func TestIsInputUnavailable(t *testing.T) {
	wrapped := fmt.Errorf("open: %w", tagmatch.ErrInputUnavailable)

	assert.True(t, IsInputUnavailable(wrapped))
	assert.True(t, IsInputUnavailable(ErrInputUnavailable("x", nil)))
	assert.False(t, IsInputUnavailable(errors.New("other")))
	assert.False(t, IsInputUnavailable(nil))
}

func TestFromDiagnostic(t *testing.T) {
	d := tagmatch.Diagnostic{Line: 2, Column: 5, Kind: tagmatch.NestingMismatch, Tag: "div", Expected: "span"}

	err := FromDiagnostic("page.html", d)
	require.NotNil(t, err)

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, ErrCodeNestingMismatch, err.Code)
	assert.Equal(t, "page.html", err.FilePath)
	assert.Equal(t, 2, err.Line)
	assert.Equal(t, 5, err.Column)
	assert.Equal(t, "div", err.Context["tag"])
	assert.Equal(t, "span", err.Context["expected"])
	assert.True(t, IsRecoverable(err))

	missing := FromDiagnostic("page.html", tagmatch.Diagnostic{Kind: tagmatch.MissingClosingTag, Tag: "p"})
	assert.Equal(t, ErrCodeMissingClose, missing.Code)
	_, hasExpected := missing.Context["expected"]
	assert.False(t, hasExpected)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "X", "y"))

	base := NewValidationError("ERR_A", "inner").WithLocation("f.html", 1, 2)
	wrapped := Wrap(base, ErrorTypeWatch, "ERR_B", "outer")
	assert.Equal(t, "f.html", wrapped.FilePath)
	assert.Equal(t, 1, wrapped.Line)
	assert.ErrorIs(t, wrapped, base)

	io := WrapIO(errors.New("eof"), "ERR_C", "read")
	assert.False(t, io.Recoverable)
	cfg := WrapConfig(errors.New("bad yaml"), ErrCodeConfigInvalid, "load")
	assert.Equal(t, ErrorTypeConfig, cfg.Type)
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "", FormatError(nil))
	assert.Equal(t, "plain", FormatError(errors.New("plain")))

	err := NewIOError(ErrCodeInputUnavailable, "input unavailable", errors.New("no such file")).
		WithLocation("missing.html", 0, 0)
	assert.Equal(t,
		"ERR_INPUT_UNAVAILABLE: input unavailable\n  at missing.html\n  caused by: no such file",
		FormatError(err))
}

func TestCombineErrors(t *testing.T) {
	assert.NoError(t, CombineErrors(nil, nil))

	a := errors.New("a")
	assert.Equal(t, a, CombineErrors(nil, a))

	b := errors.New("b")
	joined := CombineErrors(a, nil, b)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.warns = append(l.warns, msg)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	h := NewErrorHandler(logger)
	ctx := context.Background()

	h.Handle(ctx, nil)
	h.Handle(ctx, NewValidationError(ErrCodeDocumentInvalid, "bad"))
	h.Handle(ctx, NewWatchError(ErrCodeWatchFailed, "watch", nil))
	h.Handle(ctx, NewIOError(ErrCodeInputUnavailable, "io", nil))
	h.Handle(ctx, NewInternalError(ErrCodeInternalError, "boom", nil))
	h.Handle(ctx, errors.New("plain"))

	assert.Equal(t, []string{"Document failed validation", "Watch error occurred"}, logger.warns)
	assert.Equal(t, []string{"Input error occurred", "Error occurred", "Unhandled error occurred"}, logger.errors)
}
