// Package source opens documents for the tag matcher. A document is a file
// path or "-" for standard input; its bytes are optionally decoded to UTF-8
// from the character set declared by a BOM or <meta charset>.
package source

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/conneroisu/tagnest/internal/errors"
)

// StdinName is the path that selects standard input.
const StdinName = "-"

// Options controls how a document is opened.
type Options struct {
	// MaxSize rejects documents larger than this many bytes. Zero disables
	// the limit.
	MaxSize int64
	// DetectCharset decodes non UTF-8 input before matching.
	DetectCharset bool
	// Stdin replaces os.Stdin for "-".
	Stdin io.Reader
}

// Document is an opened input. Close releases the underlying file.
type Document struct {
	Path     string
	Encoding string

	r      io.Reader
	closer io.Closer
}

// Read implements io.Reader.
func (d *Document) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

// Close closes the underlying file, if any.
func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// Open opens path for matching. Failures to open or stat the path are
// ERR_INPUT_UNAVAILABLE; documents over opts.MaxSize are ERR_INPUT_TOO_LARGE.
func Open(path string, opts Options) (*Document, error) {
	if path == StdinName {
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		return wrap(path, in, nil, opts)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.ErrInputUnavailable(path, err)
	}
	if info.IsDir() {
		return nil, errors.ErrInputUnavailable(path, fmt.Errorf("is a directory"))
	}
	if opts.MaxSize > 0 && info.Size() > opts.MaxSize {
		return nil, tooLarge(path, opts.MaxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ErrInputUnavailable(path, err)
	}

	doc, err := wrap(path, f, f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return doc, nil
}

func wrap(path string, r io.Reader, closer io.Closer, opts Options) (*Document, error) {
	if opts.MaxSize > 0 {
		r = &limitedReader{r: r, remaining: opts.MaxSize, path: path, limit: opts.MaxSize}
	}

	doc := &Document{Path: path, Encoding: "utf-8", closer: closer}
	if !opts.DetectCharset {
		doc.r = r
		return doc, nil
	}

	br := bufio.NewReader(r)
	// Peek fills the buffer the charset sniffer inspects; an empty document
	// is fine, a failed read is not.
	prefix, err := br.Peek(1024)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, inputError(path, err)
	}
	if len(prefix) == 0 {
		doc.r = br
		return doc, nil
	}

	enc, name, _ := charset.DetermineEncoding(prefix, "")
	doc.Encoding = name
	// BOMOverride strips a leading byte order mark so it never counts as a
	// column on the first line.
	doc.r = transform.NewReader(br, unicode.BOMOverride(enc.NewDecoder()))
	return doc, nil
}

// inputError keeps structured errors from the size limit intact.
func inputError(path string, err error) error {
	if te, ok := err.(*errors.TagnestError); ok {
		return te
	}
	return errors.ErrInputUnavailable(path, err)
}

func tooLarge(path string, limit int64) error {
	return errors.NewIOError(errors.ErrCodeInputTooLarge,
		fmt.Sprintf("document exceeds %d bytes", limit), nil).
		WithLocation(path, 0, 0)
}

// limitedReader fails once more than limit bytes have been read, unlike
// io.LimitReader which silently truncates.
type limitedReader struct {
	r         io.Reader
	remaining int64
	path      string
	limit     int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, tooLarge(l.path, l.limit)
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n + int(l.remaining), tooLarge(l.path, l.limit)
	}
	return n, err
}
