// Package scanner discovers HTML documents and checks their tag nesting.
//
// The scanner walks the configured paths, keeps files whose extension is
// accepted and whose name or relative path matches no exclude pattern, and
// runs the tag matcher over each document on a fixed pool of workers.
// Results come back in discovery order regardless of completion order.
package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/tagnest/internal/config"
	"github.com/conneroisu/tagnest/internal/errors"
	"github.com/conneroisu/tagnest/internal/logging"
	"github.com/conneroisu/tagnest/internal/report"
	"github.com/conneroisu/tagnest/internal/source"
	"github.com/conneroisu/tagnest/internal/tagmatch"
)

// Options configures a DocumentScanner.
type Options struct {
	Extensions    []string
	Exclude       []string
	Workers       int
	Diagnostics   bool
	DetectCharset bool
	MaxFileSize   int64
	// Stdin is read for the path "-"; nil means os.Stdin.
	Stdin io.Reader
}

// OptionsFromConfig builds scanner options from the check section.
func OptionsFromConfig(cfg *config.CheckConfig) Options {
	return Options{
		Extensions:    cfg.Extensions,
		Exclude:       cfg.Exclude,
		Workers:       cfg.Workers,
		Diagnostics:   cfg.Diagnostics,
		DetectCharset: cfg.DetectCharset,
		MaxFileSize:   cfg.MaxFileSize,
	}
}

// ScanJob is one document handed to a worker. index is the document's
// position in the batch.
type ScanJob struct {
	index int
	path  string
}

// ScanResult carries a worker's outcome back to the collector.
type ScanResult struct {
	index  int
	result report.FileResult
}

// DocumentScanner discovers and checks documents.
type DocumentScanner struct {
	opts   Options
	exts   map[string]struct{}
	logger logging.Logger
}

// New creates a scanner. A nil logger discards log output.
func New(opts Options, logger logging.Logger) *DocumentScanner {
	if opts.Workers < 1 {
		opts.Workers = config.DefaultWorkers()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".html", ".htm", ".xhtml"}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &DocumentScanner{
		opts:   opts,
		exts:   exts,
		logger: logger.WithComponent("scanner"),
	}
}

// Accepts reports whether path has a document extension and is not excluded.
func (s *DocumentScanner) Accepts(path string) bool {
	if _, ok := s.exts[strings.ToLower(filepath.Ext(path))]; !ok {
		return false
	}
	return !s.excluded(path, filepath.Base(path))
}

// Excludes reports whether path matches an exclude pattern.
func (s *DocumentScanner) Excludes(path string) bool {
	return s.excluded(path, filepath.Base(path))
}

// excluded matches patterns against the base name and the relative path.
func (s *DocumentScanner) excluded(rel, base string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.opts.Exclude {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Discover expands paths into the documents to check. Directories are walked
// recursively; files and "-" named explicitly are kept regardless of their
// extension. Paths that do not exist are kept so the check reports them as
// unreadable. Duplicates are dropped.
func (s *DocumentScanner) Discover(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, root := range paths {
		if err := config.ValidatePath(root); err != nil {
			return nil, errors.ErrInvalidPath(root).WithContext("reason", err.Error())
		}
		if root == source.StdinName {
			add(root)
			continue
		}

		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn(context.Background(), err, "Skipping unreadable path", "path", path)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}

			if d.IsDir() {
				if path != root && s.excluded(rel, d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if _, ok := s.exts[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
			if s.excluded(rel, d.Name()) {
				return nil
			}

			add(path)
			return nil
		})
		if err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeInputUnavailable,
				fmt.Sprintf("walking %s", root))
		}
	}

	s.logger.Debug(context.Background(), "Discovered documents", "count", len(files))
	return files, nil
}

// CheckFile runs the matcher over one document. Read failures are recorded
// in the result rather than returned.
func (s *DocumentScanner) CheckFile(path string) report.FileResult {
	res := report.FileResult{Path: path}

	doc, err := source.Open(path, source.Options{
		MaxSize:       s.opts.MaxFileSize,
		DetectCharset: s.opts.DetectCharset,
		Stdin:         s.opts.Stdin,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer doc.Close()
	res.Encoding = doc.Encoding

	match, err := tagmatch.Match(doc, tagmatch.Options{Diagnostics: s.opts.Diagnostics})
	if err != nil {
		if errors.IsInputUnavailable(err) {
			err = errors.ErrInputUnavailable(path, err)
		}
		res.Error = err.Error()
		return res
	}

	res.Valid = match.Valid
	res.Diagnostics = match.Diagnostics
	return res
}

// CheckFiles checks files on the worker pool and returns their results in
// the order given. Cancelling ctx stops dispatching new documents; the call
// then returns ctx.Err().
func (s *DocumentScanner) CheckFiles(ctx context.Context, files []string) ([]report.FileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]report.FileResult, len(files))
	if len(files) == 0 {
		return results, nil
	}

	// Small batches are not worth the goroutines.
	if len(files) <= 2 || s.opts.Workers == 1 {
		for i, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = s.CheckFile(path)
		}
		return results, nil
	}

	workers := s.opts.Workers
	if workers > len(files) {
		workers = len(files)
	}

	jobQueue := make(chan ScanJob, workers*2)
	resultChan := make(chan ScanResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobQueue {
				resultChan <- ScanResult{index: job.index, result: s.CheckFile(job.path)}
			}
		}()
	}

	go func() {
		defer close(jobQueue)
		for i, path := range files {
			select {
			case jobQueue <- ScanJob{index: i, path: path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	done := 0
	for r := range resultChan {
		results[r.index] = r.result
		done++
	}

	if err := ctx.Err(); err != nil && done < len(files) {
		return nil, err
	}
	return results, nil
}

// Check discovers documents under paths and checks them.
func (s *DocumentScanner) Check(ctx context.Context, paths []string) (*report.Summary, error) {
	files, err := s.Discover(paths)
	if err != nil {
		return nil, err
	}

	results, err := s.CheckFiles(ctx, files)
	if err != nil {
		return nil, err
	}

	summary := report.NewSummary(results)
	s.logger.Info(ctx, "Check completed",
		"total", summary.Total,
		"valid", summary.Valid,
		"invalid", summary.Invalid,
		"failed", summary.Failed)
	return summary, nil
}
