package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	tagerrors "github.com/conneroisu/tagnest/internal/errors"
	"github.com/conneroisu/tagnest/internal/livereport"
	"github.com/conneroisu/tagnest/internal/logging"
	"github.com/conneroisu/tagnest/internal/report"
	"github.com/conneroisu/tagnest/internal/scanner"
	"github.com/conneroisu/tagnest/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var flags *StandardFlags

	watchCmd := &cobra.Command{
		Use:     "watch [path...]",
		Aliases: []string{"w"},
		Short:   "Re-check documents whenever they change",
		Long: `Check every document once, then watch the paths and re-check documents
as they are created or modified. Each re-check prints the changed
documents; the live report feed, when enabled, always carries the full
summary.

Examples:
  tagnest watch                        # Watch the configured paths
  tagnest watch site/ --serve :7070    # Stream summaries over WebSocket
  tagnest watch --debounce 1s -f table # Slower re-checks, table output`,
		Args: watchArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := SetViperBindings(cmd, checkBindings); err != nil {
				return fatal(err)
			}
			if err := SetViperBindings(cmd, watchBindings); err != nil {
				return fatal(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, flags)
		},
	}

	flags = AddStandardFlags(watchCmd, "check", "output", "watch")

	return watchCmd
}

func runWatch(cmd *cobra.Command, args []string, flags *StandardFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	flags.ApplyOverrides(cmd, cfg)

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	documentScanner := scanner.New(scanner.OptionsFromConfig(&cfg.Check), logger)

	session := newWatchSession(documentScanner, cmd.OutOrStdout(), cfg.Output.Format, flags.ReportOptions(), logger)

	if cfg.Watch.Serve != "" {
		server := livereport.NewServer(cfg.Watch.Serve, cfg.Watch.AllowedOrigins, logger)
		session.publish = server.Publish
		session.publishErr = server.Hub().BroadcastError

		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error(ctx, err, "Live report server stopped", "addr", server.Addr())
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, err, "Live report server shutdown")
			}
		}()
	}

	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return fatal(err)
	}
	defer fileWatcher.Stop()

	scope := newWatchScope(cfg.Check.Paths)
	fileWatcher.SetDirFilter(func(path string) bool {
		return watcher.NoGitFilter(path) && watcher.NoVendorFilter(path) && !documentScanner.Excludes(path)
	})
	fileWatcher.AddFilter(watcher.NoEditorTempFilter)
	fileWatcher.AddFilter(func(path string) bool {
		if scope.explicit(path) {
			return true
		}
		return scope.contains(path) && documentScanner.Accepts(path)
	})
	fileWatcher.AddHandler(session.handleChanges)

	for _, dir := range scope.watchDirs() {
		if err := fileWatcher.AddRecursive(dir); err != nil {
			logger.Warn(ctx, err, "Failed to watch path", "path", dir)
			continue
		}
		logger.Info(ctx, "Watching", "path", dir)
	}

	if err := session.initial(ctx, cfg.Check.Paths); err != nil {
		return fatal(err)
	}

	if err := fileWatcher.Start(ctx); err != nil {
		return fatal(err)
	}

	<-ctx.Done()
	logger.Info(context.Background(), "Stopping watch")
	return nil
}

// watchScope records which paths a watch was started on.
type watchScope struct {
	roots []string
	files map[string]struct{}
}

func newWatchScope(paths []string) *watchScope {
	s := &watchScope{files: make(map[string]struct{})}
	for _, p := range paths {
		p = filepath.Clean(p)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			s.files[p] = struct{}{}
			continue
		}
		s.roots = append(s.roots, p)
	}
	return s
}

func (s *watchScope) explicit(path string) bool {
	_, ok := s.files[filepath.Clean(path)]
	return ok
}

func (s *watchScope) contains(path string) bool {
	path = filepath.Clean(path)
	for _, root := range s.roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// watchDirs lists the directories to register: every root, plus the parent
// of each explicit file so editors that replace files are still seen.
func (s *watchScope) watchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(d string) {
		if _, dup := seen[d]; !dup {
			seen[d] = struct{}{}
			dirs = append(dirs, d)
		}
	}
	for _, root := range s.roots {
		add(root)
	}
	for file := range s.files {
		add(filepath.Dir(file))
	}
	return dirs
}

// watchSession keeps the latest result for every document being watched.
type watchSession struct {
	scanner    *scanner.DocumentScanner
	out        io.Writer
	format     string
	opts       report.Options
	logger     logging.Logger
	errs       *tagerrors.ErrorHandler
	publish    func(*report.Summary)
	publishErr func(error)

	mu      sync.Mutex
	order   []string
	results map[string]report.FileResult
}

func newWatchSession(s *scanner.DocumentScanner, out io.Writer, format string, opts report.Options, logger logging.Logger) *watchSession {
	return &watchSession{
		scanner: s,
		out:     out,
		format:  format,
		opts:    opts,
		logger:  logger,
		errs:    tagerrors.NewErrorHandler(logger),
		results: make(map[string]report.FileResult),
	}
}

// initial checks every document under paths and prints the full report.
func (w *watchSession) initial(ctx context.Context, paths []string) error {
	files, err := w.scanner.Discover(paths)
	if err != nil {
		return err
	}
	results, err := w.scanner.CheckFiles(ctx, files)
	if err != nil {
		return err
	}

	w.mu.Lock()
	for _, r := range results {
		w.store(r)
	}
	w.mu.Unlock()

	return w.emit(ctx, results)
}

// handleChanges re-checks the documents in a change batch. A failed
// re-check is also sent to feed subscribers.
func (w *watchSession) handleChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	err := w.recheck(ctx, events)
	if err != nil && w.publishErr != nil {
		w.publishErr(err)
	}
	return err
}

// recheck checks the documents in events again. Documents that no longer
// exist leave the summary.
func (w *watchSession) recheck(ctx context.Context, events []watcher.ChangeEvent) error {
	var changed []string
	removed := 0

	w.mu.Lock()
	for _, event := range events {
		path := filepath.Clean(event.Path)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if w.remove(path) {
				removed++
			}
			continue
		}
		changed = append(changed, path)
	}
	w.mu.Unlock()

	results, err := w.scanner.CheckFiles(ctx, changed)
	if err != nil {
		return err
	}

	w.mu.Lock()
	for _, r := range results {
		w.store(r)
	}
	w.mu.Unlock()

	w.logger.Info(ctx, "Re-checked changed documents", "changed", len(changed), "removed", removed)

	return w.emit(ctx, results)
}

// emit prints results, logs their problems and publishes the full summary.
func (w *watchSession) emit(ctx context.Context, results []report.FileResult) error {
	if len(results) > 0 {
		if err := report.Write(w.out, w.format, report.NewSummary(results), w.opts); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r.Error != "" {
			w.errs.Handle(ctx, tagerrors.ErrInputUnavailable(r.Path, errors.New(r.Error)))
		}
		for _, d := range r.Diagnostics {
			w.errs.Handle(ctx, tagerrors.FromDiagnostic(r.Path, d))
		}
	}

	if w.publish != nil {
		w.publish(w.Summary())
	}
	return nil
}

// Summary returns the summary over every watched document in first-seen
// order.
func (w *watchSession) Summary() *report.Summary {
	w.mu.Lock()
	defer w.mu.Unlock()

	results := make([]report.FileResult, 0, len(w.order))
	for _, path := range w.order {
		results = append(results, w.results[path])
	}
	return report.NewSummary(results)
}

// store must be called with mu held.
func (w *watchSession) store(r report.FileResult) {
	if _, ok := w.results[r.Path]; !ok {
		w.order = append(w.order, r.Path)
	}
	w.results[r.Path] = r
}

// remove must be called with mu held.
func (w *watchSession) remove(path string) bool {
	if _, ok := w.results[path]; !ok {
		return false
	}
	delete(w.results, path)
	for i, p := range w.order {
		if p == path {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}
