package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop(), "second stop is a no-op")
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter FileFilter
		path   string
		want   bool
	}{
		{"html", HTMLFilter, "site/index.html", true},
		{"upper htm", HTMLFilter, "site/INDEX.HTM", true},
		{"xhtml", HTMLFilter, "doc.xhtml", true},
		{"go", HTMLFilter, "main.go", false},
		{"custom ext", ExtensionFilter(".tmpl"), "a.TMPL", true},
		{"git", NoGitFilter, "repo/.git/index.html", false},
		{"gitignore", NoGitFilter, "repo/.gitignore", true},
		{"vendor", NoVendorFilter, "vendor/lib/x.html", false},
		{"node_modules", NoVendorFilter, "web/node_modules/x.html", false},
		{"vendored name", NoVendorFilter, "vendors.html", true},
		{"swap", NoEditorTempFilter, "site/.index.html.swp", false},
		{"backup", NoEditorTempFilter, "site/index.html~", false},
		{"emacs lock", NoEditorTempFilter, "site/.#index.html", false},
		{"plain", NoEditorTempFilter, "site/index.html", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter(tt.path))
		})
	}
}

func TestAddRecursive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pages", "blog"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.SetDirFilter(NoGitFilter)
	require.NoError(t, watcher.AddRecursive(root))

	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "pages"),
		filepath.Join(root, "pages", "blog"),
	}, watcher.WatchList())
}

func TestAddPathInvalid(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Error(t, watcher.AddPath(""))
	assert.Error(t, watcher.AddPath(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, watcher.AddRecursive("a|b"))
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "b.html"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "a.html"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "b.html"})
	d.stop()
	d.flush()

	select {
	case batch := <-d.Output():
		assert.Equal(t, []ChangeEvent{
			{Type: EventTypeModified, Path: "a.html"},
			{Type: EventTypeModified, Path: "b.html"},
		}, batch)
	default:
		t.Fatal("expected a batch")
	}

	d.flush()
	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch %v", batch)
	default:
	}
}

func TestFileWatcherDeliversChanges(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(HTMLFilter)
	watcher.AddFilter(NoEditorTempFilter)

	var mu sync.Mutex
	var got []ChangeEvent
	batches := make(chan struct{}, 10)
	watcher.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		mu.Lock()
		got = append(got, events...)
		mu.Unlock()
		batches <- struct{}{}
		return nil
	})

	require.NoError(t, watcher.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	page := filepath.Join(root, "index.html")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(page, []byte("<p>"), 0o644))
	require.NoError(t, os.WriteFile(page, []byte("<p></p>"), 0o644))

	select {
	case <-batches:
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for _, e := range got {
		assert.Equal(t, page, e.Path)
	}
}

func TestFileWatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(HTMLFilter)
	paths := make(chan string, 10)
	watcher.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		for _, e := range events {
			paths <- e.Path
		}
		return nil
	})
	require.NoError(t, watcher.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	sub := filepath.Join(root, "blog")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool {
		for _, p := range watcher.WatchList() {
			if p == sub {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	post := filepath.Join(sub, "post.html")
	require.NoError(t, os.WriteFile(post, []byte("<p></p>"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-paths:
			if p == post {
				return
			}
		case <-deadline:
			t.Fatal("change in new directory not delivered")
		}
	}
}
