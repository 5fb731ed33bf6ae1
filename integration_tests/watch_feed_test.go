//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tagnest/internal/livereport"
	"github.com/conneroisu/tagnest/internal/report"
	"github.com/conneroisu/tagnest/internal/scanner"
	"github.com/conneroisu/tagnest/internal/watcher"
)

func readSummary(t *testing.T, conn *websocket.Conn, timeout time.Duration) *report.Summary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg livereport.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, livereport.MessageSummary, msg.Type)
	require.NotNil(t, msg.Summary)
	return msg.Summary
}

func TestIntegration_WatchFeed_EditBreaksAndFixesDocument(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(page, []byte("<html><body></body></html>"), 0o644))

	documentScanner := scanner.New(scanner.Options{Workers: 2, Diagnostics: true}, nil)
	srv := livereport.NewServer("127.0.0.1:0", nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Hub().Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	summary, err := documentScanner.Check(ctx, []string{dir})
	require.NoError(t, err)
	srv.Publish(summary)

	fileWatcher, err := watcher.NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.HTMLFilter)
	fileWatcher.AddFilter(watcher.NoEditorTempFilter)
	fileWatcher.AddHandler(func(ctx context.Context, _ []watcher.ChangeEvent) error {
		summary, err := documentScanner.Check(ctx, []string{dir})
		if err != nil {
			return err
		}
		srv.Publish(summary)
		return nil
	})
	require.NoError(t, fileWatcher.AddRecursive(dir))
	require.NoError(t, fileWatcher.Start(ctx))

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	initial := readSummary(t, conn, 5*time.Second)
	assert.True(t, initial.OK())

	require.NoError(t, os.WriteFile(page, []byte("<html><body><div></span></body></html>"), 0o644))

	var broken *report.Summary
	for broken == nil || broken.OK() {
		broken = readSummary(t, conn, 5*time.Second)
	}
	assert.Equal(t, 1, broken.Invalid)
	require.NotEmpty(t, broken.Results[0].Diagnostics)
	assert.Equal(t, "span", broken.Results[0].Diagnostics[0].Tag)
	assert.Equal(t, "div", broken.Results[0].Diagnostics[0].Expected)

	require.NoError(t, os.WriteFile(page, []byte("<html><body><div></div></body></html>"), 0o644))

	var fixed *report.Summary
	for fixed == nil || !fixed.OK() {
		fixed = readSummary(t, conn, 5*time.Second)
	}
	assert.Equal(t, 1, fixed.Valid)
}

func TestIntegration_WatchFeed_NewDocumentJoinsSummary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("<p></p>"), 0o644))

	documentScanner := scanner.New(scanner.Options{Diagnostics: true}, nil)
	hub := livereport.NewHub(nil, nil)
	defer hub.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileWatcher, err := watcher.NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.HTMLFilter)
	fileWatcher.AddHandler(func(ctx context.Context, _ []watcher.ChangeEvent) error {
		summary, err := documentScanner.Check(ctx, []string{dir})
		if err != nil {
			return err
		}
		hub.Broadcast(summary)
		return nil
	})
	require.NoError(t, fileWatcher.AddRecursive(dir))
	require.NoError(t, fileWatcher.Start(ctx))

	sub := filepath.Join(dir, "blog")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool {
		for _, p := range fileWatcher.WatchList() {
			if p == sub {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "post.html"), []byte("<article>"), 0o644))

	require.Eventually(t, func() bool {
		data := hub.Latest()
		if data == nil {
			return false
		}
		var msg livereport.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Summary == nil {
			return false
		}
		return msg.Summary.Total == 2 && msg.Summary.Invalid == 1
	}, 5*time.Second, 20*time.Millisecond)
}
