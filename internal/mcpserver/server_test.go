package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/githighlight/internal/cache"
	"github.com/starford/githighlight/internal/highlight"
	"github.com/starford/githighlight/internal/models"
	"github.com/starford/githighlight/internal/session"
	"github.com/starford/githighlight/internal/storage"
	"github.com/starford/githighlight/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.FakeFetcher, string) {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("\tpackage main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := testutil.NewFakeFetcher(
		testutil.Record("c2", "fix main", "main.go"),
		testutil.Record("c1", "add docs", "docs/readme.md"),
	)
	sess, err := session.Open(session.Config{StartDir: root, Settings: cache.Settings{Window: 5}},
		session.WithLogger(testutil.Logger()), session.WithFetcher(f))
	if err != nil {
		t.Fatal(err)
	}
	sess.Start(context.Background())
	t.Cleanup(sess.Close)

	testutil.Eventually(t, 5*time.Second, 10*time.Millisecond, func() bool {
		return sess.Status().Cache.Generation == 1
	}, "startup refresh did not publish")

	store, err := storage.NewFS(sess.Root())
	if err != nil {
		t.Fatal(err)
	}
	return New(highlight.NewService(sess, store), "test"), f, root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "match_file":
		result, err = srv.matchFile(ctx, req)
	case "highlight_file":
		result, err = srv.highlightFile(ctx, req)
	case "recent_commits":
		result, err = srv.recentCommits(ctx, req)
	case "refresh_history":
		result, err = srv.refreshHistory(ctx, req)
	case "cache_status":
		result, err = srv.cacheStatus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestMatchFile(t *testing.T) {
	srv, _, root := testServer(t)

	r := callTool(t, srv, "match_file", map[string]any{"path": "MAIN.go"})
	if r.IsError || resultText(r) != "fix main" {
		t.Errorf("match = %q (error %v)", resultText(r), r.IsError)
	}

	r = callTool(t, srv, "match_file", map[string]any{"path": filepath.Join(root, "docs", "readme.md")})
	if resultText(r) != "add docs" {
		t.Errorf("absolute match = %q", resultText(r))
	}

	r = callTool(t, srv, "match_file", map[string]any{"path": "other.go"})
	if r.IsError || !strings.HasPrefix(resultText(r), "not changed recently") {
		t.Errorf("no match = %q", resultText(r))
	}
}

func TestMatchFile_Errors(t *testing.T) {
	srv, _, _ := testServer(t)

	if r := callTool(t, srv, "match_file", map[string]any{}); !r.IsError {
		t.Error("missing path should be an error")
	}
	if r := callTool(t, srv, "match_file", map[string]any{"path": "../../etc/passwd"}); !r.IsError {
		t.Error("path outside the repository should be an error")
	}
}

func TestHighlightFile(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "highlight_file", map[string]any{"path": "main.go"})
	var res highlight.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if res.Start != 1 || res.End != 6 || res.Tooltip != "fix main" {
		t.Errorf("worktree highlight = %+v", res)
	}

	r = callTool(t, srv, "highlight_file", map[string]any{"path": "main.go", "text": "   "})
	if resultText(r) != "nothing to highlight" {
		t.Errorf("blank text = %q", resultText(r))
	}

	r = callTool(t, srv, "highlight_file", map[string]any{"path": "main.go", "text": "abcdefgh"})
	res = highlight.Result{}
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if res.Start != 0 || res.End != 5 {
		t.Errorf("explicit text highlight = %+v", res)
	}
}

func TestRecentCommits(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "recent_commits", nil)
	var commits []models.CommitRecord
	if err := json.Unmarshal([]byte(resultText(r)), &commits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(commits) != 2 || commits[0].Message != "fix main" {
		t.Errorf("commits = %+v", commits)
	}
}

func TestRefreshHistory(t *testing.T) {
	srv, f, _ := testServer(t)
	before := f.Calls()

	r := callTool(t, srv, "refresh_history", nil)
	if r.IsError || resultText(r) != "refresh requested" {
		t.Errorf("refresh = %q", resultText(r))
	}
	testutil.Eventually(t, 5*time.Second, 10*time.Millisecond, func() bool {
		return f.Calls() > before
	}, "refresh_history did not trigger a fetch")
}

func TestCacheStatus(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "cache_status", nil)
	text := resultText(r)
	if !strings.Contains(text, `"active": true`) || !strings.Contains(text, `"generation": 1`) {
		t.Errorf("status = %s", text)
	}
}

func TestInactiveSession(t *testing.T) {
	src := highlight.NewService(inactive{}, nil)
	srv := New(src, "test")

	r := callTool(t, srv, "match_file", map[string]any{"path": "a.go"})
	if !r.IsError || !strings.Contains(resultText(r), "no git repository") {
		t.Errorf("inactive match = %q", resultText(r))
	}
	r = callTool(t, srv, "refresh_history", nil)
	if !r.IsError {
		t.Error("inactive refresh should be an error")
	}
	r = callTool(t, srv, "recent_commits", nil)
	if resultText(r) != "[]" {
		t.Errorf("inactive commits = %q", resultText(r))
	}
}

func TestResources(t *testing.T) {
	srv, _, _ := testServer(t)
	ctx := context.Background()

	contents, err := srv.readSnapshotResource(ctx, mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != SnapshotURI {
		t.Fatalf("contents = %+v", contents)
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(tc.Text), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Generation != 1 || len(snap.Commits) != 2 || snap.Fingerprint == "" {
		t.Errorf("snapshot = %+v", snap)
	}

	contents, err = srv.readUsageResource(ctx, mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc := contents[0].(mcp.TextResourceContents); !strings.Contains(tc.Text, "highlight_file") {
		t.Error("usage guide should describe highlight_file")
	}
}

type inactive struct{}

func (inactive) Active() bool                { return false }
func (inactive) Snapshot() *models.Snapshot  { return models.EmptySnapshot() }
func (inactive) Match(string) (string, bool) { return "", false }
func (inactive) RequestRefresh()             {}
func (inactive) Status() session.Status      { return session.Status{} }
