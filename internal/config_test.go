package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/githighlight/internal/apperr"
	"github.com/starford/githighlight/internal/repo"
	"github.com/starford/githighlight/internal/testutil"
	pkgconfig "github.com/starford/githighlight/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg = AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("token mode with empty token: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.History.Commits != 5 {
		t.Errorf("default window = %d, want 5", cfg.History.Commits)
	}
	if got := cfg.App.HTTP.Address(); got != "127.0.0.1:7345" {
		t.Errorf("address = %q", got)
	}
}

func TestHistoryConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*HistoryConfig)
		ok   bool
	}{
		{"defaults", func(*HistoryConfig) {}, true},
		{"window of one", func(c *HistoryConfig) { c.Commits = 1 }, true},
		{"zero window", func(c *HistoryConfig) { c.Commits = 0 }, false},
		{"negative window", func(c *HistoryConfig) { c.Commits = -3 }, false},
		{"extensions", func(c *HistoryConfig) { c.Extensions = []string{".go", "cs", "TS"} }, true},
		{"empty extension", func(c *HistoryConfig) { c.Extensions = []string{"."} }, false},
		{"extension with separator", func(c *HistoryConfig) { c.Extensions = []string{"a/b"} }, false},
		{"negative timeout", func(c *HistoryConfig) { c.Timeout = -time.Second }, false},
		{"too much concurrency", func(c *HistoryConfig) { c.Concurrency = 1000 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewDefaultConfig().History
			tc.mut(&c)
			err := c.Validate()
			if (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestFullConfig_ValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}

	cfg = NewDefaultConfig()
	cfg.History.Commits = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch history error")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("GH_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  log_level: debug
  http:
    port: 9000
project:
  root: /srv/project
history:
  commits: 8
  extensions: [".go", "md"]
  timeout: 30s
auth:
  mode: token
  token: ${GH_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.Commits != 8 || cfg.History.Timeout != 30*time.Second || len(cfg.History.Extensions) != 2 {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.History.GitBinary != "git" {
		t.Errorf("default git binary lost: %q", cfg.History.GitBinary)
	}
	if cfg.Auth.Token != "s3cret" || cfg.App.HTTP.Port != 9000 || cfg.App.HTTP.Host != "127.0.0.1" {
		t.Errorf("cfg = %+v", cfg)
	}

	sc := cfg.SessionConfig()
	if sc.StartDir != "/srv/project" || sc.Settings.Window != 8 || sc.Timeout != 30*time.Second {
		t.Errorf("session config = %+v", sc)
	}
}

func TestMatchOnce(t *testing.T) {
	dir := testutil.GitRepo(t)
	testutil.Commit(t, dir, "add c", map[string]string{"c.ext": "c"})
	testutil.Commit(t, dir, "add b", map[string]string{"b.ext": "b", "notes.txt": "n"})
	testutil.Commit(t, dir, "fix a", map[string]string{"src/a.ext": "a"})

	cfg := NewDefaultConfig()
	cfg.Project.Root = filepath.Join(dir, "src")
	if err := os.MkdirAll(cfg.Project.Root, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.History.Commits = 2
	cfg.History.Extensions = []string{"ext"}
	ctx := context.Background()

	msg, ok, err := MatchOnce(ctx, cfg, "SRC/A.EXT", testutil.Logger())
	if err != nil || !ok || msg != "fix a" {
		t.Errorf("MatchOnce = %q, %v, %v", msg, ok, err)
	}
	if _, ok, _ := MatchOnce(ctx, cfg, "c.ext", testutil.Logger()); ok {
		t.Error("c.ext is outside the window")
	}
	if _, ok, _ := MatchOnce(ctx, cfg, "notes.txt", testutil.Logger()); ok {
		t.Error("notes.txt is filtered out by the extension allowlist")
	}

	h, commits, err := FetchOnce(ctx, cfg, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if h.Root != dir || len(commits) != 2 {
		t.Errorf("root = %q, commits = %d", h.Root, len(commits))
	}
}

func TestMatchOnce_NoRepository(t *testing.T) {
	dir := t.TempDir()
	if _, err := repo.Locate(dir); !errors.Is(err, apperr.ErrRepositoryNotFound) {
		t.Skip("temp dir is inside a repository")
	}
	cfg := NewDefaultConfig()
	cfg.Project.Root = dir
	if _, _, err := MatchOnce(context.Background(), cfg, "a.ext", testutil.Logger()); !errors.Is(err, apperr.ErrRepositoryNotFound) {
		t.Errorf("err = %v, want ErrRepositoryNotFound", err)
	}
}
