package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/githighlight/internal/apperr"
)

func tempWorktree(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs, dir
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	s, root := tempWorktree(t)
	writeFile(t, root, "src/main.go", "package main\n")

	for _, p := range []string{"src/main.go", `src\main.go`, filepath.Join(root, "src", "main.go")} {
		got, err := s.Read(p)
		if err != nil {
			t.Fatalf("Read(%q): %v", p, err)
		}
		if string(got) != "package main\n" {
			t.Errorf("Read(%q) = %q", p, got)
		}
	}
}

func TestReadTruncatesLargeFiles(t *testing.T) {
	s, root := tempWorktree(t)
	writeFile(t, root, "big.txt", strings.Repeat("x", MaxReadSize+100))

	got, err := s.Read("big.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != MaxReadSize {
		t.Errorf("len = %d, want %d", len(got), MaxReadSize)
	}
}

func TestReadEmptyFile(t *testing.T) {
	s, root := tempWorktree(t)
	writeFile(t, root, "empty.txt", "")

	got, err := s.Read("empty.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %q, want empty", got)
	}
}

func TestReadNotFound(t *testing.T) {
	s, _ := tempWorktree(t)
	_, err := s.Read("nope.txt")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestRel(t *testing.T) {
	s, root := tempWorktree(t)
	cases := []struct {
		in   string
		want string
	}{
		{"a/b.go", "a/b.go"},
		{`a\b.go`, "a/b.go"},
		{"./a/../c.go", "c.go"},
		{"/a.go", "a.go"},
		{`\a.go`, "a.go"},
		{`\\src\main.go`, "src/main.go"},
		{"//x/y.go", "x/y.go"},
		{filepath.Join(root, "x", "y.txt"), "x/y.txt"},
	}
	for _, tc := range cases {
		got, err := s.Rel(tc.in)
		if err != nil {
			t.Errorf("Rel(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Rel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRelAbsoluteOutsideRootIsRepositoryRelative(t *testing.T) {
	s, root := tempWorktree(t)
	outside := filepath.Join(filepath.Dir(root), "other", "file.go")

	got, err := s.Rel(outside)
	if err != nil {
		t.Fatalf("Rel(%q): %v", outside, err)
	}
	want := strings.TrimLeft(filepath.ToSlash(outside), "/")
	if got != want {
		t.Errorf("Rel(%q) = %q, want %q", outside, got, want)
	}
}

func TestReadLeadingSeparator(t *testing.T) {
	s, root := tempWorktree(t)
	writeFile(t, root, "a.go", "package a")

	for _, p := range []string{"/a.go", `\a.go`} {
		got, err := s.Read(p)
		if err != nil {
			t.Fatalf("Read(%q): %v", p, err)
		}
		if string(got) != "package a" {
			t.Errorf("Read(%q) = %q", p, got)
		}
	}
}

func TestRelRejectsOutsidePaths(t *testing.T) {
	s, root := tempWorktree(t)
	bad := []string{
		"",
		"   ",
		"../etc/passwd",
		"a/../../x",
		"/../x",
		`\..\..\x`,
		root,
		"/",
	}
	for _, p := range bad {
		if _, err := s.Rel(p); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("Rel(%q) err = %v, want ErrInvalidPath", p, err)
		}
	}
	if _, err := s.Read("../secret"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("Read traversal err = %v, want ErrInvalidPath", err)
	}
}

func TestNewFSRejectsFile(t *testing.T) {
	_, root := tempWorktree(t)
	writeFile(t, root, "f.txt", "x")
	if _, err := NewFS(filepath.Join(root, "f.txt")); err == nil {
		t.Fatal("expected error for file root")
	}
	if _, err := NewFS(filepath.Join(root, "missing")); err == nil {
		t.Fatal("expected error for missing root")
	}
}
