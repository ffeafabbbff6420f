// Package storage gives read-only access to files in the repository worktree.
package storage

// Provider reads worktree files for the highlight service.
type Provider interface {
	// Read returns the current content of the file at path. Path may be
	// repository-relative or an absolute path inside the worktree.
	Read(path string) ([]byte, error)
	// Rel turns path into a repository-relative, slash-separated path.
	Rel(path string) (string, error)
}
