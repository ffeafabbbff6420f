// Package models defines the domain types for githighlight.
package models

import "time"

// CommitRecord is one commit of the window. ChangedFiles are repository
// relative, slash separated and already filtered to the extension allowlist.
// A record is never mutated after the fetcher builds it.
type CommitRecord struct {
	Hash         string   `json:"hash"`
	Message      string   `json:"message"`
	ChangedFiles []string `json:"changed_files"`
}

// Snapshot is the published view of the commit window, most recent first.
// Once published it is only ever replaced, never modified.
type Snapshot struct {
	Commits     []CommitRecord `json:"commits"`
	Generation  uint64         `json:"generation"`
	Fingerprint string         `json:"fingerprint"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

var empty = &Snapshot{Commits: []CommitRecord{}}

// EmptySnapshot returns the shared snapshot served before the first refresh.
func EmptySnapshot() *Snapshot {
	return empty
}

// IsEmpty reports whether the snapshot holds no commits.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Commits) == 0
}
