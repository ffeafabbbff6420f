// Package parser turns git plumbing output into commit log entries and
// changed-file lists.
package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldSep separates the hash from the subject in a log line. git emits it
// for the %x1f placeholder; commit subjects do not contain it in practice.
const FieldSep = "\x1f"

// LogFormat is the --pretty format whose output ParseLog understands.
const LogFormat = "%H%x1f%s"

var hashRe = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// LogEntry is one line of git log output.
type LogEntry struct {
	Hash    string
	Message string
}

// ParseLog parses `git log --pretty=format:` + LogFormat output. Lines are
// split on the first separator only, so any stray separator inside a message
// stays part of the message instead of shifting fields.
func ParseLog(out string) ([]LogEntry, error) {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	entries := make([]LogEntry, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		hash, msg, ok := strings.Cut(line, FieldSep)
		if !ok {
			return nil, fmt.Errorf("parser: log line %d: missing field separator", i+1)
		}
		hash = strings.TrimSpace(hash)
		if !hashRe.MatchString(hash) {
			return nil, fmt.Errorf("parser: log line %d: invalid commit hash %q", i+1, hash)
		}
		entries = append(entries, LogEntry{Hash: hash, Message: msg})
	}
	return entries, nil
}

// ParseNameOnly parses `git diff-tree -z --name-only` output into
// repository-relative slash paths. Empty fields are skipped.
func ParseNameOnly(out string) []string {
	fields := strings.Split(out, "\x00")
	files := make([]string, 0, len(fields))
	for _, f := range fields {
		f = NormalizeSeparators(strings.TrimRight(f, "\r\n"))
		if f == "" {
			continue
		}
		files = append(files, f)
	}
	return files
}

// NormalizeSeparators rewrites backslashes to forward slashes and strips
// leading separators. Case is preserved.
func NormalizeSeparators(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimLeft(p, "/")
}
