package mcpserver

// UsageGuide explains to LLM consumers what the tools answer and how fresh
// the answers are.
const UsageGuide = `# githighlight Usage Guide

githighlight tracks the most recent commits of the project's git repository
(the *commit window*, 5 commits unless configured otherwise) and tells you
whether a file was changed in that window.

## Tools

- ` + "`" + `match_file` + "`" + ` returns the subject line of the **most recent** commit in the
  window that touched the file, or "not changed recently".
- ` + "`" + `highlight_file` + "`" + ` returns ` + "`" + `{path, start, end, tooltip}` + "`" + `. The range starts at the
  first non-whitespace character of the document and spans up to 5
  characters; offsets are bytes. Whitespace-only documents get no highlight.
- ` + "`" + `recent_commits` + "`" + ` lists the window, most recent first.
- ` + "`" + `refresh_history` + "`" + ` asks for a re-read and returns at once.
- ` + "`" + `cache_status` + "`" + ` shows state (` + "`" + `empty` + "`" + `, ` + "`" + `ready` + "`" + `, ` + "`" + `refreshing` + "`" + `), generation and the
  last refresh error.

## Paths

1. Paths may be relative to the repository root or absolute inside it.
2. Matching ignores case and accepts both ` + "`" + `/` + "`" + ` and ` + "`" + `\` + "`" + ` separators.
3. Paths outside the repository are rejected.

## Freshness

- The window refreshes on its own whenever the repository metadata changes
  (commit, checkout, fetch, rebase).
- When a refresh fails the previous window is kept, so answers may be stale
  but never partial. Check ` + "`" + `cache_status` + "`" + ` for ` + "`" + `last_error` + "`" + `.
- Only files with a configured extension are tracked when an allowlist is set.
`
