package api

import (
	"github.com/starford/githighlight/internal/highlight"
	"github.com/starford/githighlight/internal/models"
	"github.com/starford/githighlight/internal/session"
)

// HighlightRequest is the request body for POST /api/highlight.
// When Text is omitted the file is read from the worktree.
type HighlightRequest struct {
	Path string  `json:"path" example:"src/main.go" validate:"required"`
	Text *string `json:"text,omitempty" example:"package main"`
}

// HighlightResult is the annotation for one document (aliased from the domain layer).
type HighlightResult = highlight.Result

// MatchResponse is the response for GET /api/match.
type MatchResponse struct {
	Path    string `json:"path" example:"src/main.go" validate:"required"`
	Matched bool   `json:"matched" validate:"required"`
	Tooltip string `json:"tooltip,omitempty" example:"fix parser"`
}

// CommitsResponse is the current commit window (aliased from the domain layer).
type CommitsResponse = models.Snapshot

// StatusResponse is the session status (aliased from the domain layer).
type StatusResponse = session.Status

// RefreshResponse acknowledges a refresh request.
type RefreshResponse struct {
	Status string `json:"status" example:"accepted" validate:"required"`
}
