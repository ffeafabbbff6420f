package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/githighlight/internal/apperr"
	"github.com/starford/githighlight/internal/highlight"
)

// Handler holds API route handlers.
type Handler struct {
	svc *highlight.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *highlight.Service) *Handler {
	return &Handler{svc: svc}
}

// writeQueryError maps domain errors from path queries onto HTTP statuses.
func writeQueryError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrSessionInactive):
		writeError(w, http.StatusServiceUnavailable, "no repository")
	default:
		slog.Error("api: query failed", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Status handles GET /api/status.
//
//	@Summary		Session and cache status
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Commits handles GET /api/commits.
//
//	@Summary		Current commit window
//	@Tags			commits
//	@Produce		json
//	@Param			If-None-Match	header	string	false	"Snapshot fingerprint from a previous response"
//	@Success		200	{object}	CommitsResponse
//	@Success		304	"Snapshot unchanged"
//	@Security		BearerAuth
//	@Router			/commits [get]
func (h *Handler) Commits(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Commits(r.Context())
	if snap.Fingerprint != "" {
		etag := `"` + snap.Fingerprint + `"`
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && strings.Trim(match, `"`) == snap.Fingerprint {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

// Match handles GET /api/match.
//
//	@Summary		Was this file touched in the commit window
//	@Tags			match
//	@Produce		json
//	@Param			path	query		string	true	"File path, repository-relative or absolute"
//	@Success		200		{object}	MatchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/match [get]
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'path' is required")
		return
	}
	rel, err := h.svc.Rel(path)
	if err != nil {
		writeQueryError(w, path, err)
		return
	}
	tooltip, ok, err := h.svc.Match(r.Context(), rel)
	if err != nil {
		writeQueryError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, MatchResponse{Path: rel, Matched: ok, Tooltip: tooltip})
}

// Highlight handles POST /api/highlight.
//
//	@Summary		Highlight range and tooltip for a document
//	@Tags			highlight
//	@Accept			json
//	@Produce		json
//	@Param			body	body		HighlightRequest	true	"Document to highlight"
//	@Success		200		{object}	HighlightResult
//	@Success		204		"Nothing to highlight"
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlight [post]
func (h *Handler) Highlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	res, err := h.svc.Highlight(r.Context(), req.Path, req.Text)
	if err != nil {
		writeQueryError(w, req.Path, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Request a background refresh of the commit window
//	@Tags			commits
//	@Produce		json
//	@Success		202	{object}	RefreshResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		writeQueryError(w, "", err)
		return
	}
	writeJSON(w, http.StatusAccepted, RefreshResponse{Status: "accepted"})
}

// Ready handles GET /health/ready. The service is ready once the first
// refresh attempt has finished, or immediately when there is no repository.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status(r.Context())
	if st.Active && st.Cache.Fetches == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "warming"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Live handles GET /health/live.
func Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
