package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/betterdocs/dashboard/internal/agent"
	"github.com/betterdocs/dashboard/internal/relay"
	"github.com/betterdocs/dashboard/internal/store"
)

type generateRequest struct {
	RepoURL   string `json:"repoUrl"`
	DocType   string `json:"docType,omitempty"`
	AuthToken string `json:"authToken,omitempty"`
}

type refineRequest struct {
	Prompt      string          `json:"prompt"`
	CurrentDocs json.RawMessage `json:"currentDocs"`
	RepoURL     string          `json:"repoUrl"`
	RepoName    string          `json:"repoName"`
}

// generate handles POST /api/generate. When the agent answers with an event
// stream the response is relayed frame-for-frame; otherwise the JSON body is
// mirrored, with a slug appended if persistence occurred.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RepoURL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "repoUrl is required")
		return
	}
	owner := s.auth.Identify(r)
	repoName := repoNameFromURL(req.RepoURL)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.GenerateTimeout())
	defer cancel()

	resp, err := s.agent.Generate(ctx, agent.GenerateRequest{
		RepoURL:   req.RepoURL,
		DocType:   req.DocType,
		AuthToken: req.AuthToken,
	})
	if err != nil {
		s.logger.Error("generation agent unreachable", zap.Error(err))
		writeError(s.logger, w, http.StatusBadGateway, "generation service unavailable")
		return
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Warn("close agent response body", zap.Error(cerr))
		}
	}()

	if !agent.IsEventStream(resp) {
		s.mirrorJSON(r.Context(), w, resp, owner, req.RepoURL, repoName)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sess := relay.Session{Owner: owner, RepoURL: req.RepoURL, RepoName: repoName}
	if err := s.relay.Run(ctx, resp.Body, w, sess); err != nil {
		// Headers are already on the wire; nothing more can reach the client.
		s.logger.Warn("relay ended early",
			zap.String("repo", repoName),
			zap.Error(err),
		)
	}
}

// refine handles POST /api/refine: a short non-streaming call mirroring the
// agent's response, persisting the refined docs for owners.
func (s *Server) refine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Prompt == "" || len(req.CurrentDocs) == 0 || req.RepoName == "" {
		writeError(s.logger, w, http.StatusBadRequest, "prompt, currentDocs, and repoName are required")
		return
	}
	owner := s.auth.Identify(r)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RefineTimeout())
	defer cancel()

	raw, err := s.agent.Refine(ctx, agent.RefineRequest{
		Prompt:      req.Prompt,
		CurrentDocs: req.CurrentDocs,
		RepoName:    req.RepoName,
	})
	if err != nil {
		s.logger.Error("refine call failed", zap.Error(err))
		writeError(s.logger, w, http.StatusBadGateway, "refinement failed")
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Error("refine response is not a JSON object", zap.Error(err))
		writeError(s.logger, w, http.StatusBadGateway, "unexpected refinement response")
		return
	}
	s.persistInto(r.Context(), payload, owner, req.RepoURL, req.RepoName)
	writeJSON(s.logger, w, http.StatusOK, payload)
}

// getDoc handles GET /api/docs/{slug}.
func (s *Server) getDoc(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		writeError(s.logger, w, http.StatusBadRequest, "slug is required")
		return
	}
	doc, err := s.docs.Get(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "doc not found")
			return
		}
		s.logger.Error("load doc failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load doc")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, toDocDTO(doc))
}

// mirrorJSON relays the agent's non-streaming response as ordinary JSON,
// appending the slug when persistence occurred.
func (s *Server) mirrorJSON(
	ctx context.Context,
	w http.ResponseWriter,
	resp *http.Response,
	owner, repoURL, repoName string,
) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Error("read agent response failed", zap.Error(err))
		writeError(s.logger, w, http.StatusBadGateway, "generation service unavailable")
		return
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if _, werr := w.Write(body); werr != nil {
			s.logger.Error("mirror agent response failed", zap.Error(werr))
		}
		return
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.persistInto(ctx, payload, owner, repoURL, repoName)
	}
	writeJSON(s.logger, w, resp.StatusCode, payload)
}

// persistInto upserts payload["docs"] for owners and adds the slug to the
// payload on success. Persistence failures are logged, never surfaced: the
// generated content is still delivered.
func (s *Server) persistInto(
	ctx context.Context,
	payload map[string]json.RawMessage,
	owner, repoURL, repoName string,
) {
	if owner == "" || s.docs == nil {
		return
	}
	docs, ok := payload["docs"]
	if !ok || len(docs) == 0 || string(docs) == "null" {
		return
	}
	doc, err := s.docs.Upsert(ctx, owner, repoURL, repoName, docs)
	if err != nil {
		s.logger.Error("persist docs failed",
			zap.String("repo", repoName),
			zap.Error(err),
		)
		return
	}
	slugJSON, err := json.Marshal(doc.Slug)
	if err != nil {
		return
	}
	payload["slug"] = slugJSON
}

func toDocDTO(doc store.PersistedDoc) docDTO {
	return docDTO{
		Slug:      doc.Slug,
		RepoURL:   doc.RepoURL,
		RepoName:  doc.RepoName,
		Docs:      doc.Docs,
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

type docDTO struct {
	Slug      string          `json:"slug"`
	RepoURL   string          `json:"repoUrl"`
	RepoName  string          `json:"repoName"`
	Docs      json.RawMessage `json:"docs"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// repoNameFromURL extracts the trailing path segment, minus any .git suffix.
func repoNameFromURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return "repo"
	}
	return trimmed
}
