package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/betterdocs/dashboard/internal/agent"
	"github.com/betterdocs/dashboard/internal/config"
	"github.com/betterdocs/dashboard/internal/store"
	memorystorage "github.com/betterdocs/dashboard/internal/storage/memory"
	"github.com/betterdocs/dashboard/internal/stream"
)

const upstreamStream = "event: progress\n" +
	"data: {\"progress\":10,\"message\":\"Cloning\"}\n" +
	"\n" +
	"event: done\n" +
	"data: {\"docs\":{\"title\":\"X\"}}\n" +
	"\n"

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Agent: config.AgentConfig{
			BaseURL:                "unused",
			GenerateTimeoutSeconds: 5,
			RefineTimeoutSeconds:   5,
		},
		Auth: config.AuthConfig{IdentityHeader: "X-Owner-Identity"},
	}
}

func newTestServer(t *testing.T, agentHandler http.HandlerFunc) (*Server, *memorystorage.DocsStore) {
	t.Helper()
	upstream := httptest.NewServer(agentHandler)
	t.Cleanup(upstream.Close)

	docs := memorystorage.NewDocsStore()
	agentClient := agent.New(agent.Config{BaseURL: upstream.URL, Logger: zap.NewNop()})
	srv := NewServer(agentClient, docs, HeaderAuth{Header: "X-Owner-Identity"}, testConfig(), zap.NewNop())
	return srv, docs
}

func streamingAgent(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}
}

func generateReq(owner string) *http.Request {
	req := httptest.NewRequest(
		http.MethodPost,
		"/api/generate",
		strings.NewReader(`{"repoUrl":"https://github.com/octocat/better-docs"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-Owner-Identity", owner)
	}
	return req
}

func TestGenerateOwnerStreamAppendsSavedFrame(t *testing.T) {
	t.Parallel()

	srv, docs := newTestServer(t, streamingAgent(upstreamStream))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, generateReq("octocat"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	out := rec.Body.String()
	require.True(t, strings.HasPrefix(out, upstreamStream))
	require.Contains(t, out, "event: saved")

	// The client sees all of it through the incremental consumer.
	c := stream.NewConsumer()
	c.StreamStarted()
	c.Feed(rec.Body.Bytes())
	c.Close()
	require.Equal(t, stream.StateCompleted, c.CurrentState())
	require.JSONEq(t, `{"title":"X"}`, string(c.Result()))
	require.True(t, c.Persisted())

	persisted, err := docs.Get(context.Background(), c.Slug())
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"X"}`, string(persisted.Docs))
}

func TestGenerateAnonymousIsByteIdentical(t *testing.T) {
	t.Parallel()

	srv, docs := newTestServer(t, streamingAgent(upstreamStream))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, generateReq(""))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, upstreamStream, rec.Body.String())

	slug := store.Slug("better-docs", "octocat")
	_, err := docs.Get(context.Background(), slug)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerateNoDoneFrameNoSaved(t *testing.T) {
	t.Parallel()

	partial := "event: progress\ndata: {\"progress\":50,\"message\":\"Parsing\"}\n\n"
	srv, _ := newTestServer(t, streamingAgent(partial))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, generateReq("octocat"))

	require.Equal(t, partial, rec.Body.String())
}

func TestGenerateJSONFallbackAppendsSlug(t *testing.T) {
	t.Parallel()

	srv, docs := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"docs":{"title":"X"},"classification":"library"}`)
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, generateReq("octocat"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "slug")

	var slug string
	require.NoError(t, json.Unmarshal(body["slug"], &slug))
	_, err := docs.Get(context.Background(), slug)
	require.NoError(t, err)
}

func TestGenerateJSONFallbackAnonymousHasNoSlug(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"docs":{"title":"X"}}`)
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, generateReq(""))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotContains(t, body, "slug")
}

func TestGenerateInvalidBody(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, streamingAgent(upstreamStream))
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateMissingRepoURL(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, streamingAgent(upstreamStream))
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateAgentUnreachable(t *testing.T) {
	t.Parallel()

	docs := memorystorage.NewDocsStore()
	agentClient := agent.New(agent.Config{BaseURL: "http://127.0.0.1:1", Logger: zap.NewNop()})
	srv := NewServer(agentClient, docs, HeaderAuth{Header: "X-Owner-Identity"}, testConfig(), zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, generateReq("octocat"))

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRefinePersistsForOwner(t *testing.T) {
	t.Parallel()

	srv, docs := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/refine", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"docs":{"title":"refined"}}`)
	})

	body := `{"prompt":"tighten","currentDocs":{"title":"X"},"repoUrl":"https://github.com/octocat/better-docs","repoName":"better-docs"}`
	req := httptest.NewRequest(http.MethodPost, "/api/refine", strings.NewReader(body))
	req.Header.Set("X-Owner-Identity", "octocat")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp, "slug")

	slug := store.Slug("better-docs", "octocat")
	persisted, err := docs.Get(context.Background(), slug)
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"refined"}`, string(persisted.Docs))
}

func TestRefineMissingFields(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, streamingAgent(""))
	req := httptest.NewRequest(http.MethodPost, "/api/refine", strings.NewReader(`{"prompt":"x"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDoc(t *testing.T) {
	t.Parallel()

	srv, docs := newTestServer(t, streamingAgent(""))
	doc, err := docs.Upsert(context.Background(), "octocat", "url", "better-docs", json.RawMessage(`{"title":"X"}`))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/docs/"+doc.Slug, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto docDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	require.Equal(t, doc.Slug, dto.Slug)
	require.JSONEq(t, `{"title":"X"}`, string(dto.Docs))
}

func TestGetDocNotFound(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, streamingAgent(""))
	req := httptest.NewRequest(http.MethodGet, "/api/docs/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, streamingAgent(""))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRepoNameFromURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "better-docs", repoNameFromURL("https://github.com/octocat/better-docs"))
	require.Equal(t, "better-docs", repoNameFromURL("https://github.com/octocat/better-docs.git"))
	require.Equal(t, "better-docs", repoNameFromURL("https://github.com/octocat/better-docs/"))
	require.Equal(t, "repo", repoNameFromURL(""))
}
