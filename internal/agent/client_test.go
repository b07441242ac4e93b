package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateRequestsEventStream(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/generate", r.URL.Path)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "https://github.com/octocat/better-docs", req.RepoURL)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: progress\ndata: {\"progress\":10,\"message\":\"Cloning\"}\n\n")
	}))
	defer upstream.Close()

	client := New(Config{BaseURL: upstream.URL, Logger: zap.NewNop()})
	resp, err := client.Generate(context.Background(), GenerateRequest{
		RepoURL: "https://github.com/octocat/better-docs",
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	require.True(t, IsEventStream(resp))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "event: progress")
}

func TestGenerateRequiresRepoURL(t *testing.T) {
	t.Parallel()

	client := New(Config{BaseURL: "http://localhost:0"})
	_, err := client.Generate(context.Background(), GenerateRequest{})
	require.Error(t, err)
}

func TestRefineReturnsRawObject(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/refine", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"docs":{"title":"refined"}}`)
	}))
	defer upstream.Close()

	client := New(Config{BaseURL: upstream.URL})
	raw, err := client.Refine(context.Background(), RefineRequest{
		Prompt:      "tighten the intro",
		CurrentDocs: json.RawMessage(`{"title":"X"}`),
		RepoName:    "better-docs",
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"docs":{"title":"refined"}}`, string(raw))
}

func TestRefineNonSuccessStatus(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	client := New(Config{BaseURL: upstream.URL})
	_, err := client.Refine(context.Background(), RefineRequest{
		Prompt:      "x",
		CurrentDocs: json.RawMessage(`{}`),
		RepoName:    "r",
	})
	require.Error(t, err)
}

func TestIsEventStreamFalseForJSON(t *testing.T) {
	t.Parallel()

	resp := &http.Response{Header: http.Header{"Content-Type": {"application/json"}}}
	require.False(t, IsEventStream(resp))
}
