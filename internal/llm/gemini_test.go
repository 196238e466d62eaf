package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The http transport parks idle connections briefly after a test server
		// shuts down.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		// opencensus (a transitive genai dependency) starts a worker goroutine
		// from package init that never exits.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func sseChunk(text string) string {
	return fmt.Sprintf(`data: {"candidates":[{"content":{"parts":[{"text":%q}],"role":"model"}}]}`+"\n\n", text)
}

func newTestClient(baseURL string) *GeminiClient {
	cfg := DefaultConfig("test-key")
	cfg.BaseURL = baseURL
	cfg.Model = "test-model"
	cfg.Timeout = 5 * time.Second
	cfg.EnableSearch = false
	return NewGeminiClientWithConfig(cfg)
}

func collect(t *testing.T, deltas <-chan Delta, errs <-chan error) ([]Delta, error) {
	t.Helper()
	var out []Delta
	for d := range deltas {
		out = append(out, d)
	}
	return out, <-errs
}

func TestStreamTurnDeliversDeltasInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "test-model")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("[Task]\nWri"))
		fmt.Fprint(w, sseChunk("te a poem."))
		fmt.Fprint(w, sseChunk("\n\n[Draft]\ndone"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.httpClient.CloseIdleConnections()

	deltas, errs := client.StreamTurn(context.Background(), nil, []Part{{Text: "go"}})
	got, err := collect(t, deltas, errs)
	require.NoError(t, err)

	var full strings.Builder
	for _, d := range got {
		full.WriteString(d.Text)
	}
	assert.Equal(t, "[Task]\nWrite a poem.\n\n[Draft]\ndone", full.String())
}

func TestStreamTurnExtractsCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"grounded"}],"role":"model"},"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://example.com/a","title":"Example A"}},{"web":{"uri":"","title":"dropped"}}]}}]}`+"\n\n")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.httpClient.CloseIdleConnections()

	deltas, errs := client.StreamTurn(context.Background(), nil, []Part{{Text: "search"}})
	got, err := collect(t, deltas, errs)
	require.NoError(t, err)

	require.Len(t, got, 1)
	require.Len(t, got[0].Citations, 1, "empty URIs are dropped")
	assert.Equal(t, Citation{URI: "https://example.com/a", Title: "Example A"}, got[0].Citations[0])
}

func TestStreamTurnHistoryAndAttachmentOnWire(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		body = string(buf)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("ok"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.httpClient.CloseIdleConnections()

	history := []Turn{
		{Role: RoleUser, Parts: []Part{{Text: "directive"}}},
		{Role: RoleModel, Parts: []Part{{Text: "[Acknowledged]\nReady."}}},
	}
	parts := []Part{
		{Text: "review this"},
		{MIMEType: "text/plain", Data: []byte("attachment bytes")},
	}

	deltas, errs := client.StreamTurn(context.Background(), history, parts)
	_, err := collect(t, deltas, errs)
	require.NoError(t, err)

	assert.Contains(t, body, `"directive"`)
	assert.Contains(t, body, `"role":"model"`)
	assert.Contains(t, body, `"mimeType":"text/plain"`)
}

func TestStreamTurnAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.httpClient.CloseIdleConnections()

	deltas, errs := client.StreamTurn(context.Background(), nil, []Part{{Text: "x"}})
	got, err := collect(t, deltas, errs)
	assert.Empty(t, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestStreamTurnMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("partial"))
		fmt.Fprint(w, `data: {"error":{"code":500,"message":"backend blew up"}}`+"\n\n")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	defer client.httpClient.CloseIdleConnections()

	deltas, errs := client.StreamTurn(context.Background(), nil, []Part{{Text: "x"}})
	got, err := collect(t, deltas, errs)
	require.Len(t, got, 1, "deltas before the failure still arrive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend blew up")
}

func TestStreamTurnMissingAPIKey(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.EnableSearch = false
	client := NewGeminiClientWithConfig(cfg)

	deltas, errs := client.StreamTurn(context.Background(), nil, []Part{{Text: "x"}})
	got, err := collect(t, deltas, errs)
	assert.Empty(t, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestStreamTurnContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("first"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(srv.URL)
	defer client.httpClient.CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	deltas, errs := client.StreamTurn(ctx, nil, []Part{{Text: "x"}})

	// Wait for the first delta, then cancel mid-stream.
	<-deltas
	cancel()

	for range deltas {
	}
	err := <-errs
	require.Error(t, err)
}
