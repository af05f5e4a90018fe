package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unillm/unillm"
	"github.com/unillm/unillm/internal/backend"
	"github.com/unillm/unillm/pkg/types"
)

func newTestServer(t *testing.T, turns ...backend.Turn) *httptest.Server {
	t.Helper()

	settings := types.DefaultSettings()
	settings.FallbackOrder = []string{"anthropic"}

	client, err := unillm.New(context.Background(),
		unillm.WithSettings(settings),
		unillm.WithBackend(backend.NewScripted("anthropic", turns...), 0),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(New(client, "127.0.0.1:0").Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAskEndpoint(t *testing.T) {
	ts := newTestServer(t, backend.Turn{Content: "served answer"})

	resp := postJSON(t, ts.URL+"/v1/ask", map[string]any{
		"prompt": "hello",
		"model":  "@fast",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.AIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "served answer", out.Content)
	assert.Equal(t, "anthropic", out.Backend)
}

func TestAskValidation(t *testing.T) {
	ts := newTestServer(t, backend.Turn{Content: "x"})

	resp := postJSON(t, ts.URL+"/v1/ask", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "bad_request", body.Error.Type)
}

func TestAskErrorMapping(t *testing.T) {
	ts := newTestServer(t, backend.Turn{Content: "x"})

	// Unknown alias is a config error: HTTP 400 with the taxonomy type.
	resp := postJSON(t, ts.URL+"/v1/ask", map[string]any{
		"prompt": "hello",
		"model":  "@no-such-alias",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "config", body.Error.Type)
	assert.Contains(t, body.Error.Message, "no-such-alias")
}

func TestStreamEndpoint(t *testing.T) {
	ts := newTestServer(t, backend.Turn{Content: "event stream body", ChunkSize: 6})

	resp := postJSON(t, ts.URL+"/v1/stream", map[string]any{
		"prompt": "hello",
		"model":  "@fast",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var deltas []string
	sawDone := false
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "delta":
				var d struct {
					Content string `json:"content"`
				}
				require.NoError(t, json.Unmarshal([]byte(data), &d))
				deltas = append(deltas, d.Content)
			case "done":
				var final types.AIResponse
				require.NoError(t, json.Unmarshal([]byte(data), &final))
				assert.Equal(t, "event stream body", final.Content)
				sawDone = true
			case "error":
				t.Fatalf("unexpected error event: %s", data)
			}
		}
	}

	assert.True(t, sawDone)
	assert.Equal(t, "event stream body", strings.Join(deltas, ""))
}

func TestModelsEndpoint(t *testing.T) {
	ts := newTestServer(t, backend.Turn{Content: "x"})

	resp, err := http.Get(ts.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Models  []types.ModelSpec `json:"models"`
		Aliases map[string]string `json:"aliases"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Models)
	assert.Equal(t, "claude-3-5-haiku-20241022", body.Aliases["fast"])
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, backend.Turn{Content: "x"})

	resp, err := http.Get(ts.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Backends map[string]bool `json:"backends"`
		Tools    []string        `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]bool{"anthropic": true}, body.Backends)
	assert.Contains(t, body.Tools, "web_fetch")
}
