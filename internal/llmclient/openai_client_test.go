package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
)

const chatOK = `{"id":"c1","object":"chat.completion","model":"test-model",
"choices":[{"index":0,"message":{"role":"assistant","content":"Final Score: 0.8"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`

// chatServer answers chat completions, failing the first `failures` calls with status.
func chatServer(t *testing.T, path string, failures int32, status int, captured *map[string]interface{}) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, path, r.URL.Path)
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(chatOK))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIClient_Generate(t *testing.T) {
	var body map[string]interface{}
	srv, calls := chatServer(t, "/chat/completions", 0, 0, &body)
	logger, logs := setupTestLogger(t)

	client, err := NewOpenAIClient(getValidLLMConfig(srv.URL), logger)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "You are a judge.",
		UserPrompt:   "Rate it.",
		Options:      schemas.GenerationOptions{Temperature: 0.7, TopP: 0.95, ForceJSONFormat: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "Final Score: 0.8", resp)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	assert.Equal(t, "test-model", body["model"])
	assert.InDelta(t, 0.7, body["temperature"], 1e-6)
	assert.InDelta(t, 0.95, body["top_p"], 1e-6)
	assert.EqualValues(t, 256, body["max_tokens"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "json_object", body["response_format"].(map[string]interface{})["type"])

	entries := logs.FilterMessage("LLM generation complete").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 16, entries[0].ContextMap()["total_tokens"])
}

func TestOpenAIClient_RetriesTransientErrors(t *testing.T) {
	srv, calls := chatServer(t, "/chat/completions", 1, http.StatusServiceUnavailable, nil)
	logger, _ := setupTestLogger(t)

	client, err := NewOpenAIClient(getValidLLMConfig(srv.URL), logger)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Final Score: 0.8", resp)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestOpenAIClient_PermanentErrorNotRetried(t *testing.T) {
	srv, calls := chatServer(t, "/chat/completions", 5, http.StatusBadRequest, nil)
	logger, _ := setupTestLogger(t)

	client, err := NewOpenAIClient(getValidLLMConfig(srv.URL), logger)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai API error")
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestOllamaClient_UsesCompatibilityPath(t *testing.T) {
	srv, _ := chatServer(t, "/v1/chat/completions", 0, 0, nil)
	logger, _ := setupTestLogger(t)

	cfg := getValidLLMConfig(srv.URL)
	cfg.Provider = config.ProviderOllama
	cfg.APIKey = ""
	client, err := NewClient(cfg, logger)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Final Score: 0.8", resp)
}

func TestNewClient_Providers(t *testing.T) {
	logger, _ := setupTestLogger(t)

	_, err := NewClient(config.LLMModelConfig{Provider: "unknown"}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown or unsupported LLM provider")

	_, err = NewClient(config.LLMModelConfig{Provider: config.ProviderGemini}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Gemini API Key is required")

	c, err := NewClient(config.LLMModelConfig{Provider: config.ProviderMock}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)
}
