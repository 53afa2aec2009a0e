package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAIService(t *testing.T, handler http.HandlerFunc) *AIService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewAIService(config.AIConfig{
		BaseURL:        server.URL,
		APIKey:         "sk-test",
		Model:          "gpt-4o-mini",
		ChatModel:      "gpt-4o",
		EmbeddingModel: "text-embedding-3-small",
		MaxRetries:     2,
	})
	svc.retryDelay = time.Millisecond
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
}

func TestAIService_Complete(t *testing.T) {
	tests := []struct {
		name       string
		prompt     dialogue.Prompt
		wantModel  string
		wantFormat bool
		wantTemp   bool
		wantSystem bool
	}{
		{
			name:       "structured fast call",
			prompt:     dialogue.Prompt{Operation: "grade", System: "sys", User: "usr", JSON: true, Temperature: 0.7, Tier: dialogue.TierFast},
			wantModel:  "gpt-4o-mini",
			wantFormat: true,
			wantTemp:   true,
			wantSystem: true,
		},
		{
			name:      "rich plain call",
			prompt:    dialogue.Prompt{Operation: "tutor", User: "usr", Tier: dialogue.TierRich},
			wantModel: "gpt-4o",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

				var req ChatCompletionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, tt.wantModel, req.Model)
				assert.Equal(t, tt.wantFormat, req.ResponseFormat != nil)
				assert.Equal(t, tt.wantTemp, req.Temperature != nil)
				if tt.wantSystem {
					require.Len(t, req.Messages, 2)
					assert.Equal(t, "system", req.Messages[0].Role)
				} else {
					require.Len(t, req.Messages, 1)
				}
				assert.Equal(t, "usr", req.Messages[len(req.Messages)-1].Content)

				writeJSON(w, http.StatusOK, chatReply(`{"ok": true}`))
			})

			got, err := svc.Complete(context.Background(), tt.prompt)
			require.NoError(t, err)
			assert.Equal(t, `{"ok": true}`, got)
		})
	}
}

func TestAIService_CompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "overloaded"})
			return
		}
		writeJSON(w, http.StatusOK, chatReply("готово"))
	})

	got, err := svc.Complete(context.Background(), dialogue.Prompt{Operation: "tutor", User: "?"})
	require.NoError(t, err)
	assert.Equal(t, "готово", got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAIService_CompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad key"})
	})

	_, err := svc.Complete(context.Background(), dialogue.Prompt{Operation: "grade", User: "?"})
	require.Error(t, err)
	assert.True(t, util.IsServiceError(err))
	assert.Contains(t, err.Error(), "response error 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAIService_CompleteGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "slow down"})
	})

	_, err := svc.Complete(context.Background(), dialogue.Prompt{Operation: "grade", User: "?"})
	require.Error(t, err)
	assert.True(t, util.IsServiceError(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAIService_Embed(t *testing.T) {
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{2, 2}},
				{"index": 0, "embedding": []float32{1, 1}},
			},
		})
	})

	vectors, err := svc.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vectors)
}

func TestAIService_EmbedCountMismatch(t *testing.T) {
	var calls atomic.Int32
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{}})
	})

	_, err := svc.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "expected 1 embeddings, got 0")
	assert.Equal(t, int32(1), calls.Load())
}
