package service

import (
	"context"
	"testing"

	"oral_exam_backend/internal/config"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"question":`), genai.Text(` "Что такое ток?"}`)}},
		}},
	}
	got, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"question": "Что такое ток?"}`, got)

	_, err = responseText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
	_, err = responseText(nil)
	assert.Error(t, err)
}

func TestNewGeminiServiceRequiresKey(t *testing.T) {
	_, err := NewGeminiService(context.Background(), config.AIConfig{Provider: "gemini"})
	assert.ErrorContains(t, err, "gemini_api_key")
}
