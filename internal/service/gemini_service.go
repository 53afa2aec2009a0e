package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/monitoring"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiService is a dialogue.Reasoner backed by Google's Gemini models.
// Both model tiers map to the same configured model.
type GeminiService struct {
	client *genai.Client
	model  string
}

func NewGeminiService(ctx context.Context, cfg config.AIConfig) (*GeminiService, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("ai.gemini_api_key is required for the gemini provider")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	model := cfg.GeminiModel
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiService{client: client, model: model}, nil
}

func (s *GeminiService) Close() error {
	return s.client.Close()
}

func (s *GeminiService) Complete(ctx context.Context, prompt dialogue.Prompt) (content string, err error) {
	defer monitoring.ObserveExternal("gemini", prompt.Operation, time.Now(), &err)

	model := s.client.GenerativeModel(s.model)
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}
	if prompt.Temperature > 0 {
		model.SetTemperature(prompt.Temperature)
	}
	if prompt.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return "", util.NewServiceError("gemini", prompt.Operation, err)
	}
	content, err = responseText(resp)
	if err != nil {
		return "", util.NewServiceError("gemini", prompt.Operation, err)
	}
	return content, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response from Gemini")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}
