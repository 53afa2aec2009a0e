package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"
	"oral_exam_backend/pkg/monitoring"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// AIService is the OpenAI-compatible reasoning oracle and embedder.
type AIService struct {
	httpClient     *resty.Client
	model          string
	chatModel      string
	embeddingModel string
	maxRetries     uint
	retryDelay     time.Duration
}

func NewAIService(cfg config.AIConfig) *AIService {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &AIService{
		httpClient:     client,
		model:          cfg.Model,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     500 * time.Millisecond,
	}
}

func (s *AIService) Close() error {
	return s.httpClient.Close()
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message      AIChatMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type EmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// apiError is a non-2xx reply from the provider.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("response error %d: %s", e.Status, e.Body)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

func (s *AIService) withRetry(ctx context.Context, op string, call func() error) error {
	return retry.Do(
		func() error {
			err := call()
			if err != nil && !isRetryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.maxRetries+1),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Log.Warn("Retrying AI call", zap.String("operation", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

// Complete implements dialogue.Reasoner.
func (s *AIService) Complete(ctx context.Context, prompt dialogue.Prompt) (content string, err error) {
	defer monitoring.ObserveExternal("openai", prompt.Operation, time.Now(), &err)

	req := ChatCompletionRequest{Model: s.model}
	if prompt.Tier == dialogue.TierRich {
		req.Model = s.chatModel
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, AIChatMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, AIChatMessage{Role: "user", Content: prompt.User})
	if prompt.Temperature > 0 {
		t := prompt.Temperature
		req.Temperature = &t
	}
	if prompt.JSON {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	err = s.withRetry(ctx, prompt.Operation, func() error {
		var callErr error
		content, callErr = s.chat(ctx, req)
		return callErr
	})
	if err != nil {
		return "", util.NewServiceError("openai", prompt.Operation, err)
	}
	return content, nil
}

func (s *AIService) chat(ctx context.Context, req ChatCompletionRequest) (string, error) {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&ChatCompletionResponse{}).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("httpClient.Post > %w", err)
	}
	if resp.IsError() {
		return "", &apiError{Status: resp.StatusCode(), Body: resp.String()}
	}

	body := resp.Result().(*ChatCompletionResponse)
	if body == nil || len(body.Choices) == 0 {
		return "", fmt.Errorf("empty response body or choices: %s", resp.String())
	}
	return body.Choices[0].Message.Content, nil
}

// Embed implements retrieval.Embedder.
func (s *AIService) Embed(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	defer monitoring.ObserveExternal("openai", "embed", time.Now(), &err)

	err = s.withRetry(ctx, "embed", func() error {
		resp, err := s.httpClient.R().
			SetContext(ctx).
			SetBody(EmbeddingRequest{Model: s.embeddingModel, Input: texts}).
			SetResult(&EmbeddingResponse{}).
			Post("/embeddings")
		if err != nil {
			return fmt.Errorf("httpClient.Post > %w", err)
		}
		if resp.IsError() {
			return &apiError{Status: resp.StatusCode(), Body: resp.String()}
		}

		body := resp.Result().(*EmbeddingResponse)
		if len(body.Data) != len(texts) {
			return retry.Unrecoverable(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(body.Data)))
		}
		sort.Slice(body.Data, func(i, j int) bool { return body.Data[i].Index < body.Data[j].Index })
		vectors = make([][]float32, len(body.Data))
		for i, d := range body.Data {
			vectors[i] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, util.NewServiceError("openai", "embed", err)
	}
	return vectors, nil
}
