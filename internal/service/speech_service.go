package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/monitoring"

	"github.com/google/uuid"
	"resty.dev/v3"
)

// Transcriber turns a fetchable audio URL into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Synthesizer speaks text and returns the URL of the stored audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, emotion string) (string, error)
}

// BlobStore is the slice of StorageService the speech adapters need.
type BlobStore interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type DeepgramTranscriber struct {
	httpClient *resty.Client
	model      string
	language   string
}

func NewDeepgramTranscriber(cfg config.SpeechConfig) *DeepgramTranscriber {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.Deepgram.BaseURL, "/"))
	client.SetHeader("Authorization", "Token "+cfg.Deepgram.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	model, language := cfg.Deepgram.Model, cfg.Deepgram.Language
	if model == "" {
		model = "nova-2"
	}
	if language == "" {
		language = "ru"
	}
	return &DeepgramTranscriber{httpClient: client, model: model, language: language}
}

func (t *DeepgramTranscriber) Close() error {
	return t.httpClient.Close()
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe returns "" when the provider heard nothing.
func (t *DeepgramTranscriber) Transcribe(ctx context.Context, audioURL string) (text string, err error) {
	defer monitoring.ObserveExternal("deepgram", "transcribe", time.Now(), &err)

	resp, err := t.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"model":        t.model,
			"language":     t.language,
			"smart_format": "true",
		}).
		SetBody(map[string]string{"url": audioURL}).
		SetResult(&deepgramResponse{}).
		Post("/v1/listen")
	if err != nil {
		return "", util.NewServiceError("deepgram", "transcribe", fmt.Errorf("httpClient.Post > %w", err))
	}
	if resp.IsError() {
		return "", util.NewServiceError("deepgram", "transcribe",
			fmt.Errorf("response error %d: %s", resp.StatusCode(), resp.String()))
	}

	body := resp.Result().(*deepgramResponse)
	if len(body.Results.Channels) == 0 || len(body.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(body.Results.Channels[0].Alternatives[0].Transcript), nil
}

// SpeechKitSynthesizer uses Yandex SpeechKit v1 and stores the result
// through a BlobStore.
type SpeechKitSynthesizer struct {
	httpClient *resty.Client
	store      BlobStore
	folderID   string
	lang       string
	format     string
}

func NewSpeechKitSynthesizer(cfg config.SpeechConfig, store BlobStore) *SpeechKitSynthesizer {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.SpeechKit.BaseURL, "/"))
	client.SetHeader("Authorization", "Bearer "+cfg.SpeechKit.IAMToken)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	lang, format := cfg.SpeechKit.Lang, cfg.SpeechKit.Format
	if lang == "" {
		lang = "ru-RU"
	}
	if format == "" {
		format = "oggopus"
	}
	return &SpeechKitSynthesizer{
		httpClient: client,
		store:      store,
		folderID:   cfg.SpeechKit.FolderID,
		lang:       lang,
		format:     format,
	}
}

func (s *SpeechKitSynthesizer) Close() error {
	return s.httpClient.Close()
}

// speechKitEmotion maps dialogue emotions onto SpeechKit's vocabulary.
func speechKitEmotion(emotion string) string {
	switch emotion {
	case dialogue.EmotionPositive:
		return "good"
	case dialogue.EmotionNegative:
		return "evil"
	default:
		return "neutral"
	}
}

func audioFormat(format string) (ext, contentType string) {
	switch format {
	case "mp3":
		return "mp3", "audio/mpeg"
	case "lpcm":
		return "pcm", "audio/L16"
	default:
		return "ogg", "audio/ogg"
	}
}

func (s *SpeechKitSynthesizer) Synthesize(ctx context.Context, text, voice, emotion string) (url string, err error) {
	defer monitoring.ObserveExternal("speechkit", "synthesize", time.Now(), &err)

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"text":     text,
			"lang":     s.lang,
			"voice":    voice,
			"emotion":  speechKitEmotion(emotion),
			"format":   s.format,
			"folderId": s.folderID,
		}).
		Post("/speech/v1/tts:synthesize")
	if err != nil {
		return "", util.NewServiceError("speechkit", "synthesize", fmt.Errorf("httpClient.Post > %w", err))
	}
	if resp.IsError() {
		return "", util.NewServiceError("speechkit", "synthesize",
			fmt.Errorf("response error %d: %s", resp.StatusCode(), resp.String()))
	}
	audio := resp.Bytes()
	if len(audio) == 0 {
		return "", util.NewServiceError("speechkit", "synthesize", fmt.Errorf("empty audio"))
	}

	ext, contentType := audioFormat(s.format)
	name := path.Join(util.DirAudio, uuid.NewString()+"."+ext)
	return s.store.Upload(ctx, name, audio, contentType)
}
