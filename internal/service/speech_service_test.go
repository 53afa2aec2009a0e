package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepgramTranscriber_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))
		assert.Equal(t, "ru", r.URL.Query().Get("language"))
		assert.Equal(t, "true", r.URL.Query().Get("smart_format"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://cdn.test/media/a.webm", body["url"])

		writeJSON(w, http.StatusOK, map[string]any{
			"results": map[string]any{"channels": []any{map[string]any{
				"alternatives": []any{map[string]any{"transcript": " Сила равна массе на ускорение. ", "confidence": 0.98}},
			}}},
		})
	}))
	defer server.Close()

	tr := NewDeepgramTranscriber(config.SpeechConfig{Deepgram: config.DeepgramConfig{BaseURL: server.URL, APIKey: "dg-key"}})
	defer tr.Close()

	text, err := tr.Transcribe(context.Background(), "https://cdn.test/media/a.webm")
	require.NoError(t, err)
	assert.Equal(t, "Сила равна массе на ускорение.", text)
}

func TestDeepgramTranscriber_Errors(t *testing.T) {
	t.Run("provider failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"err_msg": "could not fetch url"})
		}))
		defer server.Close()

		tr := NewDeepgramTranscriber(config.SpeechConfig{Deepgram: config.DeepgramConfig{BaseURL: server.URL}})
		_, err := tr.Transcribe(context.Background(), "https://cdn.test/missing.webm")
		require.Error(t, err)
		assert.True(t, util.IsServiceError(err))
	})

	t.Run("silence", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"results": map[string]any{"channels": []any{}}})
		}))
		defer server.Close()

		tr := NewDeepgramTranscriber(config.SpeechConfig{Deepgram: config.DeepgramConfig{BaseURL: server.URL}})
		text, err := tr.Transcribe(context.Background(), "https://cdn.test/silence.webm")
		require.NoError(t, err)
		assert.Empty(t, text)
	})
}

func TestSpeechKitSynthesizer_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speech/v1/tts:synthesize", r.URL.Path)
		assert.Equal(t, "Bearer iam", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Здравствуйте", r.PostForm.Get("text"))
		assert.Equal(t, dialogue.VoiceJane, r.PostForm.Get("voice"))
		assert.Equal(t, "good", r.PostForm.Get("emotion"))
		assert.Equal(t, "oggopus", r.PostForm.Get("format"))
		assert.Equal(t, "folder", r.PostForm.Get("folderId"))
		assert.Equal(t, "ru-RU", r.PostForm.Get("lang"))

		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write([]byte("OggS-audio"))
	}))
	defer server.Close()

	store := &flakyProvider{}
	synth := NewSpeechKitSynthesizer(config.SpeechConfig{SpeechKit: config.SpeechKitConfig{
		BaseURL: server.URL, IAMToken: "iam", FolderID: "folder",
	}}, NewStorageServiceWithProvider(store, 1, 0))
	defer synth.Close()

	url, err := synth.Synthesize(context.Background(), "Здравствуйте", dialogue.VoiceJane, dialogue.EmotionPositive)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://cdn.test/audio/"))
	assert.True(t, strings.HasSuffix(url, ".ogg"))
	require.Len(t, store.stored, 1)
	for _, data := range store.stored {
		assert.Equal(t, []byte("OggS-audio"), data)
	}
}

func TestSpeechKitSynthesizer_FailureStoresNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := &flakyProvider{}
	synth := NewSpeechKitSynthesizer(config.SpeechConfig{SpeechKit: config.SpeechKitConfig{BaseURL: server.URL}},
		NewStorageServiceWithProvider(store, 1, 0))

	_, err := synth.Synthesize(context.Background(), "текст", dialogue.VoiceZahar, dialogue.EmotionNeutral)
	require.Error(t, err)
	assert.True(t, util.IsServiceError(err))
	assert.Zero(t, store.calls)
}

func TestSpeechKitEmotion(t *testing.T) {
	assert.Equal(t, "good", speechKitEmotion(dialogue.EmotionPositive))
	assert.Equal(t, "evil", speechKitEmotion(dialogue.EmotionNegative))
	assert.Equal(t, "neutral", speechKitEmotion(dialogue.EmotionNeutral))
	assert.Equal(t, "neutral", speechKitEmotion("sarcastic"))
}
