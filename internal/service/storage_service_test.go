package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProvider struct {
	failures int
	calls    int
	stored   map[string][]byte
}

func (p *flakyProvider) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	p.calls++
	if p.calls <= p.failures {
		return "", errors.New("connection reset")
	}
	if p.stored == nil {
		p.stored = map[string][]byte{}
	}
	p.stored[name] = data
	return p.GetURL(name), nil
}

func (p *flakyProvider) PutFile(ctx context.Context, name, localPath, contentType string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	return p.Put(ctx, name, data, contentType)
}

func (p *flakyProvider) Delete(context.Context, string) error { return nil }

func (p *flakyProvider) GetURL(name string) string { return "https://cdn.test/" + name }

func TestStorageService_UploadRetries(t *testing.T) {
	provider := &flakyProvider{failures: 2}
	svc := NewStorageServiceWithProvider(provider, 3, time.Millisecond)

	url, err := svc.Upload(context.Background(), "audio/q.ogg", []byte("ogg"), "audio/ogg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/audio/q.ogg", url)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, []byte("ogg"), provider.stored["audio/q.ogg"])
}

func TestStorageService_UploadGivesUp(t *testing.T) {
	provider := &flakyProvider{failures: 5}
	svc := NewStorageServiceWithProvider(provider, 3, time.Millisecond)

	_, err := svc.Upload(context.Background(), "audio/q.ogg", []byte("ogg"), "audio/ogg")
	require.Error(t, err)
	assert.True(t, util.IsServiceError(err))
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, 3, provider.calls)
}

func TestLocalStorageProvider(t *testing.T) {
	dir := t.TempDir()
	provider := &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: dir, PublicBaseURL: "http://api.test/"}}

	url, err := provider.Put(context.Background(), "media/answer.webm", []byte("data"), "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "http://api.test/uploads/media/answer.webm", url)

	data, err := os.ReadFile(filepath.Join(dir, "media", "answer.webm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	require.NoError(t, provider.Delete(context.Background(), "media/answer.webm"))
	_, err = os.Stat(filepath.Join(dir, "media", "answer.webm"))
	assert.True(t, os.IsNotExist(err))
}
