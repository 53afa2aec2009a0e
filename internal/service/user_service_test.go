package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oggHeader is enough for content sniffing to report application/ogg.
var oggHeader = append([]byte("OggS\x00"), make([]byte, 64)...)

func newUserFixture(t *testing.T) (*UserService, *memoryUsers, *flakyProvider) {
	t.Helper()
	users := newMemoryUsers()
	require.NoError(t, users.Create(context.Background(), &model.User{Email: "a@example.com", SubscriptionLevel: "free"}))
	provider := &flakyProvider{}
	svc := NewUserService(users, NewStorageServiceWithProvider(provider, 3, time.Millisecond), false)
	return svc, users, provider
}

func TestUserService_UpdateSubscription(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.UpdateSubscription(ctx, 2, 1, "pro")
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	user, err := svc.UpdateSubscription(ctx, 1, 1, "pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", user.SubscriptionLevel)
}

func TestUserService_UploadMedia(t *testing.T) {
	svc, users, provider := newUserFixture(t)
	ctx := context.Background()

	res, err := svc.UploadMedia(ctx, 1, "answer.OGG", oggHeader)
	require.NoError(t, err)
	assert.Equal(t, "application/ogg", res.ContentType)
	assert.Regexp(t, `^https://cdn\.test/media/[0-9a-f-]{36}\.ogg$`, res.URL)
	assert.Nil(t, res.Media)
	assert.Equal(t, []string{res.URL}, res.MediaURLs)
	assert.Equal(t, []string{res.URL}, users.users[1].MediaURLs)
	assert.Len(t, provider.stored, 1)

	_, err = svc.UploadMedia(ctx, 1, "notes.txt", []byte("plain text notes"))
	assert.ErrorIs(t, err, util.ErrInvalidFileType)
}

func TestUserService_UploadMediaProbes(t *testing.T) {
	svc, _, provider := newUserFixture(t)
	svc.ProbeEnabled = true

	var probed string
	svc.probe = func(path string) (*util.MediaInfo, error) {
		probed = path
		_, err := os.Stat(path)
		require.NoError(t, err)
		return &util.MediaInfo{Duration: 4.2, Format: "ogg", HasAudio: true}, nil
	}
	res, err := svc.UploadMedia(context.Background(), 1, "answer.ogg", oggHeader)
	require.NoError(t, err)
	require.NotNil(t, res.Media)
	assert.True(t, res.Media.HasAudio)
	assert.Equal(t, oggHeader, provider.stored[res.URL[len("https://cdn.test/"):]])

	_, err = os.Stat(probed)
	assert.True(t, os.IsNotExist(err))

	svc.probe = func(string) (*util.MediaInfo, error) { return nil, errors.New("ffprobe missing") }
	res, err = svc.UploadMedia(context.Background(), 1, "answer.ogg", oggHeader)
	require.NoError(t, err)
	assert.Nil(t, res.Media)
}
