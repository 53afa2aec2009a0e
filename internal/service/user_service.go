package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"

	"go.uber.org/zap"
)

// UserService handles profile changes and user uploads.
type UserService struct {
	UserRepo     UserStore
	Storage      *StorageService
	ProbeEnabled bool
	probe        func(path string) (*util.MediaInfo, error)
}

func NewUserService(userRepo UserStore, storage *StorageService, probeEnabled bool) *UserService {
	return &UserService{
		UserRepo:     userRepo,
		Storage:      storage,
		ProbeEnabled: probeEnabled,
		probe:        util.ProbeMedia,
	}
}

// UploadResult describes a stored media file.
type UploadResult struct {
	URL         string          `json:"url"`
	ContentType string          `json:"content_type"`
	Media       *util.MediaInfo `json:"media,omitempty"`
	MediaURLs   []string        `json:"media_urls"`
}

// UpdateSubscription changes the plan of the caller's own account.
func (s *UserService) UpdateSubscription(ctx context.Context, actorID, userID uint, level string) (*model.User, error) {
	if actorID != userID {
		return nil, util.ErrPermissionDenied
	}
	if err := s.UserRepo.UpdateSubscription(ctx, userID, level); err != nil {
		return nil, err
	}
	return s.UserRepo.FindByID(ctx, userID)
}

// UploadMedia stores a file for the user and records its URL on the
// account. Audio and video are probed first when probing is enabled; a
// failed probe does not block the upload.
func (s *UserService) UploadMedia(ctx context.Context, userID uint, filename string, data []byte) (*UploadResult, error) {
	contentType, err := util.ValidateMimeType(bytes.NewReader(data), util.AllowedUploadTypes)
	if err != nil {
		return nil, err
	}
	name := util.ObjectName(util.DirMedia, filename)
	result := &UploadResult{ContentType: contentType}

	if s.ProbeEnabled && (util.IsAudio(contentType) || util.IsVideo(contentType)) {
		result.URL, result.Media, err = s.probeAndUpload(ctx, name, filename, data, contentType)
	} else {
		result.URL, err = s.Storage.Upload(ctx, name, data, contentType)
	}
	if err != nil {
		return nil, err
	}

	result.MediaURLs, err = s.UserRepo.AppendMediaURL(ctx, userID, result.URL)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Media uploaded",
		zap.Uint("user_id", userID),
		zap.String("object", name),
		zap.String("content_type", contentType))
	return result, nil
}

func (s *UserService) probeAndUpload(ctx context.Context, name, filename string, data []byte, contentType string) (string, *util.MediaInfo, error) {
	dir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		return "", nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "media"+filepath.Ext(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", nil, err
	}

	info, err := s.probe(path)
	if err != nil {
		logger.Log.Warn("Media probe failed", zap.String("object", name), zap.Error(err))
		info = nil
	}

	url, err := s.Storage.UploadFile(ctx, name, path, contentType)
	return url, info, err
}
