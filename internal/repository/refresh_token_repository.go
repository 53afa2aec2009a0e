package repository

import (
	"context"
	"time"

	"oral_exam_backend/internal/model"

	"gorm.io/gorm"
)

type RefreshTokenRepository struct {
	DB *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{DB: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(token).Error
}

// FindActive returns every grant that is neither revoked nor expired. The
// secret is only stored hashed, so callers compare against each of them.
func (r *RefreshTokenRepository) FindActive(ctx context.Context, now time.Time) ([]model.RefreshToken, error) {
	var tokens []model.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("revoked = ? AND expires_at > ?", false, now).
		Order("id DESC").
		Find(&tokens).Error
	return tokens, err
}

// Revoke marks a grant as used. It reports false if the grant was already
// revoked, which happens when two refreshes race with the same secret.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{"revoked": true, "revoked_at": at})
	return res.RowsAffected == 1, res.Error
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]any{"revoked": true, "revoked_at": at}).
		Error
}

// DeleteExpired prunes grants that can no longer be redeemed.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Unscoped().
		Where("expires_at < ? OR revoked = ?", before, true).
		Delete(&model.RefreshToken{})
	return res.RowsAffected, res.Error
}
