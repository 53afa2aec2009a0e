package repository

import (
	"context"
	"errors"
	"time"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"

	"gorm.io/gorm"
)

type StudyRepository struct {
	DB *gorm.DB
}

func NewStudyRepository(db *gorm.DB) *StudyRepository {
	return &StudyRepository{DB: db}
}

// CreateSession stores a new session and its greeting message.
func (r *StudyRepository) CreateSession(ctx context.Context, session *model.StudySession, greeting *model.StudyMessage) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Messages").Create(session).Error; err != nil {
			return err
		}
		greeting.StudySessionID = session.ID
		return tx.Create(greeting).Error
	})
}

func (r *StudyRepository) FindSession(ctx context.Context, id uint) (*model.StudySession, error) {
	var session model.StudySession
	err := r.DB.WithContext(ctx).First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrStudyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *StudyRepository) ListByUser(ctx context.Context, userID uint) ([]model.StudySession, error) {
	var sessions []model.StudySession
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *StudyRepository) CreateMessage(ctx context.Context, message *model.StudyMessage) error {
	return r.DB.WithContext(ctx).Create(message).Error
}

func (r *StudyRepository) ListMessages(ctx context.Context, sessionID uint) ([]model.StudyMessage, error) {
	var messages []model.StudyMessage
	err := r.DB.WithContext(ctx).
		Where("study_session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// SaveHistory writes the session log after a tutoring exchange.
func (r *StudyRepository) SaveHistory(ctx context.Context, sessionID uint, history model.History) error {
	return r.DB.WithContext(ctx).Model(&model.StudySession{}).
		Where("id = ?", sessionID).
		Select("context_history").
		Updates(&model.StudySession{ContextHistory: history}).
		Error
}

func (r *StudyRepository) Complete(ctx context.Context, sessionID uint, at time.Time) error {
	res := r.DB.WithContext(ctx).Model(&model.StudySession{}).
		Where("id = ? AND status = ?", sessionID, model.StudyActive).
		Updates(map[string]any{"status": model.StudyCompleted, "completed_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrSessionNotActive
	}
	return nil
}
