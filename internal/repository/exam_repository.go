package repository

import (
	"context"
	"errors"
	"time"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"

	"gorm.io/gorm"
)

// ExamTurn is everything one graded answer changes. It is applied in a
// single transaction guarded by the expected cursor value.
type ExamTurn struct {
	SessionID      uint
	ExpectedCursor int
	Cursor         int
	Mood           model.TeacherMood
	Status         model.ExamStatus
	CompletedAt    *time.Time
	History        model.History
	Answer         *model.ExamAnswer
	NextQuestion   *model.ExamQuestion
}

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// CreateSession stores a new session together with its first question.
func (r *ExamRepository) CreateSession(ctx context.Context, session *model.ExamSession, first *model.ExamQuestion) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions").Create(session).Error; err != nil {
			return err
		}
		first.ExamSessionID = session.ID
		return tx.Omit("Answers").Create(first).Error
	})
}

func (r *ExamRepository) FindSession(ctx context.Context, id uint) (*model.ExamSession, error) {
	var session model.ExamSession
	err := r.DB.WithContext(ctx).First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindSessionWithQuestions loads the session with questions by index and
// answers by creation time.
func (r *ExamRepository) FindSessionWithQuestions(ctx context.Context, id uint) (*model.ExamSession, error) {
	var session model.ExamSession
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_index ASC")
		}).
		Preload("Questions.Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *ExamRepository) ListByUser(ctx context.Context, userID uint) ([]model.ExamSession, error) {
	var sessions []model.ExamSession
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *ExamRepository) FindQuestion(ctx context.Context, id uint) (*model.ExamQuestion, error) {
	var question model.ExamQuestion
	err := r.DB.WithContext(ctx).First(&question, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *ExamRepository) CountQuestions(ctx context.Context, sessionID uint) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.ExamQuestion{}).
		Where("exam_session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

// CreateAnswer stores the raw answer before grading so the audio and its
// transcript survive a failed turn.
func (r *ExamRepository) CreateAnswer(ctx context.Context, answer *model.ExamAnswer) error {
	return r.DB.WithContext(ctx).Create(answer).Error
}

// ApplyTurn commits a graded turn. If another turn moved the cursor first
// nothing is written and util.ErrConcurrentTurn is returned.
func (r *ExamRepository) ApplyTurn(ctx context.Context, turn *ExamTurn) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ExamSession{}).
			Where("id = ? AND current_question_index = ?", turn.SessionID, turn.ExpectedCursor).
			Select("current_question_index", "teacher_mood", "status", "completed_at", "context_history").
			Updates(&model.ExamSession{
				CurrentQuestionIndex: turn.Cursor,
				TeacherMood:          turn.Mood,
				Status:               turn.Status,
				CompletedAt:          turn.CompletedAt,
				ContextHistory:       turn.History,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrConcurrentTurn
		}

		if turn.Answer != nil {
			if err := tx.Model(&model.ExamAnswer{}).
				Where("id = ?", turn.Answer.ID).
				Updates(map[string]any{
					"is_correct":         turn.Answer.IsCorrect,
					"ai_feedback":        turn.Answer.AIFeedback,
					"teacher_mood_after": turn.Answer.TeacherMoodAfter,
				}).Error; err != nil {
				return err
			}
		}

		if turn.NextQuestion != nil {
			turn.NextQuestion.ExamSessionID = turn.SessionID
			if err := tx.Omit("Answers").Create(turn.NextQuestion).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SetStatus is an operator action; turns never call it.
func (r *ExamRepository) SetStatus(ctx context.Context, id uint, status model.ExamStatus) error {
	res := r.DB.WithContext(ctx).Model(&model.ExamSession{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrExamNotFound
	}
	return nil
}
