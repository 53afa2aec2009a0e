package model

import "time"

type ExamStatus string

const (
	ExamInProgress ExamStatus = "in_progress"
	ExamCompleted  ExamStatus = "completed"
	// ExamFailed is reserved for operator use; turns never set it.
	ExamFailed ExamStatus = "failed"
)

type ExamSession struct {
	BaseModel
	UserID               uint           `gorm:"index;not null" json:"user_id"`
	TeacherName          string         `gorm:"size:100;not null" json:"teacher_name"`
	TeacherDescription   string         `json:"teacher_description"`
	TeacherGender        TeacherGender  `gorm:"size:10;not null" json:"teacher_gender"`
	Subject              string         `gorm:"size:200;index;not null" json:"subject"`
	Status               ExamStatus     `gorm:"size:20;default:'in_progress';index" json:"status"`
	TeacherMood          TeacherMood    `gorm:"size:20;default:'neutral'" json:"teacher_mood"`
	CurrentQuestionIndex int            `gorm:"default:0" json:"current_question_index"`
	ContextHistory       History        `gorm:"serializer:json" json:"context_history"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	Questions            []ExamQuestion `gorm:"foreignKey:ExamSessionID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

type ExamQuestion struct {
	BaseModel
	ExamSessionID    uint         `gorm:"not null;uniqueIndex:idx_exam_question_index" json:"exam_session_id"`
	QuestionIndex    int          `gorm:"not null;uniqueIndex:idx_exam_question_index" json:"question_index"`
	QuestionText     string       `gorm:"not null" json:"question_text"`
	QuestionAudioURL string       `gorm:"size:500" json:"question_audio_url"`
	IsFollowUp       bool         `gorm:"default:false" json:"is_follow_up"`
	Answers          []ExamAnswer `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

type ExamAnswer struct {
	BaseModel
	QuestionID       uint        `gorm:"index;not null" json:"question_id"`
	StudentAudioURL  string      `gorm:"size:500" json:"student_audio_url"`
	TranscribedText  string      `json:"transcribed_text"`
	IsCorrect        *bool       `json:"is_correct"`
	AIFeedback       string      `json:"ai_feedback"`
	TeacherMoodAfter TeacherMood `gorm:"size:20" json:"teacher_mood_after"`
}
