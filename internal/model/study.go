package model

import "time"

type StudyStatus string

const (
	StudyActive    StudyStatus = "active"
	StudyCompleted StudyStatus = "completed"
)

type MessageRole string

const (
	MessageStudent MessageRole = "student"
	MessageTeacher MessageRole = "teacher"
)

type StudySession struct {
	BaseModel
	UserID             uint           `gorm:"index;not null" json:"user_id"`
	TeacherName        string         `gorm:"size:100;not null" json:"teacher_name"`
	TeacherDescription string         `json:"teacher_description"`
	TeacherGender      TeacherGender  `gorm:"size:10;not null" json:"teacher_gender"`
	Subject            string         `gorm:"size:200;index;not null" json:"subject"`
	Status             StudyStatus    `gorm:"size:20;default:'active';index" json:"status"`
	ContextHistory     History        `gorm:"serializer:json" json:"context_history"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Messages           []StudyMessage `gorm:"foreignKey:StudySessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

type StudyMessage struct {
	BaseModel
	StudySessionID uint        `gorm:"index;not null" json:"study_session_id"`
	Role           MessageRole `gorm:"size:10;not null" json:"role"`
	Content        string      `gorm:"not null" json:"content"`
}
