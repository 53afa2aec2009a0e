package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"
	"oral_exam_backend/pkg/monitoring"
	"oral_exam_backend/pkg/tracing"

	"go.uber.org/zap"
)

type StudyStore interface {
	CreateSession(ctx context.Context, session *model.StudySession, greeting *model.StudyMessage) error
	FindSession(ctx context.Context, id uint) (*model.StudySession, error)
	ListByUser(ctx context.Context, userID uint) ([]model.StudySession, error)
	CreateMessage(ctx context.Context, message *model.StudyMessage) error
	ListMessages(ctx context.Context, sessionID uint) ([]model.StudyMessage, error)
	SaveHistory(ctx context.Context, sessionID uint, history model.History) error
	Complete(ctx context.Context, sessionID uint, at time.Time) error
}

type StudyService struct {
	store       StudyStore
	engine      *dialogue.Engine
	materials   ContextSource
	locker      SessionLocker
	turnTimeout time.Duration
	now         func() time.Time
}

func NewStudyService(store StudyStore, engine *dialogue.Engine, materials ContextSource, locker SessionLocker, turnTimeout time.Duration) *StudyService {
	return &StudyService{
		store:       store,
		engine:      engine,
		materials:   materials,
		locker:      locker,
		turnTimeout: turnTimeout,
		now:         time.Now,
	}
}

type StartStudyInput struct {
	TeacherName        string
	TeacherDescription string
	Subject            string
	Materials          []string
}

type StudyReply struct {
	SessionID  uint   `json:"study_session_id"`
	Response   string `json:"teacher_response"`
	Redirected bool   `json:"redirected"`
}

func (s *StudyService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.turnTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.turnTimeout)
}

// StartStudy opens a tutoring session. The greeting is fixed text; seed
// materials are stored for later retrieval.
func (s *StudyService) StartStudy(ctx context.Context, userID uint, in StartStudyInput) (*StudyReply, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	persona := dialogue.Persona{
		Name:        strings.TrimSpace(in.TeacherName),
		Description: in.TeacherDescription,
		Subject:     strings.TrimSpace(in.Subject),
	}
	persona.Gender = s.engine.DetectGender(ctx, persona.Name)

	if _, err := s.materials.BuildContext(ctx, persona.Subject, in.Materials); err != nil {
		return nil, err
	}

	greeting := dialogue.Greeting(persona)
	session := &model.StudySession{
		UserID:             userID,
		TeacherName:        persona.Name,
		TeacherDescription: persona.Description,
		TeacherGender:      persona.Gender,
		Subject:            persona.Subject,
		Status:             model.StudyActive,
		ContextHistory: model.History{
			{Role: model.RoleSystem, Content: dialogue.PersonaLine(persona)},
			{Role: model.RoleAssistant, Content: greeting},
		},
	}
	message := &model.StudyMessage{Role: model.MessageTeacher, Content: greeting}
	if err := s.store.CreateSession(ctx, session, message); err != nil {
		return nil, err
	}

	logger.Session("study", session.ID).Info("Study session started",
		zap.Uint("user_id", userID), zap.String("subject", session.Subject))
	return &StudyReply{SessionID: session.ID, Response: greeting}, nil
}

func (s *StudyService) loadOwned(ctx context.Context, userID, sessionID uint) (*model.StudySession, error) {
	session, err := s.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}

// SendMessage stores the student's message, answers it and stores the
// answer. A failed reply leaves the student message in place.
func (s *StudyService) SendMessage(ctx context.Context, userID, sessionID uint, text string) (reply *StudyReply, err error) {
	start := time.Now()
	defer func() { monitoring.ObserveTurn("study", start, err) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.loadOwned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("study:%d", sessionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.StudyActive {
		return nil, util.ErrSessionNotActive
	}

	if err := s.store.CreateMessage(ctx, &model.StudyMessage{
		StudySessionID: session.ID,
		Role:           model.MessageStudent,
		Content:        text,
	}); err != nil {
		return nil, err
	}

	materials, err := s.materials.Retrieve(ctx, session.Subject, "")
	if err != nil {
		return nil, err
	}

	stepCtx, span := tracing.StartStep(ctx, "study.reply", session.ID)
	response, redirected, err := s.engine.TutorReply(stepCtx, dialogue.TutorInput{
		Persona: dialogue.Persona{
			Name:        session.TeacherName,
			Description: session.TeacherDescription,
			Subject:     session.Subject,
			Gender:      session.TeacherGender,
		},
		History:   session.ContextHistory,
		Materials: materials,
		Message:   text,
	})
	tracing.EndStep(span, err)
	if err != nil {
		return nil, err
	}
	if redirected {
		monitoring.OffTopicRedirects.WithLabelValues("study").Inc()
	}

	if err := s.store.CreateMessage(ctx, &model.StudyMessage{
		StudySessionID: session.ID,
		Role:           model.MessageTeacher,
		Content:        response,
	}); err != nil {
		return nil, err
	}

	history := session.ContextHistory.Append(
		model.DialogueEntry{Role: model.RoleUser, Content: dialogue.StudentLine(text)},
		model.DialogueEntry{Role: model.RoleAssistant, Content: response},
	)
	if err := s.store.SaveHistory(ctx, session.ID, history); err != nil {
		return nil, err
	}

	logger.Session("study", session.ID).Debug("Study reply sent", zap.Bool("redirected", redirected))
	return &StudyReply{SessionID: session.ID, Response: response, Redirected: redirected}, nil
}

func (s *StudyService) ListMessages(ctx context.Context, userID, sessionID uint) ([]model.StudyMessage, error) {
	if _, err := s.loadOwned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, sessionID)
}

func (s *StudyService) ListSessions(ctx context.Context, userID uint) ([]model.StudySession, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *StudyService) CompleteStudy(ctx context.Context, userID, sessionID uint) error {
	if _, err := s.loadOwned(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.store.Complete(ctx, sessionID, s.now())
}
