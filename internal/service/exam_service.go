package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/repository"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"
	"oral_exam_backend/pkg/monitoring"
	"oral_exam_backend/pkg/tracing"

	"go.uber.org/zap"
)

// ExamStore persists exam sessions. ExamRepository implements it.
type ExamStore interface {
	CreateSession(ctx context.Context, session *model.ExamSession, first *model.ExamQuestion) error
	FindSession(ctx context.Context, id uint) (*model.ExamSession, error)
	FindSessionWithQuestions(ctx context.Context, id uint) (*model.ExamSession, error)
	ListByUser(ctx context.Context, userID uint) ([]model.ExamSession, error)
	FindQuestion(ctx context.Context, id uint) (*model.ExamQuestion, error)
	CountQuestions(ctx context.Context, sessionID uint) (int64, error)
	CreateAnswer(ctx context.Context, answer *model.ExamAnswer) error
	ApplyTurn(ctx context.Context, turn *repository.ExamTurn) error
}

// ContextSource supplies subject material for prompts. retrieval.Service
// implements it.
type ContextSource interface {
	Retrieve(ctx context.Context, subject, query string) (string, error)
	BuildContext(ctx context.Context, subject string, seeds []string) (string, error)
}

type ExamService struct {
	store       ExamStore
	engine      *dialogue.Engine
	materials   ContextSource
	transcriber Transcriber
	synthesizer Synthesizer
	locker      SessionLocker
	turnTimeout time.Duration
	now         func() time.Time
}

func NewExamService(
	store ExamStore,
	engine *dialogue.Engine,
	materials ContextSource,
	transcriber Transcriber,
	synthesizer Synthesizer,
	locker SessionLocker,
	turnTimeout time.Duration,
) *ExamService {
	return &ExamService{
		store:       store,
		engine:      engine,
		materials:   materials,
		transcriber: transcriber,
		synthesizer: synthesizer,
		locker:      locker,
		turnTimeout: turnTimeout,
		now:         time.Now,
	}
}

type StartExamInput struct {
	TeacherName        string
	TeacherDescription string
	Subject            string
	Materials          []string
}

type ExamStart struct {
	Session  *model.ExamSession
	Question *model.ExamQuestion
}

type SubmitAnswerInput struct {
	SessionID  uint
	QuestionID uint
	AudioURL   string
}

// TurnResult is what the student hears back after one answer.
type TurnResult struct {
	Session       *model.ExamSession
	Answer        *model.ExamAnswer
	IsCorrect     bool
	Feedback      string
	Mood          model.TeacherMood
	OffTopic      bool
	ExamCompleted bool
	NextQuestion  *model.ExamQuestion
}

type ExamStatus struct {
	SessionID            uint              `json:"exam_session_id"`
	Status               model.ExamStatus  `json:"status"`
	TeacherMood          model.TeacherMood `json:"teacher_mood"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	QuestionsCount       int64             `json:"questions_count"`
	CreatedAt            time.Time         `json:"created_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

func (s *ExamService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.turnTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.turnTimeout)
}

func examPersona(session *model.ExamSession) dialogue.Persona {
	return dialogue.Persona{
		Name:        session.TeacherName,
		Description: session.TeacherDescription,
		Subject:     session.Subject,
		Gender:      session.TeacherGender,
	}
}

// StartExam opens a session and asks the first question. Nothing is stored
// unless the question was generated and voiced.
func (s *ExamService) StartExam(ctx context.Context, userID uint, in StartExamInput) (*ExamStart, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	persona := dialogue.Persona{
		Name:        strings.TrimSpace(in.TeacherName),
		Description: in.TeacherDescription,
		Subject:     strings.TrimSpace(in.Subject),
	}
	persona.Gender = s.engine.DetectGender(ctx, persona.Name)

	materials, err := s.materials.BuildContext(ctx, persona.Subject, in.Materials)
	if err != nil {
		return nil, err
	}

	text, err := s.engine.FirstQuestion(ctx, persona, materials)
	if err != nil {
		return nil, err
	}
	audioURL, err := s.synthesizer.Synthesize(ctx, text,
		dialogue.VoiceFor(persona.Gender, model.MoodNeutral), dialogue.EmotionFor(model.MoodNeutral))
	if err != nil {
		return nil, err
	}

	session := &model.ExamSession{
		UserID:               userID,
		TeacherName:          persona.Name,
		TeacherDescription:   persona.Description,
		TeacherGender:        persona.Gender,
		Subject:              persona.Subject,
		Status:               model.ExamInProgress,
		TeacherMood:          model.MoodNeutral,
		CurrentQuestionIndex: 0,
		ContextHistory: model.History{
			{Role: model.RoleSystem, Content: dialogue.PersonaLine(persona)},
			{Role: model.RoleAssistant, Content: text},
		},
	}
	question := &model.ExamQuestion{
		QuestionIndex:    0,
		QuestionText:     text,
		QuestionAudioURL: audioURL,
	}
	if err := s.store.CreateSession(ctx, session, question); err != nil {
		return nil, err
	}

	logger.Session("exam", session.ID).Info("Exam started",
		zap.Uint("user_id", userID),
		zap.String("subject", session.Subject),
		zap.String("teacher_gender", string(session.TeacherGender)))
	return &ExamStart{Session: session, Question: question}, nil
}

// loadOwned returns the session if it exists and belongs to userID.
func (s *ExamService) loadOwned(ctx context.Context, userID, sessionID uint) (*model.ExamSession, error) {
	session, err := s.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}

// SubmitAnswer runs one exam turn: transcribe, store the raw answer,
// evaluate, decide, voice the next question and commit. Turns of one
// session are serialised; the commit also checks the cursor did not move.
func (s *ExamService) SubmitAnswer(ctx context.Context, userID uint, in SubmitAnswerInput) (result *TurnResult, err error) {
	start := time.Now()
	defer func() { monitoring.ObserveTurn("exam", start, err) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.loadOwned(ctx, userID, in.SessionID); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("exam:%d", in.SessionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// re-read: a turn that held the lock may have moved the cursor
	session, err := s.loadOwned(ctx, userID, in.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.ExamInProgress {
		return nil, util.ErrSessionNotActive
	}
	question, err := s.store.FindQuestion(ctx, in.QuestionID)
	if err != nil {
		return nil, err
	}
	if question.ExamSessionID != session.ID {
		return nil, util.ErrQuestionNotFound
	}
	if question.QuestionIndex != session.CurrentQuestionIndex {
		return nil, util.ErrStaleQuestion
	}
	log := logger.Session("exam", session.ID)

	stepCtx, span := tracing.StartStep(ctx, "exam.transcribe", session.ID)
	transcript, err := s.transcriber.Transcribe(stepCtx, in.AudioURL)
	tracing.EndStep(span, err)
	if err != nil {
		return nil, err
	}

	answer := &model.ExamAnswer{
		QuestionID:      question.ID,
		StudentAudioURL: in.AudioURL,
		TranscribedText: transcript,
	}
	if err := s.store.CreateAnswer(ctx, answer); err != nil {
		return nil, err
	}

	materials, err := s.materials.Retrieve(ctx, session.Subject, "")
	if err != nil {
		return nil, err
	}

	persona := examPersona(session)
	stepCtx, span = tracing.StartStep(ctx, "exam.evaluate", session.ID)
	verdict, err := s.engine.Evaluate(stepCtx, dialogue.GradeInput{
		Persona:       persona,
		Mood:          session.TeacherMood,
		Question:      question.QuestionText,
		QuestionIndex: question.QuestionIndex,
		Answer:        transcript,
		History:       session.ContextHistory,
		Materials:     materials,
	})
	tracing.EndStep(span, err)
	if err != nil {
		log.Warn("Answer evaluation failed", zap.Uint("answer_id", answer.ID), zap.Error(err))
		return nil, err
	}

	advance := dialogue.Decide(verdict, session.CurrentQuestionIndex)
	if verdict.OffTopic {
		monitoring.OffTopicRedirects.WithLabelValues("exam").Inc()
	}

	assistantLine := verdict.Feedback
	var next *model.ExamQuestion
	if advance.Creates() {
		next, err = s.nextQuestion(ctx, session, persona, verdict, advance, materials)
		if err != nil {
			return nil, err
		}
		assistantLine = verdict.Feedback + "\n\n" + next.QuestionText
	}

	correct := verdict.IsCorrect
	answer.IsCorrect = &correct
	answer.AIFeedback = verdict.Feedback
	answer.TeacherMoodAfter = verdict.Mood

	turn := &repository.ExamTurn{
		SessionID:      session.ID,
		ExpectedCursor: session.CurrentQuestionIndex,
		Cursor:         advance.Index,
		Mood:           verdict.Mood,
		Status:         session.Status,
		CompletedAt:    session.CompletedAt,
		History: session.ContextHistory.Append(
			model.DialogueEntry{Role: model.RoleUser, Content: dialogue.StudentLine(transcript)},
			model.DialogueEntry{Role: model.RoleAssistant, Content: assistantLine},
		),
		Answer:       answer,
		NextQuestion: next,
	}
	if advance.Kind == dialogue.Complete {
		now := s.now()
		turn.Status = model.ExamCompleted
		turn.CompletedAt = &now
	}
	if err := s.store.ApplyTurn(ctx, turn); err != nil {
		return nil, err
	}

	session.CurrentQuestionIndex = turn.Cursor
	session.TeacherMood = turn.Mood
	session.Status = turn.Status
	session.CompletedAt = turn.CompletedAt
	session.ContextHistory = turn.History

	log.Info("Exam turn applied",
		zap.Stringer("advance", advance.Kind),
		zap.Bool("correct", verdict.IsCorrect),
		zap.Bool("off_topic", verdict.OffTopic),
		zap.String("mood", string(verdict.Mood)),
		zap.Int("cursor", session.CurrentQuestionIndex))

	return &TurnResult{
		Session:       session,
		Answer:        answer,
		IsCorrect:     verdict.IsCorrect,
		Feedback:      verdict.Feedback,
		Mood:          verdict.Mood,
		OffTopic:      verdict.OffTopic,
		ExamCompleted: advance.Kind == dialogue.Complete,
		NextQuestion:  next,
	}, nil
}

// nextQuestion produces and voices the question the turn advances to. The
// voice follows the mood after grading.
func (s *ExamService) nextQuestion(
	ctx context.Context,
	session *model.ExamSession,
	persona dialogue.Persona,
	verdict dialogue.Verdict,
	advance dialogue.Advance,
	materials string,
) (*model.ExamQuestion, error) {
	text := advance.Text
	if advance.Kind == dialogue.NextQuestion {
		var err error
		text, err = s.engine.NextQuestion(ctx, dialogue.NextQuestionInput{
			Persona:   persona,
			Mood:      verdict.Mood,
			History:   session.ContextHistory,
			Materials: materials,
			Asked:     advance.Index,
		})
		if err != nil {
			return nil, err
		}
	}

	stepCtx, span := tracing.StartStep(ctx, "exam.synthesize", session.ID)
	audioURL, err := s.synthesizer.Synthesize(stepCtx, text,
		dialogue.VoiceFor(session.TeacherGender, verdict.Mood), dialogue.EmotionFor(verdict.Mood))
	tracing.EndStep(span, err)
	if err != nil {
		return nil, err
	}

	return &model.ExamQuestion{
		ExamSessionID:    session.ID,
		QuestionIndex:    advance.Index,
		QuestionText:     text,
		QuestionAudioURL: audioURL,
		IsFollowUp:       advance.Kind == dialogue.FollowUp,
	}, nil
}

func (s *ExamService) GetStatus(ctx context.Context, userID, sessionID uint) (*ExamStatus, error) {
	session, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountQuestions(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &ExamStatus{
		SessionID:            session.ID,
		Status:               session.Status,
		TeacherMood:          session.TeacherMood,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		QuestionsCount:       count,
		CreatedAt:            session.CreatedAt,
		CompletedAt:          session.CompletedAt,
	}, nil
}

// GetSession returns the full transcript: questions with their answers.
func (s *ExamService) GetSession(ctx context.Context, userID, sessionID uint) (*model.ExamSession, error) {
	session, err := s.store.FindSessionWithQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}

func (s *ExamService) ListSessions(ctx context.Context, userID uint) ([]model.ExamSession, error) {
	return s.store.ListByUser(ctx, userID)
}
