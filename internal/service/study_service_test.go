package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"oral_exam_backend/internal/dialogue"
	mock_dialogue "oral_exam_backend/internal/mocks/dialogue"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type memoryStudyStore struct {
	mu       sync.Mutex
	nextID   uint
	sessions map[uint]model.StudySession
	messages []model.StudyMessage
}

func newMemoryStudyStore() *memoryStudyStore {
	return &memoryStudyStore{sessions: map[uint]model.StudySession{}}
}

func (m *memoryStudyStore) CreateSession(_ context.Context, session *model.StudySession, greeting *model.StudyMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	session.ID = m.nextID
	m.sessions[session.ID] = *session
	m.nextID++
	greeting.ID = m.nextID
	greeting.StudySessionID = session.ID
	m.messages = append(m.messages, *greeting)
	return nil
}

func (m *memoryStudyStore) FindSession(_ context.Context, id uint) (*model.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, util.ErrStudyNotFound
	}
	return &s, nil
}

func (m *memoryStudyStore) ListByUser(_ context.Context, userID uint) ([]model.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StudySession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryStudyStore) CreateMessage(_ context.Context, message *model.StudyMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	message.ID = m.nextID
	m.messages = append(m.messages, *message)
	return nil
}

func (m *memoryStudyStore) ListMessages(_ context.Context, sessionID uint) ([]model.StudyMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StudyMessage
	for _, msg := range m.messages {
		if msg.StudySessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryStudyStore) SaveHistory(_ context.Context, sessionID uint, history model.History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	s.ContextHistory = history
	m.sessions[sessionID] = s
	return nil
}

func (m *memoryStudyStore) Complete(_ context.Context, sessionID uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[sessionID]
	if s.Status != model.StudyActive {
		return util.ErrSessionNotActive
	}
	s.Status = model.StudyCompleted
	s.CompletedAt = &at
	m.sessions[sessionID] = s
	return nil
}

func newStudyFixture(t *testing.T) (*StudyService, *memoryStudyStore, *oracle) {
	t.Helper()
	ctrl := gomock.NewController(t)
	reasoner := mock_dialogue.NewMockReasoner(ctrl)
	o := &oracle{replies: map[string]string{
		dialogue.OpGender:   "male",
		dialogue.OpOffTopic: onTopic,
		dialogue.OpTutor:    "  Импульс равен произведению массы на скорость.  ",
	}}
	reasoner.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(o.complete).AnyTimes()

	engine, err := dialogue.NewEngine(reasoner, dialogue.DefaultTuning())
	require.NoError(t, err)

	store := newMemoryStudyStore()
	svc := NewStudyService(store, engine, &staticContext{text: "p = mv"}, NewLocalLocker(), time.Minute)
	return svc, store, o
}

func TestStudyService_StartStudy(t *testing.T) {
	svc, store, _ := newStudyFixture(t)

	reply, err := svc.StartStudy(context.Background(), 3, StartStudyInput{TeacherName: "Иван Петров", Subject: "Физика"})
	require.NoError(t, err)
	assert.Contains(t, reply.Response, "Здравствуй! Я Иван Петров")

	s := store.sessions[reply.SessionID]
	assert.Equal(t, model.GenderMale, s.TeacherGender)
	assert.Equal(t, model.StudyActive, s.Status)
	require.Len(t, s.ContextHistory, 2)
	assert.Equal(t, reply.Response, s.ContextHistory[1].Content)

	messages, err := svc.ListMessages(context.Background(), 3, reply.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.MessageTeacher, messages[0].Role)
}

func TestStudyService_SendMessage(t *testing.T) {
	svc, store, o := newStudyFixture(t)
	ctx := context.Background()
	started, err := svc.StartStudy(ctx, 3, StartStudyInput{TeacherName: "Иван Петров", Subject: "Физика"})
	require.NoError(t, err)

	reply, err := svc.SendMessage(ctx, 3, started.SessionID, "Что такое импульс?")
	require.NoError(t, err)
	assert.False(t, reply.Redirected)
	assert.Equal(t, "Импульс равен произведению массы на скорость.", reply.Response)

	o.set(dialogue.OpOffTopic, `{"is_off_topic": true, "redirect_message": ""}`)
	reply, err = svc.SendMessage(ctx, 3, started.SessionID, "Какая завтра погода?")
	require.NoError(t, err)
	assert.True(t, reply.Redirected)
	assert.Equal(t, dialogue.StudyRedirect, reply.Response)

	messages, err := svc.ListMessages(ctx, 3, started.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	roles := make([]model.MessageRole, 0, len(messages))
	for _, m := range messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []model.MessageRole{
		model.MessageTeacher, model.MessageStudent, model.MessageTeacher, model.MessageStudent, model.MessageTeacher,
	}, roles)

	history := store.sessions[started.SessionID].ContextHistory
	require.Len(t, history, 6)
	assert.Equal(t, "Студент: Какая завтра погода?", history[4].Content)
	assert.Equal(t, dialogue.StudyRedirect, history[5].Content)
}

func TestStudyService_SendMessageFailureKeepsStudentMessage(t *testing.T) {
	svc, store, o := newStudyFixture(t)
	ctx := context.Background()
	started, err := svc.StartStudy(ctx, 3, StartStudyInput{TeacherName: "Иван Петров", Subject: "Физика"})
	require.NoError(t, err)

	o.set(dialogue.OpTutor, "   ")
	_, err = svc.SendMessage(ctx, 3, started.SessionID, "Объясни закон сохранения энергии")
	require.Error(t, err)
	var malformed *dialogue.MalformedOutputError
	assert.True(t, errors.As(err, &malformed))

	assert.Len(t, store.messages, 2)
	assert.Len(t, store.sessions[started.SessionID].ContextHistory, 2)
}

func TestStudyService_Rejects(t *testing.T) {
	svc, _, _ := newStudyFixture(t)
	ctx := context.Background()
	started, err := svc.StartStudy(ctx, 3, StartStudyInput{TeacherName: "Иван Петров", Subject: "Физика"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, 4, started.SessionID, "Привет")
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.ListMessages(ctx, 3, 999)
	assert.ErrorIs(t, err, util.ErrStudyNotFound)

	require.NoError(t, svc.CompleteStudy(ctx, 3, started.SessionID))
	assert.ErrorIs(t, svc.CompleteStudy(ctx, 3, started.SessionID), util.ErrSessionNotActive)

	_, err = svc.SendMessage(ctx, 3, started.SessionID, "Привет")
	assert.ErrorIs(t, err, util.ErrSessionNotActive)
}

func TestStudyService_SendMessageChecksOwnerBeforeLocking(t *testing.T) {
	svc, _, _ := newStudyFixture(t)
	locker := newCountingLocker()
	svc.locker = locker
	ctx := context.Background()
	started, err := svc.StartStudy(ctx, 3, StartStudyInput{TeacherName: "Иван Петров", Subject: "Физика"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, 4, started.SessionID, "Привет")
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	_, err = svc.SendMessage(ctx, 3, 999, "Привет")
	assert.ErrorIs(t, err, util.ErrStudyNotFound)
	assert.Empty(t, locker.keys)

	_, err = svc.SendMessage(ctx, 3, started.SessionID, "Что такое импульс?")
	require.NoError(t, err)
	assert.Equal(t, []string{fmt.Sprintf("study:%d", started.SessionID)}, locker.keys)
}
