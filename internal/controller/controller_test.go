package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/service"
	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userStub struct {
	users []*model.User
}

func (s *userStub) Create(_ context.Context, user *model.User) error {
	user.ID = uint(len(s.users) + 1)
	s.users = append(s.users, user)
	return nil
}

func (s *userStub) FindByID(_ context.Context, id uint) (*model.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, util.ErrUserNotFound
}

func (s *userStub) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, util.ErrUserNotFound
}

func (s *userStub) UpdateLastLogin(context.Context, uint, time.Time) error { return nil }

func (s *userStub) UpdateSubscription(context.Context, uint, string) error { return nil }

func (s *userStub) AppendMediaURL(context.Context, uint, string) ([]string, error) { return nil, nil }

type tokenStub struct {
	tokens []model.RefreshToken
}

func (s *tokenStub) Create(_ context.Context, token *model.RefreshToken) error {
	token.ID = uint(len(s.tokens) + 1)
	s.tokens = append(s.tokens, *token)
	return nil
}

func (s *tokenStub) FindActive(_ context.Context, now time.Time) ([]model.RefreshToken, error) {
	var out []model.RefreshToken
	for _, t := range s.tokens {
		if t.Active(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *tokenStub) Revoke(_ context.Context, id uint, _ time.Time) (bool, error) {
	for i := range s.tokens {
		if s.tokens[i].ID == id && !s.tokens[i].Revoked {
			s.tokens[i].Revoked = true
			return true, nil
		}
	}
	return false, nil
}

func doJSON(router http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == util.RefreshTokenCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", util.RefreshTokenCookie)
	return nil
}

func TestAuthController_Flow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "secret", ExpireTime: time.Hour, RefreshExpireDays: 1}}
	ctrl := NewAuthController(service.NewAuthService(&userStub{}, &tokenStub{}, cfg), false)

	router := gin.New()
	router.POST("/api/register", ctrl.Register)
	router.POST("/api/login", ctrl.Login)
	router.POST("/api/refresh", ctrl.Refresh)

	w := doJSON(router, http.MethodPost, "/api/register", `{"email":"a@example.com","username":"a","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/register", `{"email":"a@example.com","username":"a","password":"long-enough"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "long-enough")

	w = doJSON(router, http.MethodPost, "/api/register", `{"email":"a@example.com","username":"a","password":"long-enough"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(router, http.MethodPost, "/api/login", `{"email":"a@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/login", `{"email":"a@example.com","password":"long-enough"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.AccessToken)
	assert.Empty(t, body.Data.RefreshToken)

	first := refreshCookie(t, w)
	assert.True(t, first.HttpOnly)

	w = doJSON(router, http.MethodPost, "/api/refresh", "", first)
	require.Equal(t, http.StatusOK, w.Code)
	second := refreshCookie(t, w)
	assert.NotEqual(t, first.Value, second.Value)

	w = doJSON(router, http.MethodPost, "/api/refresh", "", first)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/refresh", `{"refresh_token":"`+second.Value+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func withUser(id uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(util.ContextUserKey, &util.Claims{UserID: id})
		c.Next()
	}
}

func TestExamController_Validation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := NewExamController(nil)

	router := gin.New()
	router.POST("/api/exam/answer", withUser(1), ctrl.Answer)
	router.GET("/api/exam/:id/status", withUser(1), ctrl.Status)
	router.POST("/api/exam/start", ctrl.Start)

	w := doJSON(router, http.MethodPost, "/api/exam/answer", `{"exam_session_id":1,"question_id":2,"answer_audio_url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/exam/answer", `{"question_id":2,"answer_audio_url":"https://cdn.test/a.webm"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/exam/abc/status", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/exam/start", `{"teacher_name":"Анна","subject":"Физика"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuestionResponse(t *testing.T) {
	q := &model.ExamQuestion{
		BaseModel:        model.BaseModel{ID: 12},
		ExamSessionID:    3,
		QuestionIndex:    2,
		QuestionText:     "Что такое импульс?",
		QuestionAudioURL: "https://cdn.test/audio/q.ogg",
		IsFollowUp:       true,
	}
	resp, err := questionResponse(q)
	require.NoError(t, err)
	assert.Equal(t, &QuestionResponse{
		ExamSessionID:    3,
		QuestionID:       12,
		QuestionText:     "Что такое импульс?",
		QuestionAudioURL: "https://cdn.test/audio/q.ogg",
		QuestionIndex:    2,
		IsFollowUp:       true,
	}, resp)

	resp, err = questionResponse(nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}
