package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accounts map[uint]*model.User

func (a accounts) FindByID(_ context.Context, id uint) (*model.User, error) {
	if u, ok := a[id]; ok {
		return u, nil
	}
	return nil, util.ErrUserNotFound
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "secret"}}
	users := accounts{
		1: {BaseModel: model.BaseModel{ID: 1}, Email: "a@example.com", IsActive: true},
		2: {BaseModel: model.BaseModel{ID: 2}, Email: "b@example.com", IsActive: false},
	}

	router := gin.New()
	router.GET("/me", AuthMiddleware(cfg, users), func(c *gin.Context) {
		account := util.GetAccountFromContext(c)
		claims := util.GetUserFromContext(c)
		c.JSON(http.StatusOK, gin.H{"email": account.Email, "id": claims.UserID})
	})

	token := func(id uint, secret string) string {
		tok, err := util.GenerateJWT(&model.User{BaseModel: model.BaseModel{ID: id}}, secret, time.Hour)
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"bearer token", "Bearer " + token(1, "secret"), "", http.StatusOK},
		{"query token", "", token(1, "secret"), http.StatusOK},
		{"wrong secret", "Bearer " + token(1, "other"), "", http.StatusUnauthorized},
		{"unknown account", "Bearer " + token(9, "secret"), "", http.StatusUnauthorized},
		{"disabled account", "Bearer " + token(2, "secret"), "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/me"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), "a@example.com")
			}
		})
	}
}
