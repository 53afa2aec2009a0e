package util

import (
	"context"
	"errors"
	"net/http"

	"oral_exam_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.String("path", c.FullPath()), zap.Error(err))
	InternalServerError(c)
}

// malformedOutput is implemented by errors for unusable model output.
type malformedOutput interface {
	MalformedOutput() bool
}

// HandleError maps domain and dependency errors onto HTTP responses.
func HandleError(c *gin.Context, err error) {
	var mo malformedOutput
	switch {
	case errors.Is(err, ErrExamNotFound), errors.Is(err, ErrStudyNotFound),
		errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrUserNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrAccountDisabled):
		Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrEmailRegistered):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSessionNotActive), errors.Is(err, ErrEmptyMaterial),
		errors.Is(err, ErrInvalidFileType):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStaleQuestion), errors.Is(err, ErrConcurrentTurn):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Log.Warn("Request timed out", zap.String("path", c.FullPath()), zap.Error(err))
		Error(c, http.StatusGatewayTimeout, "upstream service timed out, please retry")
	case errors.As(err, &mo) && mo.MalformedOutput():
		logger.Log.Warn("Malformed model output", zap.String("path", c.FullPath()), zap.Error(err))
		Error(c, http.StatusBadGateway, "could not interpret the model response, please retry")
	case IsServiceError(err):
		logger.Log.Warn("External service failure", zap.String("path", c.FullPath()), zap.Error(err))
		Error(c, http.StatusBadGateway, "external service unavailable, please retry")
	default:
		LogInternalError(c, err)
	}
}
