package util

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailRegistered     = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDisabled     = errors.New("account disabled")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrPermissionDenied    = errors.New("permission denied")

	ErrExamNotFound     = errors.New("exam session not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrStudyNotFound    = errors.New("study session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrStaleQuestion    = errors.New("question is not the current one")
	ErrConcurrentTurn   = errors.New("another turn is in progress for this session")

	ErrEmptyMaterial   = errors.New("material text is empty")
	ErrInvalidFileType = errors.New("invalid file type")
)

// ServiceError is a failure of an external dependency: reasoning oracle,
// speech, vector store or object storage. Callers may retry.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func NewServiceError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}

func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
