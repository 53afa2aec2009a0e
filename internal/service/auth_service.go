package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, userID uint, at time.Time) error
	UpdateSubscription(ctx context.Context, userID uint, level string) error
	AppendMediaURL(ctx context.Context, userID uint, url string) ([]string, error)
}

type TokenStore interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindActive(ctx context.Context, now time.Time) ([]model.RefreshToken, error)
	Revoke(ctx context.Context, id uint, at time.Time) (bool, error)
}

type AuthService struct {
	UserRepo  UserStore
	TokenRepo TokenStore
	Cfg       *config.Config
	now       func() time.Time
}

func NewAuthService(userRepo UserStore, tokenRepo TokenStore, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo:  userRepo,
		TokenRepo: tokenRepo,
		Cfg:       cfg,
		now:       time.Now,
	}
}

// TokenPair is issued on login and on every refresh. The refresh secret is
// only ever shown to the client once.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	RefreshToken string    `json:"-"`
	RefreshUntil time.Time `json:"-"`
}

func (s *AuthService) Register(ctx context.Context, email, username, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := s.UserRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, util.ErrUserNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Email:             email,
		Username:          username,
		Password:          string(hashedPassword),
		IsActive:          true,
		SubscriptionLevel: model.DefaultSubscriptionLevel,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.UserRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, util.ErrAccountDisabled
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.UserRepo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		logger.Log.Warn("Failed to record last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return pair, nil
}

// Refresh redeems a refresh secret. The grant is revoked and a new pair is
// issued, so every secret works exactly once.
func (s *AuthService) Refresh(ctx context.Context, secret string) (*TokenPair, error) {
	grant, err := s.findGrant(ctx, secret)
	if err != nil {
		return nil, err
	}
	revoked, err := s.TokenRepo.Revoke(ctx, grant.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, util.ErrInvalidRefreshToken
	}

	user, err := s.UserRepo.FindByID(ctx, grant.UserID)
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			return nil, util.ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, util.ErrAccountDisabled
	}
	return s.issue(ctx, user)
}

// Logout revokes the caller's refresh grant. Unknown or foreign secrets are
// ignored.
func (s *AuthService) Logout(ctx context.Context, userID uint, secret string) error {
	if secret == "" {
		return nil
	}
	grant, err := s.findGrant(ctx, secret)
	if errors.Is(err, util.ErrInvalidRefreshToken) {
		return nil
	}
	if err != nil {
		return err
	}
	if grant.UserID != userID {
		return nil
	}
	_, err = s.TokenRepo.Revoke(ctx, grant.ID, s.now())
	return err
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*model.User, error) {
	return s.UserRepo.FindByID(ctx, userID)
}

func (s *AuthService) findGrant(ctx context.Context, secret string) (*model.RefreshToken, error) {
	if secret == "" {
		return nil, util.ErrInvalidRefreshToken
	}
	grants, err := s.TokenRepo.FindActive(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for i := range grants {
		if bcrypt.CompareHashAndPassword([]byte(grants[i].TokenHash), []byte(secret)) == nil {
			return &grants[i], nil
		}
	}
	return nil, util.ErrInvalidRefreshToken
}

func (s *AuthService) issue(ctx context.Context, user *model.User) (*TokenPair, error) {
	ttl := s.Cfg.AccessTokenTTL()
	access, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	secret := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	until := s.now().Add(s.Cfg.RefreshTokenTTL())
	if err := s.TokenRepo.Create(ctx, &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: string(hash),
		ExpiresAt: until,
	}); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(ttl.Seconds()),
		RefreshToken: secret,
		RefreshUntil: until,
	}, nil
}
