package controller

import (
	"net/http"
	"time"

	"oral_exam_backend/internal/service"
	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService  *service.AuthService
	CookieSecure bool
}

func NewAuthController(authService *service.AuthService, cookieSecure bool) *AuthController {
	return &AuthController{
		AuthService:  authService,
		CookieSecure: cookieSecure,
	}
}

// swagger:model RegisterRequest
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,min=8"`
}

// swagger:model LoginRequest
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// swagger:model RefreshRequest
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register godoc
// @Summary Register a new account
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body RegisterRequest true "Account data"
// @Success 201 {object} util.Response{data=model.User} "Created"
// @Failure 400 {object} util.Response "Bad Request"
// @Failure 409 {object} util.Response "Email already registered"
// @Router /api/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.AuthService.Register(ctx.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, user)
}

// Login godoc
// @Summary Log in
// @Description Returns an access token; the refresh token is set as an HttpOnly cookie
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body LoginRequest true "Credentials"
// @Success 200 {object} util.Response{data=service.TokenPair} "Success"
// @Failure 401 {object} util.Response "Unauthorized"
// @Router /api/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	pair, err := c.AuthService.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	c.setRefreshCookie(ctx, pair.RefreshToken, pair.RefreshUntil)
	util.Success(ctx, pair)
}

// Refresh godoc
// @Summary Rotate the refresh token
// @Description Reads the refresh token from the cookie, or from the body when no cookie is sent
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body RefreshRequest false "Refresh token"
// @Success 200 {object} util.Response{data=service.TokenPair} "Success"
// @Failure 401 {object} util.Response "Unauthorized"
// @Router /api/refresh [post]
func (c *AuthController) Refresh(ctx *gin.Context) {
	pair, err := c.AuthService.Refresh(ctx.Request.Context(), refreshSecret(ctx))
	if err != nil {
		c.clearRefreshCookie(ctx)
		util.HandleError(ctx, err)
		return
	}

	c.setRefreshCookie(ctx, pair.RefreshToken, pair.RefreshUntil)
	util.Success(ctx, pair)
}

// Logout godoc
// @Summary Log out
// @Tags auth
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response "Success"
// @Router /api/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	if err := c.AuthService.Logout(ctx.Request.Context(), userID, refreshSecret(ctx)); err != nil {
		util.HandleError(ctx, err)
		return
	}

	c.clearRefreshCookie(ctx)
	util.Success(ctx, gin.H{"logged_out": true})
}

// Me godoc
// @Summary Current account
// @Tags users
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.User} "Success"
// @Failure 401 {object} util.Response "Unauthorized"
// @Router /api/users/me [get]
func (c *AuthController) Me(ctx *gin.Context) {
	if account := util.GetAccountFromContext(ctx); account != nil {
		util.Success(ctx, account)
		return
	}
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	user, err := c.AuthService.Me(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

func refreshSecret(ctx *gin.Context) string {
	if cookie, err := ctx.Cookie(util.RefreshTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	var req RefreshRequest
	_ = ctx.ShouldBindJSON(&req)
	return req.RefreshToken
}

func (c *AuthController) setRefreshCookie(ctx *gin.Context, secret string, until time.Time) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(util.RefreshTokenCookie, secret, int(time.Until(until).Seconds()), "/api", "", c.CookieSecure, true)
}

func (c *AuthController) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(util.RefreshTokenCookie, "", -1, "/api", "", c.CookieSecure, true)
}
