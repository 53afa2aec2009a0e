package controller

import (
	"oral_exam_backend/internal/service"
	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService *service.UserService
	MaxUpload   int64
}

func NewUserController(userService *service.UserService, maxUploadMB int64) *UserController {
	return &UserController{
		UserService: userService,
		MaxUpload:   maxUploadMB << 20,
	}
}

// swagger:model SubscriptionRequest
type SubscriptionRequest struct {
	NewLevel string `json:"new_level" binding:"required,max=32"`
}

// UpdateSubscription godoc
// @Summary Change subscription level
// @Description Only the account owner may change its plan
// @Tags users
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "User ID"
// @Param   body body SubscriptionRequest true "New level"
// @Success 200 {object} util.Response{data=model.User} "Success"
// @Failure 403 {object} util.Response "Forbidden"
// @Failure 404 {object} util.Response "Not Found"
// @Router /api/users/{id}/subscription [post]
func (c *UserController) UpdateSubscription(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	targetID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req SubscriptionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.UpdateSubscription(ctx.Request.Context(), userID, targetID, req.NewLevel)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// Upload godoc
// @Summary Upload a media file
// @Description Stores audio, video or an image and records its URL on the account
// @Tags users
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   file formData file true "Media file"
// @Success 201 {object} util.Response{data=service.UploadResult} "Created"
// @Failure 400 {object} util.Response "Bad Request"
// @Failure 413 {object} util.Response "File too large"
// @Failure 502 {object} util.Response "Storage unavailable"
// @Router /api/upload [post]
func (c *UserController) Upload(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	header, data, ok := readUpload(ctx, "file", c.MaxUpload)
	if !ok {
		return
	}

	res, err := c.UserService.UploadMedia(ctx.Request.Context(), userID, header.Filename, data)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}
