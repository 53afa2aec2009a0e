package controller

import (
	"time"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/service"
	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type StudyController struct {
	StudyService *service.StudyService
}

func NewStudyController(studyService *service.StudyService) *StudyController {
	return &StudyController{StudyService: studyService}
}

// swagger:model StudyMessageRequest
type StudyMessageRequest struct {
	StudySessionID uint   `json:"study_session_id" binding:"required"`
	Message        string `json:"message" binding:"required,max=4000"`
}

// swagger:model StudyMessageResponse
type StudyMessageResponse struct {
	StudySessionID uint      `json:"study_session_id"`
	MessageID      uint      `json:"message_id"`
	MessageText    string    `json:"message_text"`
	IsFromStudent  bool      `json:"is_from_student"`
	CreatedAt      time.Time `json:"created_at"`
}

// Start godoc
// @Summary Start a tutoring session
// @Tags study
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body StartSessionRequest true "Teacher persona and seed materials"
// @Success 201 {object} util.Response{data=service.StudyReply} "Created"
// @Failure 400 {object} util.Response "Bad Request"
// @Router /api/study/start [post]
func (c *StudyController) Start(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req StartSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	reply, err := c.StudyService.StartStudy(ctx.Request.Context(), userID, service.StartStudyInput{
		TeacherName:        req.TeacherName,
		TeacherDescription: req.TeacherDescription,
		Subject:            req.Subject,
		Materials:          req.Materials,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, reply)
}

// Message godoc
// @Summary Ask the tutor
// @Tags study
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body StudyMessageRequest true "Student message"
// @Success 200 {object} util.Response{data=service.StudyReply} "Success"
// @Failure 400 {object} util.Response "Session is not active"
// @Failure 403 {object} util.Response "Forbidden"
// @Failure 404 {object} util.Response "Not Found"
// @Failure 502 {object} util.Response "Model unavailable"
// @Router /api/study/message [post]
func (c *StudyController) Message(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req StudyMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	reply, err := c.StudyService.SendMessage(ctx.Request.Context(), userID, req.StudySessionID, req.Message)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, reply)
}

// Messages godoc
// @Summary Tutoring transcript
// @Tags study
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "Study session ID"
// @Success 200 {object} util.Response{data=[]StudyMessageResponse} "Success"
// @Failure 403 {object} util.Response "Forbidden"
// @Failure 404 {object} util.Response "Not Found"
// @Router /api/study/{id}/messages [get]
func (c *StudyController) Messages(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	messages, err := c.StudyService.ListMessages(ctx.Request.Context(), userID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	resp := make([]StudyMessageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, StudyMessageResponse{
			StudySessionID: m.StudySessionID,
			MessageID:      m.ID,
			MessageText:    m.Content,
			IsFromStudent:  m.Role == model.MessageStudent,
			CreatedAt:      m.CreatedAt,
		})
	}
	util.Success(ctx, resp)
}

// List godoc
// @Summary List own tutoring sessions
// @Tags study
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.StudySession} "Success"
// @Router /api/study [get]
func (c *StudyController) List(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	sessions, err := c.StudyService.ListSessions(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sessions)
}

// Complete godoc
// @Summary Close a tutoring session
// @Tags study
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "Study session ID"
// @Success 200 {object} util.Response "Success"
// @Failure 400 {object} util.Response "Session is not active"
// @Failure 403 {object} util.Response "Forbidden"
// @Router /api/study/{id}/complete [post]
func (c *StudyController) Complete(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.StudyService.CompleteStudy(ctx.Request.Context(), userID, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"study_session_id": id, "status": model.StudyCompleted})
}
