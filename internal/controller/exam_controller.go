package controller

import (
	"fmt"
	"net/http"
	"time"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/service"
	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

// swagger:model StartSessionRequest
type StartSessionRequest struct {
	TeacherName        string   `json:"teacher_name" binding:"required,max=100"`
	Subject            string   `json:"subject" binding:"required,max=200"`
	TeacherDescription string   `json:"teacher_description"`
	Materials          []string `json:"materials"`
}

// swagger:model AnswerRequest
type AnswerRequest struct {
	ExamSessionID  uint   `json:"exam_session_id" binding:"required"`
	QuestionID     uint   `json:"question_id" binding:"required"`
	AnswerAudioURL string `json:"answer_audio_url" binding:"required,url"`
}

// swagger:model QuestionResponse
type QuestionResponse struct {
	ExamSessionID    uint   `json:"exam_session_id"`
	QuestionID       uint   `json:"question_id"`
	QuestionText     string `json:"question_text"`
	QuestionAudioURL string `json:"question_audio_url"`
	QuestionIndex    int    `json:"question_index"`
	IsFollowUp       bool   `json:"is_follow_up"`
}

// swagger:model AnswerResponse
type AnswerResponse struct {
	ExamSessionID uint              `json:"exam_session_id"`
	AnswerID      uint              `json:"answer_id"`
	IsCorrect     bool              `json:"is_correct"`
	AIFeedback    string            `json:"ai_feedback"`
	TeacherMood   model.TeacherMood `json:"teacher_mood"`
	OffTopic      bool              `json:"is_off_topic"`
	NextQuestion  *QuestionResponse `json:"next_question"`
	ExamCompleted bool              `json:"exam_completed"`
}

// swagger:model ExamSummary
type ExamSummary struct {
	ID                   uint              `json:"id"`
	TeacherName          string            `json:"teacher_name"`
	Subject              string            `json:"subject"`
	Status               model.ExamStatus  `json:"status"`
	TeacherMood          model.TeacherMood `json:"teacher_mood"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	CreatedAt            time.Time         `json:"created_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

func questionResponse(q *model.ExamQuestion) (*QuestionResponse, error) {
	if q == nil {
		return nil, nil
	}
	var resp QuestionResponse
	if err := copier.Copy(&resp, q); err != nil {
		return nil, err
	}
	resp.QuestionID = q.ID
	return &resp, nil
}

// Start godoc
// @Summary Start an oral exam
// @Description Creates a session with a simulated teacher and returns the first question with audio
// @Tags exam
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body StartSessionRequest true "Teacher persona and seed materials"
// @Success 201 {object} util.Response{data=QuestionResponse} "Created"
// @Failure 400 {object} util.Response "Bad Request"
// @Failure 502 {object} util.Response "Model or speech service unavailable"
// @Router /api/exam/start [post]
func (c *ExamController) Start(ctx *gin.Context) {
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

	started, err := c.ExamService.StartExam(ctx.Request.Context(), userID, service.StartExamInput{
		TeacherName:        req.TeacherName,
		TeacherDescription: req.TeacherDescription,
		Subject:            req.Subject,
		Materials:          req.Materials,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	resp, err := questionResponse(started.Question)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, resp)
}

// Answer godoc
// @Summary Answer the current question
// @Description Transcribes the recorded answer, grades it and returns feedback with the next question if any
// @Tags exam
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body AnswerRequest true "Answer audio"
// @Success 200 {object} util.Response{data=AnswerResponse} "Success"
// @Failure 400 {object} util.Response "Session is not active"
// @Failure 403 {object} util.Response "Forbidden"
// @Failure 404 {object} util.Response "Not Found"
// @Failure 409 {object} util.Response "Question already answered"
// @Failure 502 {object} util.Response "Model or speech service unavailable"
// @Router /api/exam/answer [post]
func (c *ExamController) Answer(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.ExamService.SubmitAnswer(ctx.Request.Context(), userID, service.SubmitAnswerInput{
		SessionID:  req.ExamSessionID,
		QuestionID: req.QuestionID,
		AudioURL:   req.AnswerAudioURL,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	next, err := questionResponse(res.NextQuestion)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, AnswerResponse{
		ExamSessionID: req.ExamSessionID,
		AnswerID:      res.Answer.ID,
		IsCorrect:     res.IsCorrect,
		AIFeedback:    res.Feedback,
		TeacherMood:   res.Mood,
		OffTopic:      res.OffTopic,
		NextQuestion:  next,
		ExamCompleted: res.ExamCompleted,
	})
}

// Status godoc
// @Summary Exam status
// @Tags exam
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "Exam session ID"
// @Success 200 {object} util.Response{data=service.ExamStatus} "Success"
// @Failure 403 {object} util.Response "Forbidden"
// @Failure 404 {object} util.Response "Not Found"
// @Router /api/exam/{id}/status [get]
func (c *ExamController) Status(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	status, err := c.ExamService.GetStatus(ctx.Request.Context(), userID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// Get godoc
// @Summary Exam transcript
// @Description Returns the session with every question and answer in order
// @Tags exam
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "Exam session ID"
// @Success 200 {object} util.Response{data=model.ExamSession} "Success"
// @Failure 403 {object} util.Response "Forbidden"
// @Failure 404 {object} util.Response "Not Found"
// @Router /api/exam/{id} [get]
func (c *ExamController) Get(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	session, err := c.ExamService.GetSession(ctx.Request.Context(), userID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// List godoc
// @Summary List own exams
// @Tags exam
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]ExamSummary} "Success"
// @Router /api/exam [get]
func (c *ExamController) List(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	sessions, err := c.ExamService.ListSessions(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	summaries := make([]ExamSummary, 0, len(sessions))
	if err := copier.Copy(&summaries, &sessions); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, summaries)
}

// Report godoc
// @Summary Download exam transcript as PDF
// @Tags exam
// @Produce  application/pdf
// @Security ApiKeyAuth
// @Param   id path int true "Exam session ID"
// @Success 200 {file} file "PDF document"
// @Failure 403 {object} util.Response "Forbidden"
// @Failure 404 {object} util.Response "Not Found"
// @Router /api/exam/{id}/report [get]
func (c *ExamController) Report(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	pdf, err := c.ExamService.ExportReport(ctx.Request.Context(), userID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="exam-%d.pdf"`, id))
	ctx.Data(http.StatusOK, "application/pdf", pdf)
}
