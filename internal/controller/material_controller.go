package controller

import (
	"strings"

	"oral_exam_backend/internal/service"
	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MaterialController struct {
	MaterialService *service.MaterialService
	MaxUpload       int64
}

func NewMaterialController(materialService *service.MaterialService, maxUploadMB int64) *MaterialController {
	return &MaterialController{
		MaterialService: materialService,
		MaxUpload:       maxUploadMB << 20,
	}
}

// swagger:model MaterialRequest
type MaterialRequest struct {
	Subject string `json:"subject" binding:"required,max=200"`
	Content string `json:"content" binding:"required"`
}

// Create godoc
// @Summary Add subject material
// @Tags materials
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body MaterialRequest true "Material text"
// @Success 201 {object} util.Response{data=model.SubjectMaterial} "Created"
// @Failure 400 {object} util.Response "Bad Request"
// @Router /api/materials [post]
func (c *MaterialController) Create(ctx *gin.Context) {
	var req MaterialRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	material, err := c.MaterialService.AddText(ctx.Request.Context(), req.Subject, req.Content)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, material)
}

// Upload godoc
// @Summary Upload a material document
// @Description Accepts plain text or markdown; form feeds separate pages
// @Tags materials
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   subject formData string true "Subject"
// @Param   file formData file true "Text or markdown file"
// @Success 201 {object} util.Response{data=object} "Created"
// @Failure 400 {object} util.Response "Bad Request"
// @Router /api/materials/upload [post]
func (c *MaterialController) Upload(ctx *gin.Context) {
	subject := strings.TrimSpace(ctx.PostForm("subject"))
	if subject == "" {
		util.BadRequest(ctx, "subject is required")
		return
	}

	header, data, ok := readUpload(ctx, "file", c.MaxUpload)
	if !ok {
		return
	}

	res, err := c.MaterialService.UploadFile(ctx.Request.Context(), subject, header.Filename, data)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{
		"id":      res.Material.ID,
		"subject": res.Material.Subject,
		"chunks":  res.Chunks,
		"indexed": res.Indexed,
	})
}

// List godoc
// @Summary List subject materials
// @Description Without a subject, returns the known subjects
// @Tags materials
// @Produce  json
// @Security ApiKeyAuth
// @Param   subject query string false "Subject"
// @Success 200 {object} util.Response{data=[]model.SubjectMaterial} "Success"
// @Router /api/materials [get]
func (c *MaterialController) List(ctx *gin.Context) {
	subject := strings.TrimSpace(ctx.Query("subject"))
	if subject == "" {
		subjects, err := c.MaterialService.ListSubjects(ctx.Request.Context())
		if err != nil {
			util.HandleError(ctx, err)
			return
		}
		util.Success(ctx, gin.H{"subjects": subjects})
		return
	}

	materials, err := c.MaterialService.List(ctx.Request.Context(), subject)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, materials)
}

// Delete godoc
// @Summary Delete all materials of a subject
// @Tags materials
// @Produce  json
// @Security ApiKeyAuth
// @Param   subject query string true "Subject"
// @Success 200 {object} util.Response{data=object} "Success"
// @Router /api/materials [delete]
func (c *MaterialController) Delete(ctx *gin.Context) {
	subject := strings.TrimSpace(ctx.Query("subject"))
	if subject == "" {
		util.BadRequest(ctx, "subject is required")
		return
	}

	n, err := c.MaterialService.Delete(ctx.Request.Context(), subject)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"subject": subject, "deleted": n})
}
