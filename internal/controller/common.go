package controller

import (
	"io"
	"mime/multipart"
	"net/http"

	"oral_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
)

func currentUserID(ctx *gin.Context) (uint, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		return 0, false
	}
	return claims.UserID, true
}

// pathID reads a numeric path parameter and answers 400 when it is invalid.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, ok := util.ParseID(ctx.Param(name))
	if !ok {
		util.BadRequest(ctx, "invalid "+name)
	}
	return id, ok
}

// readUpload reads the named multipart file into memory, refusing files
// larger than maxBytes.
func readUpload(ctx *gin.Context, field string, maxBytes int64) (*multipart.FileHeader, []byte, bool) {
	header, err := ctx.FormFile(field)
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return nil, nil, false
	}
	if header.Size > maxBytes {
		util.Error(ctx, http.StatusRequestEntityTooLarge, "file is too large")
		return nil, nil, false
	}

	file, err := header.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return nil, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		util.LogInternalError(ctx, err)
		return nil, nil, false
	}
	if int64(len(data)) > maxBytes {
		util.Error(ctx, http.StatusRequestEntityTooLarge, "file is too large")
		return nil, nil, false
	}
	return header, data, true
}
