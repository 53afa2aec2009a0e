package service

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/retrieval"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"

	"go.uber.org/zap"
)

// MaterialIndex is the write side of retrieval. retrieval.Service
// implements it.
type MaterialIndex interface {
	Save(ctx context.Context, subject, content, source string) (*model.SubjectMaterial, error)
	Ingest(ctx context.Context, subject string, pages []string, meta map[string]any) (*retrieval.IngestResult, error)
	List(ctx context.Context, subject string) ([]model.SubjectMaterial, error)
	Delete(ctx context.Context, subject string) (int64, error)
}

type SubjectLister interface {
	Subjects(ctx context.Context) ([]string, error)
}

type MaterialService struct {
	Index    MaterialIndex
	Subjects SubjectLister
}

func NewMaterialService(index MaterialIndex, subjects SubjectLister) *MaterialService {
	return &MaterialService{Index: index, Subjects: subjects}
}

func (s *MaterialService) AddText(ctx context.Context, subject, content string) (*model.SubjectMaterial, error) {
	return s.Index.Save(ctx, strings.TrimSpace(subject), content, retrieval.SourceText)
}

// UploadFile ingests a plain text or markdown document. Form feeds split
// pages; a file without them is one page.
func (s *MaterialService) UploadFile(ctx context.Context, subject, filename string, data []byte) (*retrieval.IngestResult, error) {
	if _, err := util.ValidateMimeType(bytes.NewReader(data), util.AllowedMaterialTypes); err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, util.ErrInvalidFileType
	}

	pages := SplitPages(string(data))
	res, err := s.Index.Ingest(ctx, strings.TrimSpace(subject), pages, map[string]any{
		"source":   retrieval.SourceFile,
		"filename": filename,
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Material file ingested",
		zap.String("subject", subject),
		zap.String("filename", filename),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", res.Chunks),
		zap.Bool("indexed", res.Indexed))
	return res, nil
}

func SplitPages(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\f")
}

func (s *MaterialService) List(ctx context.Context, subject string) ([]model.SubjectMaterial, error) {
	return s.Index.List(ctx, strings.TrimSpace(subject))
}

func (s *MaterialService) ListSubjects(ctx context.Context) ([]string, error) {
	return s.Subjects.Subjects(ctx)
}

func (s *MaterialService) Delete(ctx context.Context, subject string) (int64, error) {
	return s.Index.Delete(ctx, strings.TrimSpace(subject))
}
