package service

import (
	"context"
	"testing"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/retrieval"
	"oral_exam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIndex struct {
	subject string
	source  string
	pages   []string
	meta    map[string]any
}

func (r *recordingIndex) Save(_ context.Context, subject, content, source string) (*model.SubjectMaterial, error) {
	r.subject, r.source = subject, source
	return &model.SubjectMaterial{Subject: subject, Content: content, Source: source}, nil
}

func (r *recordingIndex) Ingest(_ context.Context, subject string, pages []string, meta map[string]any) (*retrieval.IngestResult, error) {
	r.subject, r.pages, r.meta = subject, pages, meta
	return &retrieval.IngestResult{Chunks: len(pages), Indexed: true}, nil
}

func (r *recordingIndex) List(_ context.Context, subject string) ([]model.SubjectMaterial, error) {
	r.subject = subject
	return nil, nil
}

func (r *recordingIndex) Delete(_ context.Context, subject string) (int64, error) {
	r.subject = subject
	return 3, nil
}

type fixedSubjects []string

func (f fixedSubjects) Subjects(context.Context) ([]string, error) { return f, nil }

func TestMaterialService_AddText(t *testing.T) {
	index := &recordingIndex{}
	svc := NewMaterialService(index, fixedSubjects{"Физика"})

	m, err := svc.AddText(context.Background(), "  Физика ", "Закон Ома")
	require.NoError(t, err)
	assert.Equal(t, "Физика", m.Subject)
	assert.Equal(t, retrieval.SourceText, index.source)

	subjects, err := svc.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Физика"}, subjects)
}

func TestMaterialService_UploadFile(t *testing.T) {
	index := &recordingIndex{}
	svc := NewMaterialService(index, nil)

	res, err := svc.UploadFile(context.Background(), "Физика", "ohm.md", []byte("# Закон Ома\r\nI = U/R\fСтраница два"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, []string{"# Закон Ома\nI = U/R", "Страница два"}, index.pages)
	assert.Equal(t, "ohm.md", index.meta["filename"])
	assert.Equal(t, retrieval.SourceFile, index.meta["source"])

	_, err = svc.UploadFile(context.Background(), "Физика", "scan.png", []byte("\x89PNG\r\n\x1a\n0000"))
	assert.ErrorIs(t, err, util.ErrInvalidFileType)
}

func TestMaterialService_Delete(t *testing.T) {
	index := &recordingIndex{}
	svc := NewMaterialService(index, nil)

	n, err := svc.Delete(context.Background(), " Физика")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "Физика", index.subject)
}
