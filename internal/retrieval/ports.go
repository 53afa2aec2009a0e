package retrieval

import (
	"context"

	"oral_exam_backend/internal/model"
)

// Embedder turns text into vectors of the collection's dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Document is one chunk of subject material as stored in the vector store.
// ID names the source document and is shared by all of its chunks; PointID,
// when set, is the chunk's own key in the store.
type Document struct {
	ID      string
	PointID string
	Subject string
	Content string
	Meta    map[string]any
}

// VectorStore is semantic top-k search over subject material.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, docs []Document, vectors [][]float32) error
	Search(ctx context.Context, subject string, vector []float32, limit int) ([]Document, error)
	DeleteSubject(ctx context.Context, subject string) error
}

// MaterialStore is the relational copy of subject material.
type MaterialStore interface {
	Create(ctx context.Context, material *model.SubjectMaterial) error
	FindBySubject(ctx context.Context, subject string) ([]model.SubjectMaterial, error)
	DeleteBySubject(ctx context.Context, subject string) (int64, error)
}
