package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oral_exam_backend/internal/model"
	"oral_exam_backend/internal/util"
	"oral_exam_backend/pkg/logger"
	"oral_exam_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ContextSeparator joins retrieved chunks and seed materials.
	ContextSeparator = "\n\n---\n\n"

	SourceText = "text_upload"
	SourceSeed = "session_seed"
	SourceFile = "file_upload"

	embedBatchSize = 64
	cachePrefix    = "retrieval:"
)

type Options struct {
	SearchLimit  int
	ChunkSize    int
	ChunkOverlap int
	CacheTTL     time.Duration
}

// Service is the retrieval port. The vector store is authoritative when it
// answers; the relational store backs it up. Writes go to both, the vector
// side best-effort.
type Service struct {
	embedder  Embedder
	vectors   VectorStore
	materials MaterialStore
	cache     *redis.Client
	opts      Options
}

// NewService builds the port. embedder and vectors may both be nil to run
// on the relational store alone; cache may be nil.
func NewService(embedder Embedder, vectors VectorStore, materials MaterialStore, cache *redis.Client, opts Options) *Service {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 10
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
		opts.ChunkOverlap = 200
	}
	return &Service{
		embedder:  embedder,
		vectors:   vectors,
		materials: materials,
		cache:     cache,
		opts:      opts,
	}
}

func (s *Service) vectorEnabled() bool {
	return s.embedder != nil && s.vectors != nil
}

// Retrieve returns subject text relevant to query, or to the subject itself
// when query is empty. Nothing found yields "" and no error; only a failing
// relational store is an error.
func (s *Service) Retrieve(ctx context.Context, subject, query string) (string, error) {
	cacheable := query == "" && s.cache != nil
	if cacheable {
		if text, err := s.cache.Get(ctx, cachePrefix+subject).Result(); err == nil {
			monitoring.RetrievalSource.WithLabelValues("cache").Inc()
			return text, nil
		} else if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("Retrieval cache read failed", zap.String("subject", subject), zap.Error(err))
		}
	}

	text, source, err := s.retrieve(ctx, subject, query)
	if err != nil {
		return "", err
	}
	monitoring.RetrievalSource.WithLabelValues(source).Inc()

	if cacheable && text != "" {
		if err := s.cache.Set(ctx, cachePrefix+subject, text, s.opts.CacheTTL).Err(); err != nil {
			logger.Log.Warn("Retrieval cache write failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	return text, nil
}

func (s *Service) retrieve(ctx context.Context, subject, query string) (string, string, error) {
	if s.vectorEnabled() {
		text, err := s.search(ctx, subject, query)
		if err != nil {
			logger.Log.Warn("Vector search failed, falling back to stored materials",
				zap.String("subject", subject), zap.Error(err))
		} else if text != "" {
			return text, "vector", nil
		}
	}

	materials, err := s.materials.FindBySubject(ctx, subject)
	if err != nil {
		return "", "", fmt.Errorf("materials.FindBySubject > %w", err)
	}
	if len(materials) == 0 {
		return "", "none", nil
	}
	parts := make([]string, 0, len(materials))
	for _, m := range materials {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n"), "relational", nil
}

func (s *Service) search(ctx context.Context, subject, query string) (string, error) {
	if query == "" {
		query = subject
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embedder.Embed > %w", err)
	}
	if len(vectors) == 0 {
		return "", errors.New("embedder returned no vectors")
	}
	docs, err := s.vectors.Search(ctx, subject, vectors[0], s.opts.SearchLimit)
	if err != nil {
		return "", fmt.Errorf("vectors.Search > %w", err)
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Content != "" {
			parts = append(parts, d.Content)
		}
	}
	return strings.Join(parts, ContextSeparator), nil
}

// Save stores one material. The relational write must succeed; the vector
// write is logged and skipped on failure.
func (s *Service) Save(ctx context.Context, subject, content, source string) (*model.SubjectMaterial, error) {
	if strings.TrimSpace(content) == "" {
		return nil, util.ErrEmptyMaterial
	}

	if s.vectorEnabled() {
		doc := Document{
			ID:      uuid.NewString(),
			Subject: subject,
			Content: content,
			Meta:    map[string]any{"source": source},
		}
		if err := s.index(ctx, []Document{doc}); err != nil {
			logger.Log.Warn("Vector store write failed, material kept in database only",
				zap.String("subject", subject), zap.Error(err))
		}
	}

	material := &model.SubjectMaterial{Subject: subject, Content: content, Source: source}
	if err := s.materials.Create(ctx, material); err != nil {
		return nil, fmt.Errorf("materials.Create > %w", err)
	}
	s.invalidate(ctx, subject)
	return material, nil
}

// BuildContext assembles the opening context of a session: what is already
// known about the subject followed by the caller's seed materials. Each
// non-empty seed is saved as new material.
func (s *Service) BuildContext(ctx context.Context, subject string, seeds []string) (string, error) {
	retrieved, err := s.Retrieve(ctx, subject, "")
	if err != nil {
		return "", err
	}

	var parts []string
	if retrieved != "" {
		parts = append(parts, retrieved)
	}
	for _, seed := range seeds {
		if strings.TrimSpace(seed) == "" {
			continue
		}
		parts = append(parts, seed)
		if _, err := s.Save(ctx, subject, seed, SourceSeed); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, ContextSeparator), nil
}

type IngestResult struct {
	Material *model.SubjectMaterial
	Chunks   int
	Indexed  bool
}

// Ingest stores a multi-page document: the full text relationally and every
// page chunked into the vector store.
func (s *Service) Ingest(ctx context.Context, subject string, pages []string, meta map[string]any) (*IngestResult, error) {
	var docs []Document
	var full []string
	docID := uuid.NewString()
	for pageNum, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		full = append(full, page)
		for chunkNum, chunk := range Chunk(page, s.opts.ChunkSize, s.opts.ChunkOverlap) {
			chunkMeta := map[string]any{"page": pageNum + 1, "chunk": chunkNum + 1}
			for k, v := range meta {
				chunkMeta[k] = v
			}
			docs = append(docs, Document{
				ID:      docID,
				PointID: uuid.NewString(),
				Subject: subject,
				Content: chunk,
				Meta:    chunkMeta,
			})
		}
	}
	if len(full) == 0 {
		return nil, util.ErrEmptyMaterial
	}

	res := &IngestResult{Chunks: len(docs)}
	if s.vectorEnabled() {
		if err := s.index(ctx, docs); err != nil {
			logger.Log.Warn("Vector store ingestion failed, document kept in database only",
				zap.String("subject", subject), zap.Int("chunks", len(docs)), zap.Error(err))
		} else {
			res.Indexed = true
		}
	}

	source, _ := meta["source"].(string)
	if source == "" {
		source = SourceFile
	}
	res.Material = &model.SubjectMaterial{Subject: subject, Content: strings.Join(full, "\n\n"), Source: source}
	if err := s.materials.Create(ctx, res.Material); err != nil {
		return nil, fmt.Errorf("materials.Create > %w", err)
	}
	s.invalidate(ctx, subject)
	return res, nil
}

func (s *Service) index(ctx context.Context, docs []Document) error {
	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		batch := docs[start:end]
		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedder.Embed > %w", err)
		}
		if err := s.vectors.Upsert(ctx, batch, vectors); err != nil {
			return fmt.Errorf("vectors.Upsert > %w", err)
		}
	}
	return nil
}

// Delete removes every material of a subject from both stores.
func (s *Service) Delete(ctx context.Context, subject string) (int64, error) {
	if s.vectorEnabled() {
		if err := s.vectors.DeleteSubject(ctx, subject); err != nil {
			logger.Log.Warn("Vector store delete failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	n, err := s.materials.DeleteBySubject(ctx, subject)
	if err != nil {
		return 0, fmt.Errorf("materials.DeleteBySubject > %w", err)
	}
	s.invalidate(ctx, subject)
	return n, nil
}

// List returns the relational copy of a subject's materials.
func (s *Service) List(ctx context.Context, subject string) ([]model.SubjectMaterial, error) {
	return s.materials.FindBySubject(ctx, subject)
}

func (s *Service) invalidate(ctx context.Context, subject string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cachePrefix+subject).Err(); err != nil {
		logger.Log.Warn("Retrieval cache invalidation failed", zap.String("subject", subject), zap.Error(err))
	}
}
