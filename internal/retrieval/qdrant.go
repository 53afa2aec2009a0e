package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/pkg/monitoring"

	"github.com/google/uuid"
	"resty.dev/v3"
)

const (
	payloadSubject = "subject"
	payloadContent = "content"
	payloadDocID   = "document_id"
)

// QdrantStore talks to Qdrant over its REST API.
type QdrantStore struct {
	httpClient *resty.Client
	collection string
	dimension  int
}

func NewQdrantStore(cfg *config.VectorConfig) *QdrantStore {
	client := resty.New()
	client.SetBaseURL(cfg.URL)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(30 * time.Second)
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	return &QdrantStore{
		httpClient: client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}
}

func (s *QdrantStore) Close() error {
	return s.httpClient.Close()
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string            `json:"key"`
	Match map[string]string `json:"match"`
}

func subjectFilter(subject string) *qdrantFilter {
	return &qdrantFilter{Must: []qdrantCondition{{
		Key:   payloadSubject,
		Match: map[string]string{"value": subject},
	}}}
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload"`
	Score   float64        `json:"score,omitempty"`
}

type qdrantSearchRequest struct {
	Vector      []float32     `json:"vector"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status string        `json:"status"`
}

func (s *QdrantStore) EnsureCollection(ctx context.Context) (err error) {
	defer monitoring.ObserveExternal("qdrant", "ensure_collection", time.Now(), &err)

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetPathParam("collection", s.collection).
		Get("/collections/{collection}")
	if err != nil {
		return fmt.Errorf("httpClient.Get > %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("response error %d: %s", resp.StatusCode(), resp.String())
	}

	resp, err = s.httpClient.R().
		SetContext(ctx).
		SetPathParam("collection", s.collection).
		SetBody(map[string]any{
			"vectors": map[string]any{"size": s.dimension, "distance": "Cosine"},
		}).
		Put("/collections/{collection}")
	if err != nil {
		return fmt.Errorf("httpClient.Put > %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("response error %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// pointID prefers the chunk's own key. Without one it is derived from the
// document and content prefix, so re-saving the same material overwrites it.
func pointID(doc Document) string {
	if doc.PointID != "" {
		return doc.PointID
	}
	prefix := []rune(doc.Content)
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(doc.ID+"_"+string(prefix))).String()
}

func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, vectors [][]float32) (err error) {
	defer monitoring.ObserveExternal("qdrant", "upsert", time.Now(), &err)

	if len(docs) != len(vectors) {
		return fmt.Errorf("upsert: %d documents but %d vectors", len(docs), len(vectors))
	}
	points := make([]qdrantPoint, 0, len(docs))
	for i, doc := range docs {
		payload := make(map[string]any, len(doc.Meta)+3)
		for k, v := range doc.Meta {
			payload[k] = v
		}
		payload[payloadSubject] = doc.Subject
		payload[payloadContent] = doc.Content
		payload[payloadDocID] = doc.ID
		points = append(points, qdrantPoint{ID: pointID(doc), Vector: vectors[i], Payload: payload})
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetPathParam("collection", s.collection).
		SetQueryParam("wait", "true").
		SetBody(map[string]any{"points": points}).
		Put("/collections/{collection}/points")
	if err != nil {
		return fmt.Errorf("httpClient.Put > %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("response error %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, subject string, vector []float32, limit int) (docs []Document, err error) {
	defer monitoring.ObserveExternal("qdrant", "search", time.Now(), &err)

	req := qdrantSearchRequest{Vector: vector, Limit: limit, WithPayload: true}
	if subject != "" {
		req.Filter = subjectFilter(subject)
	}
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetPathParam("collection", s.collection).
		SetBody(req).
		SetResult(&qdrantSearchResponse{}).
		Post("/collections/{collection}/points/search")
	if err != nil {
		return nil, fmt.Errorf("httpClient.Post > %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("response error %d: %s", resp.StatusCode(), resp.String())
	}

	body := resp.Result().(*qdrantSearchResponse)
	docs = make([]Document, 0, len(body.Result))
	for _, p := range body.Result {
		doc := Document{Meta: map[string]any{}}
		for k, v := range p.Payload {
			switch k {
			case payloadSubject:
				doc.Subject, _ = v.(string)
			case payloadContent:
				doc.Content, _ = v.(string)
			case payloadDocID:
				doc.ID, _ = v.(string)
			default:
				doc.Meta[k] = v
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *QdrantStore) DeleteSubject(ctx context.Context, subject string) (err error) {
	defer monitoring.ObserveExternal("qdrant", "delete", time.Now(), &err)

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetPathParam("collection", s.collection).
		SetQueryParam("wait", "true").
		SetBody(map[string]any{"filter": subjectFilter(subject)}).
		Post("/collections/{collection}/points/delete")
	if err != nil {
		return fmt.Errorf("httpClient.Post > %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("response error %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
