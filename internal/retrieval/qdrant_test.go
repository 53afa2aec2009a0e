package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"oral_exam_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQdrant(t *testing.T, handler http.HandlerFunc) *QdrantStore {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	store := NewQdrantStore(&config.VectorConfig{
		URL:        server.URL,
		APIKey:     "secret",
		Collection: "subject_materials",
		Dimension:  3,
	})
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestQdrantStore_EnsureCollection(t *testing.T) {
	t.Run("creates missing collection", func(t *testing.T) {
		var created map[string]any
		store := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "secret", r.Header.Get("api-key"))
			assert.Equal(t, "/collections/subject_materials", r.URL.Path)
			switch r.Method {
			case http.MethodGet:
				w.WriteHeader(http.StatusNotFound)
			case http.MethodPut:
				require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
				_, _ = w.Write([]byte(`{"result": true, "status": "ok"}`))
			}
		})

		require.NoError(t, store.EnsureCollection(context.Background()))
		vectors := created["vectors"].(map[string]any)
		assert.Equal(t, float64(3), vectors["size"])
		assert.Equal(t, "Cosine", vectors["distance"])
	})

	t.Run("existing collection is left alone", func(t *testing.T) {
		store := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte(`{"result": {"status": "green"}, "status": "ok"}`))
		})
		require.NoError(t, store.EnsureCollection(context.Background()))
	})

	t.Run("server error", func(t *testing.T) {
		store := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		assert.ErrorContains(t, store.EnsureCollection(context.Background()), "response error 500")
	})
}

func TestQdrantStore_UpsertAndSearch(t *testing.T) {
	var upserted struct {
		Points []qdrantPoint `json:"points"`
	}
	var search qdrantSearchRequest

	store := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/subject_materials/points":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			_, _ = w.Write([]byte(`{"result": {"status": "completed"}, "status": "ok"}`))
		case "/collections/subject_materials/points/search":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&search))
			_, _ = w.Write([]byte(`{"status": "ok", "result": [
				{"id": "a", "score": 0.91, "payload": {"subject": "Биология", "content": "Фотосинтез", "document_id": "doc-1", "page": 2}}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	doc := Document{ID: "doc-1", Subject: "Биология", Content: "Фотосинтез", Meta: map[string]any{"page": 2}}
	require.NoError(t, store.Upsert(context.Background(), []Document{doc}, [][]float32{{0.1, 0.2, 0.3}}))

	require.Len(t, upserted.Points, 1)
	assert.Equal(t, pointID(doc), upserted.Points[0].ID)
	assert.Equal(t, "Биология", upserted.Points[0].Payload["subject"])
	assert.Equal(t, "doc-1", upserted.Points[0].Payload["document_id"])

	docs, err := store.Search(context.Background(), "Биология", []float32{0.1, 0.2, 0.3}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Фотосинтез", docs[0].Content)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, float64(2), docs[0].Meta["page"])

	assert.Equal(t, 10, search.Limit)
	assert.True(t, search.WithPayload)
	require.NotNil(t, search.Filter)
	assert.Equal(t, "subject", search.Filter.Must[0].Key)
	assert.Equal(t, "Биология", search.Filter.Must[0].Match["value"])
}

func TestQdrantStore_UpsertRejectsMismatch(t *testing.T) {
	store := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	err := store.Upsert(context.Background(), []Document{{ID: "x"}}, nil)
	assert.ErrorContains(t, err, "1 documents but 0 vectors")
}

func TestQdrantStore_DeleteSubject(t *testing.T) {
	var body map[string]qdrantFilter
	store := newTestQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/subject_materials/points/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"result": {"status": "completed"}, "status": "ok"}`))
	})

	require.NoError(t, store.DeleteSubject(context.Background(), "Химия"))
	assert.Equal(t, "Химия", body["filter"].Must[0].Match["value"])
}

func TestPointIDIsStable(t *testing.T) {
	a := Document{ID: "doc", Content: "одинаковый текст"}
	assert.Equal(t, pointID(a), pointID(a))
	assert.NotEqual(t, pointID(a), pointID(Document{ID: "doc", Content: "другой текст"}))
}

func TestPointIDPrefersChunkKey(t *testing.T) {
	a := Document{ID: "doc", PointID: "5f0c6a52-5b0e-4c4e-9d7e-1f1f3b7d2a10", Content: "одинаковый текст"}
	b := Document{ID: "doc", PointID: "0b4a8c1e-2d3f-4a5b-8c7d-9e0f1a2b3c4d", Content: "одинаковый текст"}
	assert.Equal(t, a.PointID, pointID(a))
	assert.NotEqual(t, pointID(a), pointID(b))
}
