package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-chatbot-api/models"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) []float32 { return []float32{0.1, 0.2} }

type stubSigner struct{}

func (stubSigner) DownloadURL(name string) (string, error) { return "https://signed/" + name, nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		Endpoint:             srv.URL,
		APIKey:               "search-key",
		IndexName:            "docs-index",
		IndexerName:          "docs-indexer",
		MaxChunksPerDocument: 2,
	}, srv.Client(), stubEmbedder{}, stubSigner{})
	c.retryInitial = time.Millisecond
	c.retryMax = 2 * time.Millisecond
	return c
}

func hit(parent, title, content string, page int) map[string]any {
	return map[string]any{
		"parent_id":             parent,
		"title":                 title,
		"content":               content,
		"page_number":           page,
		"chunk_number":          1,
		"metadata_storage_name": title,
	}
}

func TestSearchLimitsChunksPerDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "search-key", r.Header.Get("api-key"))
		assert.Equal(t, "/indexes/docs-index/docs/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.VectorQueries, 1)
		assert.Equal(t, 24, req.VectorQueries[0].K)
		assert.Equal(t, "content_vector", req.VectorQueries[0].Fields)
		assert.Equal(t, 15, req.Top)

		_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
			hit("p1", "Handbook.pdf", "one", 1),
			hit("p1", "Handbook.pdf", "two", 2),
			hit("p1", "Handbook.pdf", "three", 3),
			hit("p2", "Policy.pdf", "", 1),
			hit("p2", "Policy.pdf", "pets", 4),
			hit("p3", "Lease.pdf", "rent", 1),
		}})
	})

	docs, err := c.Search(context.Background(), "pet policy", 3)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "one", docs[0].Content)
	assert.Equal(t, "two", docs[1].Content)
	assert.Equal(t, "pets", docs[2].Content)
	assert.Equal(t, 4, docs[2].PageNumber)
	assert.Equal(t, models.SourceCompany, docs[2].SourceType)
	assert.Equal(t, "https://signed/Policy.pdf", docs[2].DownloadURL)
}

func TestSearchFallsBackToKeyword(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		atomic.AddInt32(&calls, 1)

		if len(req.VectorQueries) > 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, 6, req.Top)
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
			{"content": []any{"joined", "content"}, "parent_id": "x"},
			hit("p1", "Handbook.pdf", "keyword hit", 0),
		}})
	})

	docs, err := c.Search(context.Background(), "deposit", 2)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keyword hit", docs[0].Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchReturnsEmptyWhenEverythingFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	docs, err := c.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSearchTruncatesLongContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
			hit("p1", "Big.pdf", strings.Repeat("z", 6000), 1),
		}})
	})

	docs, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Content, 5000)
}

func TestExtractFilename(t *testing.T) {
	assert.Equal(t, "Title.pdf", ExtractFilename(map[string]any{"title": "Title.pdf", "filepath": "a/b.pdf"}))
	assert.Equal(t, "b.pdf", ExtractFilename(map[string]any{"title": "  ", "filepath": "a/b.pdf"}))
	assert.Equal(t, "Move Out Policy.pdf", ExtractFilename(map[string]any{
		"parent_id": "https://acct.blob.core.windows.net/filescontainer/Move%20Out%20Policy.pdf",
	}))
	assert.Equal(t, UnknownDocument, ExtractFilename(map[string]any{}))
}

func TestIndexerStatusAndRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/indexers/docs-indexer/status":
			_, _ = w.Write([]byte(`{"name":"docs-indexer","status":"running","lastResult":{"status":"success","errorMessage":null}}`))
		case "/indexers/docs-indexer/run":
			assert.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	status, err := c.IndexerStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "docs-indexer", status.Name)
	assert.Equal(t, "running", status.Status)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, "success", status.LastResult.Status)

	assert.NoError(t, c.RunIndexer(context.Background()))
}

func TestUploadDocumentsFallsBackToSingles(t *testing.T) {
	var batchSizes []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Value []map[string]any `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		batchSizes = append(batchSizes, len(body.Value))
		assert.Equal(t, "mergeOrUpload", body.Value[0]["@search.action"])

		if len(body.Value) > 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		key := body.Value[0]["chunk_id"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
			{"key": key, "status": key != "bad"},
		}})
	})

	docs := []models.IndexDocument{{ChunkID: "a"}, {ChunkID: "bad"}, {ChunkID: "c"}}
	stored, err := c.UploadDocuments(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, []int{3, 1, 1, 1}, batchSizes)
}

func TestListTitlesAndClearIndex(t *testing.T) {
	var deleted int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/indexes/docs-index/docs/search":
			_ = json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
				{"chunk_id": "k1", "title": "B.pdf"},
				{"chunk_id": "k2", "title": "A.pdf"},
				{"chunk_id": "k3", "title": "B.pdf"},
			}})
		case "/indexes/docs-index/docs/index":
			var body struct {
				Value []map[string]any `json:"value"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for _, v := range body.Value {
				assert.Equal(t, "delete", v["@search.action"])
			}
			deleted += len(body.Value)
			_, _ = w.Write([]byte(`{"value":[]}`))
		}
	})

	titles, err := c.ListTitles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, titles)

	n, err := c.ClearIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, deleted)
}

func TestListDocumentKeysPagesPastTenThousand(t *testing.T) {
	var skips []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "chunk_id", req.Select)
		skips = append(skips, req.Skip)

		n := req.Top
		if req.Skip >= 12000 {
			n = 10
		}
		page := make([]map[string]any, n)
		for i := range page {
			page[i] = map[string]any{"chunk_id": fmt.Sprintf("k%d", req.Skip+i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": page})
	})

	keys, err := c.ListDocumentKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 12010)
	assert.Len(t, skips, 13)
	assert.Equal(t, 12000, skips[len(skips)-1])
	assert.Equal(t, "k12009", keys[len(keys)-1])
}
