package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
)

const (
	UnknownDocument = "Unknown Document"
	maxChunkChars   = 5000
)

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type searchRequest struct {
	Search        string        `json:"search"`
	Top           int           `json:"top"`
	Skip          int           `json:"skip,omitempty"`
	Count         bool          `json:"count,omitempty"`
	Select        string        `json:"select,omitempty"`
	VectorQueries []vectorQuery `json:"vectorQueries,omitempty"`
}

type searchResponse struct {
	Count *int             `json:"@odata.count"`
	Value []map[string]any `json:"value"`
}

// Search runs a hybrid keyword and vector query and returns at most top
// chunks, no more than MaxChunksPerDocument from any one document. Any
// failure falls back to a keyword-only query.
func (c *Client) Search(ctx context.Context, query string, top int) ([]models.ContextDoc, error) {
	logger.Info("Hybrid search", "query", query, "target_results", top)

	vector := c.embedder.Embed(ctx, query)
	req := searchRequest{
		Search: query,
		Top:    top * 5,
		Count:  true,
		VectorQueries: []vectorQuery{{
			Kind:   "vector",
			Vector: vector,
			K:      top * 8,
			Fields: "content_vector",
		}},
	}

	var resp searchResponse
	if err := c.doWithRetry(ctx, "POST", "/indexes/"+c.opts.IndexName+"/docs/search", req, &resp); err != nil {
		logger.Error("Hybrid search error", "error", err)
		return c.keywordSearch(ctx, query, top), nil
	}

	results := c.shape(resp.Value, top, false)
	return results, nil
}

func (c *Client) keywordSearch(ctx context.Context, query string, top int) []models.ContextDoc {
	logger.Warn("Falling back to keyword-only search")

	var resp searchResponse
	req := searchRequest{Search: query, Top: top * 3, Count: true}
	if err := c.doWithRetry(ctx, "POST", "/indexes/"+c.opts.IndexName+"/docs/search", req, &resp); err != nil {
		logger.Error("Fallback search error", "error", err)
		return []models.ContextDoc{}
	}
	return c.shape(resp.Value, top, true)
}

// shape groups raw hits by parent document and converts them to context docs.
func (c *Client) shape(hits []map[string]any, top int, skipUnknown bool) []models.ContextDoc {
	perParent := map[string]int{}
	out := make([]models.ContextDoc, 0, top)

	for _, hit := range hits {
		parentID := stringField(hit, "parent_id")
		if parentID == "" {
			parentID = stringField(hit, "chunk_id")
		}
		if parentID == "" {
			parentID = fmt.Sprintf("standalone_%d", len(perParent))
		}
		if _, ok := perParent[parentID]; !ok {
			perParent[parentID] = 0
		}
		if perParent[parentID] >= c.opts.MaxChunksPerDocument {
			continue
		}

		content := contentField(hit)
		if content == "" {
			continue
		}
		filename := ExtractFilename(hit)
		if skipUnknown && filename == UnknownDocument {
			continue
		}

		doc := models.ContextDoc{
			Content:     truncate(content, maxChunkChars),
			Filename:    filename,
			SourceType:  models.SourceCompany,
			DownloadURL: c.downloadURL(stringField(hit, "metadata_storage_name")),
			ParentID:    parentID,
			ChunkNumber: intField(hit, "chunk_number", 0),
			PageNumber:  intField(hit, "page_number", 1),
		}
		perParent[parentID]++
		out = append(out, doc)

		if len(out) >= top {
			break
		}
	}

	logger.Info("Retrieval stats", "unique_documents", len(perParent), "chunks_retrieved", len(out))
	return out
}

func (c *Client) downloadURL(blobName string) string {
	if blobName == "" || c.signer == nil {
		return ""
	}
	link, err := c.signer.DownloadURL(blobName)
	if err != nil {
		logger.Warn("Error generating download URL", "blob", blobName, "error", err)
		return ""
	}
	return link
}

// ExtractFilename picks a readable name for a hit: the title, then the last
// segment of filepath, then the decoded last path segment of parent_id.
func ExtractFilename(hit map[string]any) string {
	if title := strings.TrimSpace(stringField(hit, "title")); title != "" {
		return stringField(hit, "title")
	}
	if fp := strings.TrimSpace(stringField(hit, "filepath")); fp != "" {
		fp = stringField(hit, "filepath")
		if i := strings.LastIndex(fp, "/"); i >= 0 {
			return fp[i+1:]
		}
		return fp
	}
	if pid := strings.TrimSpace(stringField(hit, "parent_id")); pid != "" {
		if name := nameFromParentID(pid); name != "" {
			return name
		}
	}
	return UnknownDocument
}

func nameFromParentID(parentID string) string {
	u, err := url.Parse(parentID)
	if err != nil {
		return ""
	}
	path := u.Path
	if !strings.Contains(path, "/") {
		return ""
	}
	last := path[strings.LastIndex(path, "/")+1:]
	if decoded, err := url.PathUnescape(last); err == nil {
		last = decoded
	}
	return last
}

func stringField(hit map[string]any, key string) string {
	if v, ok := hit[key].(string); ok {
		return v
	}
	return ""
}

func intField(hit map[string]any, key string, def int) int {
	switch v := hit[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// contentField flattens content that the index may store as a string list.
func contentField(hit map[string]any) string {
	switch v := hit["content"].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
