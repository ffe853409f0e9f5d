package search

import (
	"context"
	"fmt"
	"sort"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
)

const (
	uploadBatchSize = 50
	deleteBatchSize = 1000
	listPageSize    = 1000
	maxListedDocs   = 100000 // the service rejects a larger $skip
)

type indexerStatusResponse struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	LastResult *struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"lastResult"`
}

// IndexerStatus reports the configured indexer and its last run.
func (c *Client) IndexerStatus(ctx context.Context) (*models.IndexerStatus, error) {
	var resp indexerStatusResponse
	if err := c.do(ctx, "GET", "/indexers/"+c.opts.IndexerName+"/status", nil, &resp); err != nil {
		logger.Error("Error getting indexer status", "indexer", c.opts.IndexerName, "error", err)
		return nil, err
	}
	status := &models.IndexerStatus{Name: resp.Name, Status: resp.Status}
	if resp.LastResult != nil {
		status.LastResult = &models.IndexerRunResult{
			Status:       resp.LastResult.Status,
			ErrorMessage: resp.LastResult.ErrorMessage,
		}
	}
	return status, nil
}

// RunIndexer starts an on-demand indexer run.
func (c *Client) RunIndexer(ctx context.Context) error {
	if err := c.do(ctx, "POST", "/indexers/"+c.opts.IndexerName+"/run", nil, nil); err != nil {
		logger.Error("Error running indexer", "indexer", c.opts.IndexerName, "error", err)
		return err
	}
	logger.Info("Indexer triggered successfully", "indexer", c.opts.IndexerName)
	return nil
}

type indexBatchResponse struct {
	Value []struct {
		Key          string `json:"key"`
		Status       bool   `json:"status"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"value"`
}

type indexAction struct {
	Action string `json:"@search.action"`
	models.IndexDocument
}

type deleteAction struct {
	Action  string `json:"@search.action"`
	ChunkID string `json:"chunk_id"`
}

// UploadDocuments writes docs in batches of 50. A failed batch is retried one
// document at a time so one bad chunk does not drop its neighbours. It
// returns the number of documents stored.
func (c *Client) UploadDocuments(ctx context.Context, docs []models.IndexDocument) (int, error) {
	stored := 0
	for start := 0; start < len(docs); start += uploadBatchSize {
		end := start + uploadBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		n, err := c.indexBatch(ctx, batch)
		if err == nil {
			stored += n
			continue
		}
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}

		logger.Warn("Batch upload failed, retrying individually", "batch_start", start, "error", err)
		for _, d := range batch {
			n, err := c.indexBatch(ctx, []models.IndexDocument{d})
			if err != nil {
				logger.Error("Failed to upload chunk", "chunk_id", d.ChunkID, "error", err)
				continue
			}
			stored += n
		}
	}
	return stored, nil
}

func (c *Client) indexBatch(ctx context.Context, docs []models.IndexDocument) (int, error) {
	actions := make([]indexAction, len(docs))
	for i, d := range docs {
		actions[i] = indexAction{Action: "mergeOrUpload", IndexDocument: d}
	}

	var resp indexBatchResponse
	err := c.doWithRetry(ctx, "POST", "/indexes/"+c.opts.IndexName+"/docs/index",
		map[string]any{"value": actions}, &resp)
	if err != nil {
		return 0, err
	}

	ok := 0
	for _, r := range resp.Value {
		if r.Status {
			ok++
		} else {
			logger.Warn("Index rejected chunk", "key", r.Key, "error", r.ErrorMessage)
		}
	}
	if ok == 0 && len(docs) > 0 {
		return 0, fmt.Errorf("no documents accepted in batch of %d", len(docs))
	}
	return ok, nil
}

// DeleteDocuments removes chunks by key in batches of 1000.
func (c *Client) DeleteDocuments(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		actions := make([]deleteAction, 0, end-start)
		for _, k := range keys[start:end] {
			actions = append(actions, deleteAction{Action: "delete", ChunkID: k})
		}
		if err := c.doWithRetry(ctx, "POST", "/indexes/"+c.opts.IndexName+"/docs/index",
			map[string]any{"value": actions}, nil); err != nil {
			return fmt.Errorf("delete batch at %d: %w", start, err)
		}
	}
	return nil
}

// ClearIndex deletes every chunk and returns how many were removed.
func (c *Client) ClearIndex(ctx context.Context) (int, error) {
	keys, err := c.ListDocumentKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.DeleteDocuments(ctx, keys); err != nil {
		return 0, err
	}
	logger.Info("Cleared search index", "index", c.opts.IndexName, "deleted", len(keys))
	return len(keys), nil
}

// ListDocumentKeys returns every chunk_id in the index.
func (c *Client) ListDocumentKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := c.scan(ctx, "chunk_id", func(hit map[string]any) {
		if k := stringField(hit, "chunk_id"); k != "" {
			keys = append(keys, k)
		}
	})
	return keys, err
}

// ListTitles returns the sorted unique document names in the index.
func (c *Client) ListTitles(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	err := c.scan(ctx, "title,filepath,parent_id", func(hit map[string]any) {
		if name := ExtractFilename(hit); name != UnknownDocument {
			seen[name] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(seen))
	for t := range seen {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles, nil
}

// scan pages through all documents with the given select list.
func (c *Client) scan(ctx context.Context, fields string, fn func(map[string]any)) error {
	for skip := 0; skip < maxListedDocs; skip += listPageSize {
		var resp searchResponse
		req := searchRequest{Search: "*", Top: listPageSize, Skip: skip, Select: fields}
		if err := c.doWithRetry(ctx, "POST", "/indexes/"+c.opts.IndexName+"/docs/search", req, &resp); err != nil {
			return err
		}
		for _, hit := range resp.Value {
			fn(hit)
		}
		if len(resp.Value) < listPageSize {
			return nil
		}
	}
	return nil
}
