package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"property-chatbot-api/internal/blob"
	"property-chatbot-api/internal/docintel"
	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/telemetry"
	"property-chatbot-api/models"
)

const (
	indexUploadBatch = 50
	embedBatchSize   = 16

	// documents extracted and embedded concurrently during a rebuild
	defaultReindexParallelism = 4
)

// BlobSource lists and reads the company document container.
type BlobSource interface {
	Container() string
	List(ctx context.Context, extensions ...string) ([]blob.Item, error)
	Download(ctx context.Context, name string) ([]byte, error)
	BlobURL(name string) string
}

// IndexWriter is the search index surface the rebuild job writes to.
type IndexWriter interface {
	ClearIndex(ctx context.Context) (int, error)
	UploadDocuments(ctx context.Context, docs []models.IndexDocument) (int, error)
	ListTitles(ctx context.Context) ([]string, error)
}

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, batchSize int) [][]float32
}

// ReindexSummary reports what a rebuild did.
type ReindexSummary struct {
	Deleted            int     `json:"deleted"`
	DocumentsFound     int     `json:"documents_found"`
	DocumentsProcessed int     `json:"documents_processed"`
	DocumentsSkipped   int     `json:"documents_skipped"`
	ChunksCreated      int     `json:"chunks_created"`
	ChunksUploaded     int     `json:"chunks_uploaded"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

// Reindexer rebuilds the search index from the PDFs in blob storage with
// page-accurate chunks.
type Reindexer struct {
	blobs     BlobSource
	index     IndexWriter
	embedder  BatchEmbedder
	extractor docintel.Extractor
	metrics   *telemetry.Metrics

	chunkSize    int
	chunkOverlap int
	parallelism  int
}

func NewReindexer(blobs BlobSource, index IndexWriter, embedder BatchEmbedder, extractor docintel.Extractor, metrics *telemetry.Metrics, chunkSize, chunkOverlap int) *Reindexer {
	return &Reindexer{
		blobs:        blobs,
		index:        index,
		embedder:     embedder,
		extractor:    extractor,
		metrics:      metrics,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		parallelism:  defaultReindexParallelism,
	}
}

// WithParallelism sets how many documents are processed at once.
func (r *Reindexer) WithParallelism(n int) *Reindexer {
	if n > 0 {
		r.parallelism = n
	}
	return r
}

// Run clears the index and re-creates every chunk. A document that fails to
// download or extract is skipped; the run only fails when the index cannot be
// cleared or the container cannot be listed.
func (r *Reindexer) Run(ctx context.Context) (*ReindexSummary, error) {
	started := time.Now()
	summary := &ReindexSummary{}

	deleted, err := r.index.ClearIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear index: %w", err)
	}
	summary.Deleted = deleted

	items, err := r.blobs.List(ctx, ".pdf")
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	summary.DocumentsFound = len(items)
	logger.Info("Reindex started", "container", r.blobs.Container(), "pdfs", len(items), "deleted", deleted)

	var (
		mu      sync.Mutex
		pending []models.IndexDocument
	)
	// flush must be called with mu held.
	flush := func() {
		if len(pending) == 0 {
			return
		}
		stored, err := r.index.UploadDocuments(ctx, pending)
		if err != nil {
			logger.Error("Chunk upload failed", "chunks", len(pending), "error", err)
		}
		summary.ChunksUploaded += stored
		r.metrics.RecordIndexedChunks(stored, true)
		r.metrics.RecordIndexedChunks(len(pending)-stored, false)
		pending = pending[:0]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logger.Info("Processing document", "n", i+1, "of", len(items), "blob", item.Name)

			docs, err := r.documentChunks(gctx, item.Name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Skipping document", "blob", item.Name, "error", err)
				summary.DocumentsSkipped++
				return nil
			}
			summary.DocumentsProcessed++
			summary.ChunksCreated += len(docs)
			for _, d := range docs {
				pending = append(pending, d)
				if len(pending) >= indexUploadBatch {
					flush()
				}
			}
			return nil
		})
	}
	err = g.Wait()
	mu.Lock()
	flush()
	mu.Unlock()
	if err != nil {
		return summary, err
	}

	summary.DurationSeconds = time.Since(started).Seconds()
	logger.Info("Reindex complete",
		"processed", summary.DocumentsProcessed,
		"skipped", summary.DocumentsSkipped,
		"chunks_created", summary.ChunksCreated,
		"chunks_uploaded", summary.ChunksUploaded,
		"duration_s", summary.DurationSeconds,
	)
	return summary, nil
}

func (r *Reindexer) documentChunks(ctx context.Context, name string) ([]models.IndexDocument, error) {
	content, err := r.blobs.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	extraction, err := r.extractor.Extract(ctx, content, name, "application/pdf")
	if err != nil {
		return nil, err
	}
	if len(extraction.PageTexts) == 0 {
		return nil, fmt.Errorf("no text extracted")
	}

	chunks := ChunkPages(extraction.PageTexts, r.chunkSize, r.chunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced")
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors := r.embedder.EmbedBatch(ctx, texts, embedBatchSize)

	parentID := fmt.Sprintf("blob://%s/%s", r.blobs.Container(), name)
	url := r.blobs.BlobURL(name)
	docs := make([]models.IndexDocument, len(chunks))
	for i, c := range chunks {
		docs[i] = models.IndexDocument{
			ChunkID:                    ChunkID(parentID, c.ChunkNumber),
			ParentID:                   parentID,
			ChunkNumber:                c.ChunkNumber,
			PageNumber:                 c.PageNumber,
			Title:                      name,
			Content:                    c.Text,
			MergedContent:              c.Text,
			Filepath:                   name,
			URL:                        url,
			MetadataStorageName:        name,
			MetadataStoragePath:        parentID,
			MetadataStorageContentType: "application/pdf",
			ContentVector:              vectors[i],
		}
	}
	logger.Info("Chunked document", "blob", name, "pages", len(extraction.PageTexts), "chunks", len(docs))
	return docs, nil
}

// Reconcile compares the container with the index. Missing lists blobs with
// no indexed chunks; Orphaned lists indexed titles with no blob.
func (r *Reindexer) Reconcile(ctx context.Context) (missing, orphaned []string, err error) {
	items, err := r.blobs.List(ctx, ".pdf")
	if err != nil {
		return nil, nil, fmt.Errorf("list blobs: %w", err)
	}
	titles, err := r.index.ListTitles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list index titles: %w", err)
	}

	inIndex := make(map[string]bool, len(titles))
	for _, t := range titles {
		inIndex[t] = true
	}
	inBlob := make(map[string]bool, len(items))
	for _, it := range items {
		inBlob[it.Name] = true
		if !inIndex[it.Name] {
			missing = append(missing, it.Name)
		}
	}
	for _, t := range titles {
		if !inBlob[t] {
			orphaned = append(orphaned, t)
		}
	}
	sort.Strings(missing)
	sort.Strings(orphaned)
	return missing, orphaned, nil
}
