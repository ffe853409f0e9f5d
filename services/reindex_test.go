package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-chatbot-api/internal/blob"
	"property-chatbot-api/internal/docintel"
	"property-chatbot-api/models"
)

type fakeBlobs struct {
	items []blob.Item
	data  map[string][]byte
}

func (f *fakeBlobs) Container() string { return "filescontainer" }

func (f *fakeBlobs) List(context.Context, ...string) ([]blob.Item, error) { return f.items, nil }

func (f *fakeBlobs) Download(_ context.Context, name string) ([]byte, error) {
	d, ok := f.data[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (f *fakeBlobs) BlobURL(name string) string { return "https://acct.blob/filescontainer/" + name }

type fakeIndex struct {
	cleared  bool
	uploads  [][]models.IndexDocument
	titles   []string
	existing int
}

func (f *fakeIndex) ClearIndex(context.Context) (int, error) {
	f.cleared = true
	return f.existing, nil
}

func (f *fakeIndex) UploadDocuments(_ context.Context, docs []models.IndexDocument) (int, error) {
	f.uploads = append(f.uploads, append([]models.IndexDocument(nil), docs...))
	return len(docs), nil
}

func (f *fakeIndex) ListTitles(context.Context) ([]string, error) { return f.titles, nil }

type constEmbedder struct{}

func (constEmbedder) EmbedBatch(_ context.Context, texts []string, _ int) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i)}
	}
	return out
}

// pageSplitter treats every "|" separated segment of the blob as a page.
type pageSplitter struct{}

func (pageSplitter) Extract(_ context.Context, content []byte, filename, _ string) (*docintel.Extraction, error) {
	var pages []models.PageText
	for i, p := range strings.Split(string(content), "|") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pages = append(pages, models.PageText{PageNumber: i + 1, Text: p})
	}
	if len(pages) == 0 {
		return nil, docintel.ErrExtractionFailed
	}
	return &docintel.Extraction{PageTexts: pages, PageCount: len(pages), Filename: filename}, nil
}

func TestReindexBuildsChunksWithPages(t *testing.T) {
	blobs := &fakeBlobs{
		items: []blob.Item{{Name: "Handbook.pdf"}, {Name: "Empty.pdf"}, {Name: "Missing.pdf"}},
		data: map[string][]byte{
			"Handbook.pdf": []byte("Page one text.|Page two text."),
			"Empty.pdf":    []byte("|"),
		},
	}
	index := &fakeIndex{existing: 12}
	r := NewReindexer(blobs, index, constEmbedder{}, pageSplitter{}, nil, 1000, 200)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, index.cleared)
	assert.Equal(t, 12, summary.Deleted)
	assert.Equal(t, 3, summary.DocumentsFound)
	assert.Equal(t, 1, summary.DocumentsProcessed)
	assert.Equal(t, 2, summary.DocumentsSkipped)
	assert.Equal(t, 1, summary.ChunksCreated)
	assert.Equal(t, 1, summary.ChunksUploaded)

	require.Len(t, index.uploads, 1)
	doc := index.uploads[0][0]
	assert.Equal(t, "blob://filescontainer/Handbook.pdf", doc.ParentID)
	assert.Equal(t, ChunkID(doc.ParentID, 0), doc.ChunkID)
	assert.Equal(t, "Handbook.pdf", doc.Title)
	assert.Equal(t, "Handbook.pdf", doc.MetadataStorageName)
	assert.Equal(t, "https://acct.blob/filescontainer/Handbook.pdf", doc.URL)
	assert.Equal(t, "Page one text. Page two text.", doc.Content)
	assert.Equal(t, doc.Content, doc.MergedContent)
	assert.Equal(t, 2, doc.PageNumber)
	assert.Equal(t, []float32{0}, doc.ContentVector)
}

func TestReindexUploadsInBatchesOfFifty(t *testing.T) {
	page := strings.Repeat("Sentence of policy text. ", 2400)
	blobs := &fakeBlobs{
		items: []blob.Item{{Name: "Big.pdf"}},
		data:  map[string][]byte{"Big.pdf": []byte(page)},
	}
	index := &fakeIndex{}
	r := NewReindexer(blobs, index, constEmbedder{}, pageSplitter{}, nil, 1000, 200)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Greater(t, summary.ChunksCreated, indexUploadBatch)
	for _, batch := range index.uploads[:len(index.uploads)-1] {
		assert.Len(t, batch, indexUploadBatch)
	}
	assert.Equal(t, summary.ChunksCreated, summary.ChunksUploaded)
}

func TestReconcile(t *testing.T) {
	blobs := &fakeBlobs{items: []blob.Item{{Name: "A.pdf"}, {Name: "B.pdf"}}}
	index := &fakeIndex{titles: []string{"B.pdf", "Old.pdf"}}
	r := NewReindexer(blobs, index, constEmbedder{}, pageSplitter{}, nil, 1000, 200)

	missing, orphaned, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.pdf"}, missing)
	assert.Equal(t, []string{"Old.pdf"}, orphaned)
}
