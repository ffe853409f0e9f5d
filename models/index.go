package models

// IndexDocument is one chunk in the search index.
type IndexDocument struct {
	ChunkID                    string    `json:"chunk_id"`
	ParentID                   string    `json:"parent_id"`
	ChunkNumber                int       `json:"chunk_number"`
	PageNumber                 int       `json:"page_number"`
	Title                      string    `json:"title"`
	Content                    string    `json:"content"`
	MergedContent              string    `json:"merged_content"`
	Filepath                   string    `json:"filepath"`
	URL                        string    `json:"url"`
	MetadataStorageName        string    `json:"metadata_storage_name"`
	MetadataStoragePath        string    `json:"metadata_storage_path"`
	MetadataStorageContentType string    `json:"metadata_storage_content_type"`
	ContentVector              []float32 `json:"content_vector"`
}

// IndexerStatus mirrors the indexer state reported by the search service.
type IndexerStatus struct {
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	LastResult *IndexerRunResult `json:"last_result"`
}

type IndexerRunResult struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}
