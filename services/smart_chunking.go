package services

import (
	"encoding/base64"
	"fmt"
	"strings"

	"property-chatbot-api/models"
)

// Breakpoint search windows measured back from the nominal chunk end.
const (
	sentenceSearchWindow = 200
	wordSearchWindow     = 100
)

// PageChunk is a slice of a document's text tagged with the page that holds
// its middle character.
type PageChunk struct {
	Text        string `json:"text"`
	PageNumber  int    `json:"page_number"`
	ChunkNumber int    `json:"chunk_number"`
}

// ChunkPages joins the pages with single spaces and cuts the result into
// overlapping chunks of at most size characters. A cut prefers the end of a
// sentence, then a space, before falling back to a hard split.
func ChunkPages(pages []models.PageText, size, overlap int) []PageChunk {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var text []rune
	var pageOf []int
	for _, p := range pages {
		r := []rune(p.Text)
		text = append(text, r...)
		for range r {
			pageOf = append(pageOf, p.PageNumber)
		}
		text = append(text, ' ')
		pageOf = append(pageOf, p.PageNumber)
	}

	var chunks []PageChunk
	chunkNumber := 0
	start := 0
	for start < len(text) {
		end := start + size
		if end < len(text) {
			end = breakpoint(text, start, end, size)
		} else {
			end = len(text)
		}

		if chunk := strings.TrimSpace(string(text[start:end])); chunk != "" {
			middle := min(start+(end-start)/2, len(pageOf)-1)
			chunks = append(chunks, PageChunk{
				Text:        chunk,
				PageNumber:  pageOf[middle],
				ChunkNumber: chunkNumber,
			})
			chunkNumber++
		}

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func breakpoint(text []rune, start, end, size int) int {
	for i := end; i > max(start+size-sentenceSearchWindow, start); i-- {
		if i < len(text) && strings.ContainsRune(".!?\n", text[i]) {
			return i + 1
		}
	}
	for i := end; i > max(start+size-wordSearchWindow, start); i-- {
		if i < len(text) && text[i] == ' ' {
			return i
		}
	}
	return end
}

// ChunkID is the index key for chunk n of a parent document. The URL-safe
// alphabet keeps it within the characters search keys accept.
func ChunkID(parentID string, n int) string {
	return base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%s_chunk_%d", parentID, n)))
}
