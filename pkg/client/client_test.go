package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-chatbot-api/models"
	"property-chatbot-api/pkg/citations"
)

type fakeServer struct {
	mu       sync.Mutex
	chats    []models.ChatRequest
	cleanups []string
	uploads  []string
	chatErr  int
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"detail":"Invalid or missing API key"}`)
			return
		}
		if f.chatErr != 0 {
			w.WriteHeader(f.chatErr)
			_, _ = io.WriteString(w, `{"error_code":"internal_error","message":"Failed to process chat request"}`)
			return
		}
		var req models.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.chats = append(f.chats, req)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.ChatResponse{
			Response:  "Notice is 60 days [1 → Page 3]. See also [2].",
			Sources:   []citations.Source{{Filename: "📁 Lease.pdf", Type: "company", CitationNumber: 1}, {Filename: "📤 notes.txt", Type: "uploaded", CitationNumber: 2}},
			SessionID: "server-session",
		})
	})
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.UploadResponse{
			Message:        "File uploaded and ready for queries!",
			Filename:       header.Filename,
			SessionID:      r.FormValue("session_id"),
			PagesExtracted: 2,
		})
	})
	mux.HandleFunc("/api/cleanup-session", func(w http.ResponseWriter, r *http.Request) {
		var req models.CleanupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.cleanups = append(f.cleanups, req.SessionID)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.CleanupResponse{Message: "Session cleaned up successfully", SessionID: req.SessionID, FilesDeleted: 1})
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.URL, "k"), fs
}

func TestHealth(t *testing.T) {
	c, _ := newTestClient(t)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestChatPassesErrorsThrough(t *testing.T) {
	c, _ := newTestClient(t)
	c.APIKey = "wrong"

	_, err := c.Chat(context.Background(), "hi", "s1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Invalid or missing API key", apiErr.Message)
	assert.True(t, IsStatus(err, http.StatusForbidden))
}

func TestAPIErrorFallsBackToMessage(t *testing.T) {
	c, fs := newTestClient(t)
	fs.chatErr = http.StatusInternalServerError

	_, err := c.Chat(context.Background(), "hi", "s1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "internal_error", apiErr.Code)
	assert.Equal(t, "Failed to process chat request", apiErr.Message)
}

func TestDecodeAPIErrorStructuredDetail(t *testing.T) {
	err := decodeAPIError(422, []byte(`{"detail":[{"msg":"field required"}]}`))
	assert.Contains(t, err.Error(), "field required")

	err = decodeAPIError(502, []byte(`<html>bad gateway</html>`))
	assert.Equal(t, "API error 502: Bad Gateway", err.Error())
}

func TestNewSessionIDFormat(t *testing.T) {
	id := NewSessionID()
	assert.Regexp(t, regexp.MustCompile(`^session_[0-9a-z]{9}_\d+$`), id)
	assert.NotEqual(t, id, NewSessionID())
}

func TestConversationSend(t *testing.T) {
	c, fs := newTestClient(t)
	conv := NewConversation(c)
	initial := conv.SessionID()

	m, err := conv.Send(context.Background(), "  What is the notice period?  ")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, m.Role)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "What is the notice period?", msgs[0].Content)
	assert.Equal(t, initial, fs.chats[0].SessionID)
	assert.Equal(t, "server-session", conv.SessionID())

	require.Len(t, msgs[1].Fragments, 5)
	cite := msgs[1].Fragments[1]
	require.Equal(t, citations.FragmentCitation, cite.Kind)
	src, ok := SourceFor(msgs[1], cite)
	require.True(t, ok)
	assert.Equal(t, "📁 Lease.pdf", src.Filename)

	src, ok = SourceFor(msgs[1], msgs[1].Fragments[3])
	require.True(t, ok)
	assert.Equal(t, "uploaded", src.Type)

	_, ok = SourceFor(msgs[1], msgs[1].Fragments[0])
	assert.False(t, ok)

	text, err := conv.CopyText(1)
	require.NoError(t, err)
	assert.Equal(t, "Notice is 60 days. See also.", text)
}

func TestConversationIgnoresBlankInput(t *testing.T) {
	c, fs := newTestClient(t)
	conv := NewConversation(c)

	m, err := conv.Send(context.Background(), "   ")
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.Empty(t, conv.Messages())
	assert.Empty(t, fs.chats)
}

func TestConversationRecordsErrors(t *testing.T) {
	c, fs := newTestClient(t)
	fs.chatErr = http.StatusInternalServerError
	conv := NewConversation(c)

	_, err := conv.Send(context.Background(), "hi")
	require.Error(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleError, msgs[1].Role)
	assert.Equal(t, "Error: Failed to process chat request", msgs[1].Content)
	assert.False(t, conv.Loading())
}

func TestConversationRefusesWhileLoading(t *testing.T) {
	c, _ := newTestClient(t)
	conv := NewConversation(c)
	conv.loading = true

	_, err := conv.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, conv.Messages())
}

func TestConversationUploadCaps(t *testing.T) {
	c, fs := newTestClient(t)
	conv := NewConversation(c)

	_, err := conv.Upload(context.Background(), "big.pdf", MaxUploadBytes+1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUploadTooLarge)

	for i := 0; i < MaxUploads; i++ {
		f, err := conv.Upload(context.Background(), "notes.txt", 10, strings.NewReader("pets allowed"))
		require.NoError(t, err)
		assert.Equal(t, 2, f.Pages)
	}
	assert.Zero(t, conv.UploadsRemaining())

	_, err = conv.Upload(context.Background(), "sixth.txt", 10, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUploadLimit)
	assert.Len(t, fs.uploads, MaxUploads)
}

func TestConversationResetAndClose(t *testing.T) {
	c, fs := newTestClient(t)
	conv := NewConversation(c)

	// nothing uploaded: no cleanup call
	require.NoError(t, conv.Reset(context.Background()))
	assert.Empty(t, fs.cleanups)

	_, err := conv.Upload(context.Background(), "a.txt", 1, strings.NewReader("a"))
	require.NoError(t, err)
	_, err = conv.Send(context.Background(), "q")
	require.NoError(t, err)
	before := conv.SessionID()

	require.NoError(t, conv.Reset(context.Background()))
	assert.Equal(t, []string{before}, fs.cleanups)
	assert.Empty(t, conv.Messages())
	assert.Empty(t, conv.Uploads())
	assert.NotEqual(t, before, conv.SessionID())

	_, err = conv.Upload(context.Background(), "b.txt", 1, strings.NewReader("b"))
	require.NoError(t, err)
	conv.Close(context.Background())
	assert.Len(t, fs.cleanups, 2)
}

func TestConversationCloseIgnoresFailures(t *testing.T) {
	conv := NewConversation(New("http://127.0.0.1:1", ""))
	conv.uploads = []UploadedFile{{Filename: "a.txt"}}
	assert.NotPanics(t, func() { conv.Close(context.Background()) })
}
