package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-chatbot-api/models"
	"property-chatbot-api/pkg/citations"
	"property-chatbot-api/pkg/client"
)

const defaultTestTimeout = 5 * time.Second

func TestPrintAnswerListsSources(t *testing.T) {
	var out bytes.Buffer
	printAnswer(&out, "Notice is 60 days [1 → Page 4].", []citations.Source{
		{Filename: "📁 Move-Out Policy.pdf", CitationNumber: 1, DownloadURL: "https://files/move-out.pdf"},
	})

	assert.Contains(t, out.String(), "Notice is 60 days [1 → Page 4].")
	assert.Contains(t, out.String(), "[1] 📁 Move-Out Policy.pdf\n      https://files/move-out.pdf")
}

func TestPrintAnswerWithoutSources(t *testing.T) {
	var out bytes.Buffer
	printAnswer(&out, "Hello! How can I help?", nil)
	assert.Equal(t, "Hello! How can I help?\n", out.String())
}

func newChatServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var cleanups []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(models.ChatResponse{
			Response:  "You said " + req.Message + " [1 → Page 2].",
			Sources:   []citations.Source{{Filename: "Handbook.pdf", CitationNumber: 1}},
			SessionID: req.SessionID,
		})
	})
	mux.HandleFunc("/api/cleanup-session", func(w http.ResponseWriter, r *http.Request) {
		var req models.CleanupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		cleanups = append(cleanups, req.SessionID)
		_ = json.NewEncoder(w).Encode(models.CleanupResponse{Message: "Session cleaned up successfully", SessionID: req.SessionID})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &cleanups
}

func TestReplAsksAndQuits(t *testing.T) {
	srv, cleanups := newChatServer(t)
	var out bytes.Buffer
	r := &repl{conv: client.NewConversation(client.New(srv.URL, "")), out: &out, timeout: defaultTestTimeout}

	err := r.run(context.Background(), strings.NewReader("rent due date\n/copy 9\n/files\n/quit\nnever sent\n"))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "(1) You said rent due date [1 → Page 2].")
	assert.Contains(t, out.String(), "[1] Handbook.pdf")
	assert.Contains(t, out.String(), "usage: /copy <1-1>")
	assert.Contains(t, out.String(), "No documents uploaded.")
	assert.NotContains(t, out.String(), "never sent")
	assert.Empty(t, *cleanups)
}

func TestReplUnknownCommand(t *testing.T) {
	srv, _ := newChatServer(t)
	var out bytes.Buffer
	r := &repl{conv: client.NewConversation(client.New(srv.URL, "")), out: &out, timeout: defaultTestTimeout}

	require.NoError(t, r.run(context.Background(), strings.NewReader("/nope\n")))
	assert.Contains(t, out.String(), "unknown command /nope")
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := []string{}
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"health", "ask", "upload", "cleanup", "repl"})

	flag := cmd.PersistentFlags().Lookup("base-url")
	require.NotNil(t, flag)
}

func TestHealthCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--base-url", srv.URL, "health"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "healthy\n", out.String())
}
