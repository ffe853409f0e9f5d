package docintel

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
)

func TestTextExtractorPagesByCharacters(t *testing.T) {
	e := NewTextExtractor(5)
	text := strings.Repeat("a", 2100)

	out, err := e.Extract(context.Background(), []byte(text), "notes.txt", "text/plain")
	require.NoError(t, err)
	require.Len(t, out.PageTexts, 2)
	assert.Equal(t, 2, out.PageCount)
	assert.Len(t, out.PageTexts[0].Text, 2000)
	assert.Len(t, out.PageTexts[1].Text, 100)
	assert.Equal(t, 2, out.PageTexts[1].PageNumber)
	assert.Equal(t, MethodPlainText, out.Method)
}

func TestTextExtractorStopsAtPageCap(t *testing.T) {
	e := NewTextExtractor(2)
	out, err := e.Extract(context.Background(), []byte(strings.Repeat("b", 7000)), "long.txt", "")
	require.NoError(t, err)
	assert.Len(t, out.PageTexts, 2)
	assert.Len(t, out.Text, 7000)
}

func TestTextExtractorCountsRunes(t *testing.T) {
	e := NewTextExtractor(5)
	out, err := e.Extract(context.Background(), []byte(strings.Repeat("é", 2001)), "accents.txt", "")
	require.NoError(t, err)
	require.Len(t, out.PageTexts, 2)
	assert.Equal(t, "é", out.PageTexts[1].Text)
}

func TestTextExtractorRejectsInvalidUTF8(t *testing.T) {
	e := NewTextExtractor(5)
	_, err := e.Extract(context.Background(), []byte{0xff, 0xfe, 0x00}, "bad.txt", "text/plain")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
	assert.Equal(t, "File is not valid UTF-8 text", err.Error())
}

type recordingExtractor struct{ called bool }

func (r *recordingExtractor) Extract(_ context.Context, _ []byte, filename, _ string) (*Extraction, error) {
	r.called = true
	return &Extraction{Filename: filename}, nil
}

func TestRouterDispatch(t *testing.T) {
	remote := &recordingExtractor{}
	local := &recordingExtractor{}
	r := &Router{Text: NewTextExtractor(5), Remote: remote, LocalPDF: local}

	out, err := r.Extract(context.Background(), []byte("hello"), "a.TXT", "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, MethodPlainText, out.Method)

	_, err = r.Extract(context.Background(), []byte("%PDF"), "a.pdf", "application/pdf")
	require.NoError(t, err)
	assert.True(t, remote.called)
	assert.False(t, local.called)

	r.Remote = nil
	_, err = r.Extract(context.Background(), []byte("%PDF"), "a.pdf", "application/pdf")
	require.NoError(t, err)
	assert.True(t, local.called)

	_, err = r.Extract(context.Background(), []byte{1, 2}, "scan.png", "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func newAnalyzeServer(t *testing.T, pendingPolls int32, final analyzeOperation) *httptest.Server {
	t.Helper()
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		switch r.Method {
		case http.MethodPost:
			assert.Contains(t, r.URL.Path, "/documentintelligence/documentModels/prebuilt-read:analyze")
			assert.Equal(t, "2024-11-30", r.URL.Query().Get("api-version"))
			var body analyzeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotEmpty(t, body.Base64Source)
			w.Header().Set("Operation-Location", srv.URL+"/operations/1")
			w.WriteHeader(http.StatusAccepted)
		case http.MethodGet:
			if atomic.AddInt32(&polls, 1) <= pendingPolls {
				_ = json.NewEncoder(w).Encode(analyzeOperation{Status: "running"})
				return
			}
			_ = json.NewEncoder(w).Encode(final)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string, maxPages int, timeout time.Duration) *Client {
	c := NewClient(url, "secret", "2024-11-30", maxPages, timeout, nil)
	c.pollInitial = 5 * time.Millisecond
	c.pollMax = 20 * time.Millisecond
	return c
}

func TestClientExtractsPagesAfterPolling(t *testing.T) {
	var final analyzeOperation
	require.NoError(t, json.Unmarshal([]byte(`{
		"status": "succeeded",
		"analyzeResult": {
			"content": "  Lease terms\nRent due on the 1st  ",
			"pages": [
				{"pageNumber": 1, "lines": [{"content": "Lease"}, {"content": "terms"}]},
				{"pageNumber": 2, "lines": [{"content": "Rent due on the 1st"}]},
				{"pageNumber": 3, "lines": [{"content": "beyond the cap"}]}
			]
		}
	}`), &final))
	srv := newAnalyzeServer(t, 2, final)

	out, err := testClient(srv.URL, 2, 5*time.Second).Extract(context.Background(), []byte("%PDF-1.4"), "lease.pdf", "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "Lease terms\nRent due on the 1st", out.Text)
	require.Len(t, out.PageTexts, 2)
	assert.Equal(t, "Lease terms", out.PageTexts[0].Text)
	assert.Equal(t, 2, out.PageCount)
	assert.Equal(t, MethodDocumentIntelligence, out.Method)
}

func TestClientReportsFailedAnalysis(t *testing.T) {
	var final analyzeOperation
	require.NoError(t, json.Unmarshal([]byte(`{"status":"failed","error":{"code":"InvalidContent","message":"corrupt"}}`), &final))
	srv := newAnalyzeServer(t, 0, final)

	_, err := testClient(srv.URL, 15, 5*time.Second).Extract(context.Background(), []byte("x"), "x.pdf", "application/pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "InvalidContent")
}

func TestClientTimesOut(t *testing.T) {
	srv := newAnalyzeServer(t, 1<<30, analyzeOperation{})

	_, err := testClient(srv.URL, 15, 100*time.Millisecond).Extract(context.Background(), []byte("x"), "slow.pdf", "application/pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "Request timed out after")
}

func TestLocalPDFExtractorRejectsGarbage(t *testing.T) {
	_, err := NewLocalPDFExtractor(15).Extract(context.Background(), []byte("not a pdf"), "junk.pdf", "application/pdf")
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestReasonDropsSentinelPrefixes(t *testing.T) {
	assert.Equal(t, "File is not valid UTF-8 text", Reason(fmt.Errorf("%w: %w", ErrExtractionFailed, ErrInvalidUTF8)))
	assert.Equal(t, "Request timed out after 60s", Reason(fmt.Errorf("%w: %w", ErrExtractionFailed, fmt.Errorf("%w: Request timed out after 60s", ErrExtractionFailed))))
	assert.Equal(t, "boom", Reason(fmt.Errorf("boom")))
}
