// Package client talks to the property chatbot API and keeps the state of a
// chat panel: the session, the message log and the uploaded files.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"property-chatbot-api/models"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	apiKeyHeader   = "X-API-Key"
)

// APIError is a non-2xx response. Message comes from the body's detail or
// message field, falling back to the HTTP status text.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
}

// Client calls the chatbot API. Errors are returned as-is; nothing is retried.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (c *Client) Chat(ctx context.Context, message, sessionID string) (*models.ChatResponse, error) {
	body, err := json.Marshal(models.ChatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	var out models.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload posts r as the multipart "file" field. An empty sessionID lets the
// server assign one.
func (c *Client) Upload(ctx context.Context, sessionID, filename string, r io.Reader) (*models.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if sessionID != "" {
		if err := mw.WriteField("session_id", sessionID); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out models.UploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Cleanup(ctx context.Context, sessionID string) (*models.CleanupResponse, error) {
	body, err := json.Marshal(models.CleanupRequest{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	var out models.CleanupResponse
	if err := c.do(ctx, http.MethodPost, "/api/cleanup-session", "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.APIKey)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{Status: status}
	var body struct {
		ErrorCode string          `json:"error_code"`
		Message   string          `json:"message"`
		Detail    json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.ErrorCode
		apiErr.Message = detailString(body.Detail)
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// detailString accepts a plain string detail or a structured one, which is
// kept as raw JSON.
func detailString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
