// Package search talks to the Azure AI Search REST API: hybrid retrieval over
// the company document index, indexer control and index maintenance.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// QueryEmbedder turns a query into a vector. It must not fail.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) []float32
}

// LinkSigner produces download links for blob names.
type LinkSigner interface {
	DownloadURL(blobName string) (string, error)
}

// StatusError is a non-success response from the search service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search service returned %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Options struct {
	Endpoint             string
	APIKey               string
	IndexName            string
	IndexerName          string
	APIVersion           string
	MaxChunksPerDocument int
}

type Client struct {
	opts       Options
	httpClient *http.Client
	embedder   QueryEmbedder
	signer     LinkSigner

	retryInitial time.Duration
	retryMax     time.Duration
	maxTries     uint
}

func NewClient(opts Options, httpClient *http.Client, embedder QueryEmbedder, signer LinkSigner) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "2024-07-01"
	}
	if opts.MaxChunksPerDocument <= 0 {
		opts.MaxChunksPerDocument = 7
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	return &Client{
		opts:         opts,
		httpClient:   httpClient,
		embedder:     embedder,
		signer:       signer,
		retryInitial: 2 * time.Second,
		retryMax:     10 * time.Second,
		maxTries:     3,
	}
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s%s?api-version=%s", c.opts.Endpoint, path, c.opts.APIVersion)
}

// do sends one request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.opts.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doWithRetry retries transport failures, throttling and server errors.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, method, path, body, out)
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	return err
}
