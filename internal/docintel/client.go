package docintel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
)

const readModel = "prebuilt-read"

var errStillRunning = errors.New("analysis still running")

// Client calls the Document Intelligence analyze API with the prebuilt read
// model and polls the long running operation until it completes.
type Client struct {
	endpoint   string
	key        string
	apiVersion string
	maxPages   int
	timeout    time.Duration
	httpClient *http.Client

	// poll interval bounds, shortened in tests
	pollInitial time.Duration
	pollMax     time.Duration
}

// NewClient builds a client. A maxPages of zero or less analyzes every page.
func NewClient(endpoint, key, apiVersion string, maxPages int, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		key:         key,
		apiVersion:  apiVersion,
		maxPages:    maxPages,
		timeout:     timeout,
		httpClient:  httpClient,
		pollInitial: 500 * time.Millisecond,
		pollMax:     5 * time.Second,
	}
}

type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type analyzeOperation struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type analyzeResult struct {
	Content string `json:"content"`
	Pages   []struct {
		PageNumber int `json:"pageNumber"`
		Lines      []struct {
			Content string `json:"content"`
		} `json:"lines"`
	} `json:"pages"`
}

func (c *Client) Extract(ctx context.Context, content []byte, filename, _ string) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	opURL, err := c.submit(ctx, content)
	if err != nil {
		return nil, c.wrapErr(ctx, filename, err)
	}

	result, err := c.poll(ctx, opURL)
	if err != nil {
		return nil, c.wrapErr(ctx, filename, err)
	}

	var pages []models.PageText
	for _, p := range result.Pages {
		if c.maxPages > 0 && p.PageNumber > c.maxPages {
			logger.Warn("Stopping at page limit", "filename", filename, "max_pages", c.maxPages)
			break
		}
		lines := make([]string, 0, len(p.Lines))
		for _, l := range p.Lines {
			lines = append(lines, l.Content)
		}
		pages = append(pages, models.PageText{PageNumber: p.PageNumber, Text: strings.Join(lines, " ")})
	}

	logger.Info("Document Intelligence extraction complete",
		"filename", filename,
		"pages", len(pages),
		"chars", len(result.Content),
		"duration_ms", time.Since(start).Milliseconds())

	return &Extraction{
		Text:      strings.TrimSpace(result.Content),
		PageTexts: pages,
		PageCount: len(pages),
		Filename:  filename,
		Method:    MethodDocumentIntelligence,
	}, nil
}

func (c *Client) wrapErr(ctx context.Context, filename string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errStillRunning) {
		logger.Error("Document Intelligence timed out", "filename", filename, "timeout", c.timeout.String())
		return fmt.Errorf("%w: Request timed out after %ds", ErrExtractionFailed, int(c.timeout.Seconds()))
	}
	logger.Error("Document Intelligence extraction failed", "filename", filename, "error", err)
	if errors.Is(err, ErrExtractionFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
}

func (c *Client) submit(ctx context.Context, content []byte) (string, error) {
	body, err := json.Marshal(analyzeRequest{Base64Source: base64.StdEncoding.EncodeToString(content)})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.endpoint, readModel, c.apiVersion)
	if c.maxPages > 0 {
		url += fmt.Sprintf("&pages=1-%d", c.maxPages)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("analyze request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", errors.New("analyze response missing Operation-Location header")
	}
	return opURL, nil
}

func (c *Client) poll(ctx context.Context, opURL string) (*analyzeResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInitial
	b.MaxInterval = c.pollMax

	return backoff.Retry(ctx, func() (*analyzeResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("poll returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("poll returned status %d", resp.StatusCode))
		}

		var op analyzeOperation
		if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode analyze operation: %w", err))
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return nil, backoff.Permanent(errors.New("analyze operation succeeded without a result"))
			}
			return op.AnalyzeResult, nil
		case "failed", "canceled":
			msg := op.Status
			if op.Error != nil {
				msg = op.Error.Code + ": " + op.Error.Message
			}
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrExtractionFailed, msg))
		default:
			return nil, errStillRunning
		}
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(c.timeout))
}
