package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"property-chatbot-api/pkg/citations"
)

const (
	MaxUploads        = 5
	MaxUploadBytes    = 15 * 1024 * 1024
	sessionRandomLen  = 9
	sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	ErrBusy           = errors.New("a request is already in progress")
	ErrUploadLimit    = fmt.Errorf("maximum %d files per session", MaxUploads)
	ErrUploadTooLarge = fmt.Errorf("file exceeds %dMB", MaxUploadBytes/(1024*1024))
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is one entry of the log. Fragments are set for assistant replies.
type Message struct {
	Role      Role
	Content   string
	Sources   []citations.Source
	Fragments []citations.Fragment
	Time      time.Time
}

type UploadedFile struct {
	Filename string
	Size     int64
	Pages    int
}

// Conversation is the state of one chat panel. It is safe for concurrent use;
// only one request runs at a time.
type Conversation struct {
	client *Client

	mu        sync.Mutex
	sessionID string
	messages  []Message
	uploads   []UploadedFile
	loading   bool
	now       func() time.Time
}

func NewConversation(c *Client) *Conversation {
	return &Conversation{client: c, sessionID: NewSessionID(), now: time.Now}
}

// NewSessionID returns "session_" + 9 random base36 characters + "_" + the
// Unix millisecond time.
func NewSessionID() string {
	var b strings.Builder
	b.WriteString("session_")
	n := big.NewInt(int64(len(sessionIDAlphabet)))
	for range sessionRandomLen {
		i, err := rand.Int(rand.Reader, n)
		if err != nil {
			panic(err)
		}
		b.WriteByte(sessionIDAlphabet[i.Int64()])
	}
	fmt.Fprintf(&b, "_%d", time.Now().UnixMilli())
	return b.String()
}

func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Messages returns a copy of the log in arrival order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Conversation) Uploads() []UploadedFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]UploadedFile(nil), c.uploads...)
}

func (c *Conversation) UploadsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MaxUploads - len(c.uploads)
}

// begin marks the conversation busy. It fails when another request is running.
func (c *Conversation) begin() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return "", ErrBusy
	}
	c.loading = true
	return c.sessionID, nil
}

func (c *Conversation) end() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

func (c *Conversation) appendMessage(m Message) {
	m.Time = c.now()
	c.messages = append(c.messages, m)
}

// Send posts text as the next question. Blank input is ignored. The user
// message is logged before the request; the reply, or an error entry, after.
// The returned message is the one appended after the request.
func (c *Conversation) Send(ctx context.Context, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	sessionID, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	c.mu.Lock()
	c.appendMessage(Message{Role: RoleUser, Content: text})
	c.mu.Unlock()

	resp, err := c.client.Chat(ctx, text, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.appendMessage(Message{Role: RoleError, Content: "Error: " + errorText(err)})
		m := c.messages[len(c.messages)-1]
		return &m, err
	}

	if resp.SessionID != "" {
		c.sessionID = resp.SessionID
	}
	c.appendMessage(Message{
		Role:      RoleAssistant,
		Content:   resp.Response,
		Sources:   resp.Sources,
		Fragments: citations.Fragments(resp.Response),
	})
	m := c.messages[len(c.messages)-1]
	return &m, nil
}

func errorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// Upload sends a file for the current session. The per-session count and the
// size cap are enforced before any network call.
func (c *Conversation) Upload(ctx context.Context, filename string, size int64, r io.Reader) (*UploadedFile, error) {
	c.mu.Lock()
	full := len(c.uploads) >= MaxUploads
	c.mu.Unlock()
	if full {
		return nil, ErrUploadLimit
	}
	if size > MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}

	sessionID, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer c.end()

	resp, err := c.client.Upload(ctx, sessionID, filename, r)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if resp.SessionID != "" {
		c.sessionID = resp.SessionID
	}
	f := UploadedFile{Filename: resp.Filename, Size: size, Pages: resp.PagesExtracted}
	c.uploads = append(c.uploads, f)
	return &f, nil
}

// Reset is the manual "new conversation": server-side cleanup when files were
// uploaded, then a fresh log and session id. The local state is cleared even
// when the cleanup call fails.
func (c *Conversation) Reset(ctx context.Context) error {
	c.mu.Lock()
	sessionID, hadUploads := c.sessionID, len(c.uploads) > 0
	c.mu.Unlock()

	var err error
	if hadUploads {
		_, err = c.client.Cleanup(ctx, sessionID)
	}

	c.mu.Lock()
	c.messages = nil
	c.uploads = nil
	c.sessionID = NewSessionID()
	c.mu.Unlock()
	return err
}

// Close is the page-unload cleanup. It is best-effort and never fails.
func (c *Conversation) Close(ctx context.Context) {
	c.mu.Lock()
	sessionID, hadUploads := c.sessionID, len(c.uploads) > 0
	c.mu.Unlock()
	if hadUploads {
		_, _ = c.client.Cleanup(ctx, sessionID)
	}
}

// CopyText returns message i with citation markers removed.
func (c *Conversation) CopyText(i int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.messages) {
		return "", fmt.Errorf("no message %d", i)
	}
	return citations.Strip(c.messages[i].Content), nil
}

// SourceFor resolves a citation fragment of m to the source carrying its
// number.
func SourceFor(m Message, f citations.Fragment) (citations.Source, bool) {
	if f.Kind != citations.FragmentCitation || f.Citation == nil {
		return citations.Source{}, false
	}
	for _, s := range m.Sources {
		if s.CitationNumber == f.Citation.DocNumber {
			return s, true
		}
	}
	return citations.Source{}, false
}
