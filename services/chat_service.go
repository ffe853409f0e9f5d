package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"property-chatbot-api/internal/ai"
	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/telemetry"
	"property-chatbot-api/models"
	"property-chatbot-api/pkg/citations"
	"property-chatbot-api/utils"
)

// ApologyMessage is returned in place of an answer when generation fails.
const ApologyMessage = "I apologize, but I encountered an error processing your request."

// maxCompanyContext caps the company chunks offered next to uploaded pages.
const maxCompanyContext = 15

// SessionReader is the part of the session store the chat flow needs.
type SessionReader interface {
	Documents(ctx context.Context, sessionID string) ([]models.SessionDocument, error)
	LoadHistory(ctx context.Context, sessionID string) []models.Turn
	SaveHistory(ctx context.Context, sessionID string, turns []models.Turn) error
}

// Retriever finds company document chunks relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, top int) ([]models.ContextDoc, error)
}

type ChatService struct {
	sessions    SessionReader
	retriever   Retriever
	llm         ai.LLM
	transcripts TranscriptStore
	metrics     *telemetry.Metrics
	maxResults  int
}

func NewChatService(sessions SessionReader, retriever Retriever, llm ai.LLM, transcripts TranscriptStore, metrics *telemetry.Metrics, maxResults int) *ChatService {
	if transcripts == nil {
		transcripts = NoopTranscriptStore{}
	}
	if maxResults <= 0 {
		maxResults = maxCompanyContext
	}
	return &ChatService{
		sessions:    sessions,
		retriever:   retriever,
		llm:         llm,
		transcripts: transcripts,
		metrics:     metrics,
		maxResults:  maxResults,
	}
}

// Chat answers one message using the session's uploads, the company index and
// the recent conversation. Generation failures produce the apology answer
// rather than an error.
func (s *ChatService) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	start := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, span := otel.Tracer("chat").Start(ctx, "chat.answer")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	uploaded, uploadCount := s.uploadedContext(ctx, sessionID)
	casual := IsCasual(req.Message)

	var contextDocs []models.ContextDoc
	if casual {
		logger.Info("Casual message, skipping document search", "session_id", sessionID)
		s.metrics.RecordRetrieval(0, "skipped")
	} else {
		company, err := s.retriever.Search(ctx, req.Message, s.maxResults)
		if err != nil {
			logger.Error("Document search failed", "session_id", sessionID, "error", err)
			company = nil
		}
		s.metrics.RecordRetrieval(len(company), "hybrid")
		if len(company) > maxCompanyContext {
			company = company[:maxCompanyContext]
		}
		contextDocs = append(append(contextDocs, uploaded...), company...)
		if len(contextDocs) == 0 {
			logger.Warn("No documents in context", "session_id", sessionID)
		}
	}
	span.SetAttributes(
		attribute.Bool("chat.casual", casual),
		attribute.Int("chat.context_docs", len(contextDocs)),
		attribute.Int("chat.uploaded_pages", len(uploaded)),
	)

	history := s.sessions.LoadHistory(ctx, sessionID)
	systemPrompt := BuildSystemPrompt(len(uploaded) > 0)
	userPrompt, mapping := BuildPrompt(req.Message, contextDocs)

	messages := make([]ai.Message, 0, 2+2*len(history))
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages,
			ai.Message{Role: ai.RoleUser, Content: turn.Query},
			ai.Message{Role: ai.RoleAssistant, Content: turn.Response},
		)
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: userPrompt})

	logger.Info("Prompt statistics",
		"session_id", sessionID,
		"prompt_chars", len(userPrompt),
		"estimated_tokens", len(userPrompt)/4,
		"documents", len(mapping),
		"history_turns", len(history),
	)

	completion, err := s.llm.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, ai.ErrProviderUnavailable) {
			logger.Warn("LLM unavailable", "session_id", sessionID)
		} else {
			logger.Error("LLM generation error", "session_id", sessionID, "error", err)
		}
		span.RecordError(err)
		s.archive(ctx, models.Exchange{
			SessionID:   sessionID,
			Query:       req.Message,
			Response:    ApologyMessage,
			Sources:     []citations.Source{},
			Casual:      casual,
			UploadCount: uploadCount,
			ContextDocs: len(contextDocs),
			LatencyMS:   time.Since(start).Milliseconds(),
			Failed:      true,
		})
		return &models.ChatResponse{
			Response:  ApologyMessage,
			Sources:   []citations.Source{},
			SessionID: sessionID,
		}, nil
	}

	answer, sources := citations.Renumber(citations.CleanResponse(completion.Text), mapping)
	sources = dedupeSources(sources)

	history = append(history, models.Turn{Query: req.Message, Response: answer})
	if err := s.sessions.SaveHistory(ctx, sessionID, history); err != nil {
		logger.Warn("Failed to save conversation history", "session_id", sessionID, "error", err)
	}

	logger.Info("Generated response",
		"session_id", sessionID,
		"documents_provided", len(mapping),
		"documents_cited", len(sources),
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens,
	)

	s.archive(ctx, models.Exchange{
		SessionID:     sessionID,
		Query:         req.Message,
		Response:      answer,
		PlainResponse: citations.Strip(answer),
		Sources:       sources,
		Casual:        casual,
		UploadCount:   uploadCount,
		ContextDocs:   len(contextDocs),
		LatencyMS:     time.Since(start).Milliseconds(),
	})

	return &models.ChatResponse{Response: answer, Sources: sources, SessionID: sessionID}, nil
}

// uploadedContext flattens the session's uploads into per-page context docs.
func (s *ChatService) uploadedContext(ctx context.Context, sessionID string) ([]models.ContextDoc, int) {
	docs, err := s.sessions.Documents(ctx, sessionID)
	if err != nil {
		logger.Error("Failed to load session documents", "session_id", sessionID, "error", err)
		return nil, 0
	}
	var pages []models.ContextDoc
	for _, d := range docs {
		pages = append(pages, d.Pages()...)
	}
	if len(docs) > 0 {
		logger.Info("Uploaded documents in session", "session_id", sessionID, "files", len(docs), "pages", len(pages))
	}
	return pages, len(docs)
}

func (s *ChatService) archive(ctx context.Context, ex models.Exchange) {
	ex.Timestamp = time.Now().UTC()
	ctx, cancel := utils.Detached(ctx, utils.ShortTimeout)
	defer cancel()
	if err := s.transcripts.Record(ctx, ex); err != nil {
		logger.Warn("Failed to archive exchange", "session_id", ex.SessionID, "error", err)
	}
}

func dedupeSources(sources []citations.Source) []citations.Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]citations.Source, 0, len(sources))
	for _, src := range sources {
		if _, ok := seen[src.Filename]; ok {
			continue
		}
		seen[src.Filename] = struct{}{}
		out = append(out, src)
	}
	return out
}
