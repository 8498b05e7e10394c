package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/dskvich/perplexed/pkg/domain"
	"github.com/dskvich/perplexed/pkg/logger"
	"github.com/dskvich/perplexed/pkg/sse"
)

type SearchProvider interface {
	Search(ctx context.Context, query string) (domain.SearchResult, error)
}

type ChatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, messages []domain.ChatMessage, mode domain.Mode) (io.ReadCloser, error)
}

// answerService drives one query through search, prompt building and the
// streamed completion. It keeps no state between calls; everything the caller
// needs arrives through the callbacks.
type answerService struct {
	searchProvider SearchProvider
	gateway        ChatStreamer
}

func NewAnswerService(searchProvider SearchProvider, gateway ChatStreamer) *answerService {
	return &answerService{
		searchProvider: searchProvider,
		gateway:        gateway,
	}
}

// Answer runs a full turn. Callback order: OnStart, OnSources, zero or more
// OnChunk, then exactly one of OnComplete or OnError. A search failure aborts
// the turn before the model is ever called.
func (s *answerService) Answer(ctx context.Context, query string, history []domain.Message, mode domain.Mode, cb domain.StreamCallbacks) {
	cb.OnStart()

	query = strings.TrimSpace(query)
	if query == "" {
		cb.OnError(domain.ErrEmptyQuery)
		return
	}

	result, err := s.searchProvider.Search(ctx, query)
	if err != nil {
		slog.Error("searching the web", "query", query, logger.Err(err))
		cb.OnError(domain.ErrSearchFailed)
		return
	}
	cb.OnSources(result)

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: buildContextPrompt(query, result.Sources),
	})
	for _, m := range history {
		messages = append(messages, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: query})

	body, err := s.gateway.CreateChatCompletionStream(ctx, messages, mode)
	if err != nil {
		cb.OnError(err)
		return
	}
	defer body.Close()

	var full strings.Builder
	decoder := sse.NewDecoder(body)
	for {
		fragment, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			cb.OnError(fmt.Errorf("reading answer stream: %w", err))
			return
		}
		full.WriteString(fragment)
		cb.OnChunk(fragment)
	}

	cb.OnComplete(full.String())
}

func buildContextPrompt(query string, sources []domain.Source) string {
	sourceContext := strings.Join(lo.Map(sources, func(s domain.Source, i int) string {
		return fmt.Sprintf("[%d] %s: %s", i+1, s.Title, s.Snippet)
	}), "\n\n")

	return fmt.Sprintf(`You are an AI research assistant. Answer questions using the provided search results.
Be comprehensive but concise. Use markdown formatting for better readability.
When citing information, use numbered brackets like [1], [2], etc. to reference the sources.

For follow-up questions, use context from the conversation history to provide relevant answers.
If the follow-up question relates to previous answers, build upon that context.

Current question: %s

Current Search Results:
%s

Provide well-structured answers with proper citations when referencing search results.`, query, sourceContext)
}
