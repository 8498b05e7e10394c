package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/dskvich/perplexed/pkg/domain"
	"github.com/dskvich/perplexed/pkg/logger"
)

const (
	maxRelatedQuestions = 3
	// Only a prefix of the answer is sent; suggestions don't need the rest.
	relatedAnswerLimit = 500
)

const relatedSystemPrompt = `You are a helpful assistant that suggests related follow-up questions. Given a user's question and an AI's answer, suggest 3 short, specific follow-up questions that the user might want to ask next. Return ONLY a JSON array of 3 strings, nothing else. Example: ["Question 1?", "Question 2?", "Question 3?"]`

// quotedQuestionRe salvages question-mark-terminated phrases from models that
// ignore the JSON-array instruction.
var quotedQuestionRe = regexp.MustCompile(`"([^"]+\?)"`)

type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// relatedService fetches follow-up question suggestions. Best effort: every
// failure mode collapses to an empty list and a log line, never an error.
type relatedService struct {
	gateway ChatCompleter
}

func NewRelatedService(gateway ChatCompleter) *relatedService {
	return &relatedService{gateway: gateway}
}

func (s *relatedService) FetchRelated(ctx context.Context, query, answer string) []string {
	content, err := s.gateway.CreateChatCompletion(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: relatedSystemPrompt},
		{Role: domain.RoleUser, Content: fmt.Sprintf(
			"Original question: %s\n\nAnswer summary: %s\n\nSuggest 3 related follow-up questions:",
			query, truncate(answer, relatedAnswerLimit),
		)},
	})
	if err != nil {
		slog.Warn("fetching related questions", "query", query, logger.Err(err))
		return nil
	}

	return parseQuestions(content)
}

func parseQuestions(content string) []string {
	var parsed []string
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return lo.Slice(parsed, 0, maxRelatedQuestions)
	}

	matches := quotedQuestionRe.FindAllStringSubmatch(content, -1)
	questions := lo.Map(matches, func(m []string, _ int) string { return m[1] })
	return lo.Slice(questions, 0, maxRelatedQuestions)
}

// truncate cuts s to at most limit bytes without splitting a multi-byte
// character.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
