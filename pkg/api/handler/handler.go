package handler

import (
	"net/http"

	"github.com/dskvich/perplexed/pkg/auth"
	"github.com/dskvich/perplexed/pkg/conversation"
	"github.com/dskvich/perplexed/pkg/domain"
)

// SessionResolver hands out the conversation session behind a request.
type SessionResolver interface {
	Session(key, userID string) *conversation.Session
}

// sessionKey picks the conversation identity for a request. Authenticated
// users share one session across clients; anonymous clients are told apart
// by the X-Session-ID header when they send one.
func sessionKey(r *http.Request) string {
	if userID := auth.UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return "session:" + sid
	}
	return "anonymous"
}

func resolveSession(sessions SessionResolver, r *http.Request) *conversation.Session {
	return sessions.Session(sessionKey(r), auth.UserIDFromContext(r.Context()))
}

type conversationSnapshot struct {
	Messages         []domain.Message       `json:"messages"`
	Sources          []domain.Source        `json:"sources"`
	Images           []string               `json:"images"`
	Videos           []domain.Video         `json:"videos"`
	RelatedQuestions []string               `json:"relatedQuestions"`
	Threads          []domain.SearchThread  `json:"threads"`
	CurrentThreadID  string                 `json:"currentThreadId"`
	IsLoading        bool                   `json:"isLoading"`
	IsSourcesLoading bool                   `json:"isSourcesLoading"`
	IsRelatedLoading bool                   `json:"isRelatedLoading"`
}

func snapshotOf(s *conversation.Session) conversationSnapshot {
	return conversationSnapshot{
		Messages:         s.Messages(),
		Sources:          s.Sources(),
		Images:           s.Images(),
		Videos:           s.Videos(),
		RelatedQuestions: s.RelatedQuestions(),
		Threads:          s.Threads(),
		CurrentThreadID:  s.CurrentThreadID(),
		IsLoading:        s.IsLoading(),
		IsSourcesLoading: s.IsSourcesLoading(),
		IsRelatedLoading: s.IsRelatedLoading(),
	}
}
