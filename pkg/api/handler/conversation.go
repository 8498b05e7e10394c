package handler

import (
	"net/http"

	"github.com/dskvich/perplexed/pkg/api/response"
)

type conversationHandler struct {
	sessions SessionResolver
	writer   response.JSONResponseWriter
}

func NewConversation(sessions SessionResolver) *conversationHandler {
	return &conversationHandler{sessions: sessions}
}

func (c *conversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	c.writer.WriteSuccessResponse(w, snapshotOf(resolveSession(c.sessions, r)))
}
