package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dskvich/perplexed/pkg/api/response"
	"github.com/dskvich/perplexed/pkg/domain"
	"github.com/dskvich/perplexed/pkg/logger"
)

type search struct {
	sessions SessionResolver
	writer   response.JSONResponseWriter
}

func NewSearch(sessions SessionResolver) *search {
	return &search{sessions: sessions}
}

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

// Stream runs one search turn and relays it as a server-sent event stream:
// a "sources" frame, any number of "chunk" frames and a terminal "complete"
// or "error" frame.
func (s *search) Stream(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writer.WriteErrorResponse(w, http.StatusBadRequest, "Request body is not valid JSON.")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writer.WriteErrorResponse(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	sess := resolveSession(s.sessions, r)

	// The stream header is written on the first event, so turns rejected
	// up front can still answer with a proper status code.
	streaming := false
	emit := func(event string, payload any) {
		if !streaming {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			streaming = true
		}

		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("encoding stream event", "event", event, logger.Err(err))
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	err := sess.Search(r.Context(), req.Query, domain.ParseMode(req.Mode), domain.StreamCallbacks{
		OnSources: func(result domain.SearchResult) {
			emit("sources", result)
		},
		OnChunk: func(fragment string) {
			emit("chunk", map[string]string{"text": fragment})
		},
		OnComplete: func(fullText string) {
			emit("complete", map[string]string{
				"text":     fullText,
				"threadId": sess.CurrentThreadID(),
			})
		},
		OnError: func(err error) {
			emit("error", map[string]string{"message": err.Error()})
		},
	})
	if err != nil && !streaming {
		switch {
		case errors.Is(err, domain.ErrEmptyQuery):
			s.writer.WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrTurnInFlight):
			s.writer.WriteErrorResponse(w, http.StatusConflict, err.Error())
		default:
			s.writer.WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
		}
	}
}
