package handler

import (
	"errors"
	"net/http"

	"github.com/dskvich/perplexed/pkg/api/response"
	"github.com/dskvich/perplexed/pkg/domain"
)

type threads struct {
	sessions SessionResolver
	writer   response.JSONResponseWriter
}

func NewThreads(sessions SessionResolver) *threads {
	return &threads{sessions: sessions}
}

func (t *threads) List(w http.ResponseWriter, r *http.Request) {
	sess := resolveSession(t.sessions, r)

	threads := sess.Threads()
	if threads == nil {
		threads = []domain.SearchThread{}
	}

	t.writer.WriteSuccessResponse(w, map[string]any{"threads": threads})
}

func (t *threads) Select(w http.ResponseWriter, r *http.Request) {
	sess := resolveSession(t.sessions, r)

	if err := sess.SelectThread(r.PathValue("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			t.writer.WriteErrorResponse(w, http.StatusNotFound, "Thread not found.")
			return
		}
		t.writer.WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	t.writer.WriteSuccessResponse(w, snapshotOf(sess))
}

func (t *threads) Delete(w http.ResponseWriter, r *http.Request) {
	sess := resolveSession(t.sessions, r)

	id := r.PathValue("id")
	if err := sess.DeleteThread(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			t.writer.WriteErrorResponse(w, http.StatusNotFound, "Thread not found.")
			return
		}
		t.writer.WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	t.writer.WriteSuccessResponse(w, map[string]string{"deleted": id})
}

func (t *threads) New(w http.ResponseWriter, r *http.Request) {
	sess := resolveSession(t.sessions, r)

	sess.NewThread()

	t.writer.WriteSuccessResponse(w, snapshotOf(sess))
}
