// Package conversation owns the visible state of a chat-search session: the
// ordered message list, the source/image/video accumulators and the thread
// history. All mutation happens through its own callback handlers.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dskvich/perplexed/pkg/domain"
	"github.com/dskvich/perplexed/pkg/logger"
)

const threadHistoryLimit = 50

type Orchestrator interface {
	Answer(ctx context.Context, query string, history []domain.Message, mode domain.Mode, cb domain.StreamCallbacks)
}

type RelatedFetcher interface {
	FetchRelated(ctx context.Context, query, answer string) []string
}

type ThreadRepository interface {
	Save(ctx context.Context, userID string, thread domain.SearchThread) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.SearchThread, error)
	Delete(ctx context.Context, id string) error
}

// Session is one user-visible conversation. A fresh search resets the
// accumulators; follow-ups append to them. Thread persistence and related
// questions run as detached tasks and never block or fail the conversation.
type Session struct {
	orchestrator Orchestrator
	related      RelatedFetcher
	threadRepo   ThreadRepository
	userID       string

	mu               sync.Mutex
	threads          []domain.SearchThread
	currentThreadID  string
	messages         []domain.Message
	sources          []domain.Source
	images           []string
	videos           []domain.Video
	relatedQuestions []string
	loading          bool
	sourcesLoading   bool
	relatedLoading   bool

	tasks sync.WaitGroup
}

// NewSession creates a session and, when a user identity and storage are
// available, restores that user's most recent threads. threadRepo may be nil.
func NewSession(orchestrator Orchestrator, related RelatedFetcher, threadRepo ThreadRepository, userID string) *Session {
	s := &Session{
		orchestrator: orchestrator,
		related:      related,
		threadRepo:   threadRepo,
		userID:       userID,
	}

	if userID != "" && threadRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		threads, err := threadRepo.ListByUser(ctx, userID, threadHistoryLimit)
		if err != nil {
			slog.Error("loading search threads", "userID", userID, logger.Err(err))
		} else {
			s.threads = threads
		}
	}

	return s
}

// Search runs one turn. It blocks until the turn reaches its terminal
// callback; observer fields are invoked as the turn progresses and may be
// nil. A second call while a turn is in flight is rejected with
// domain.ErrTurnInFlight.
func (s *Session) Search(ctx context.Context, query string, mode domain.Mode, observer domain.StreamCallbacks) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ErrEmptyQuery
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return domain.ErrTurnInFlight
	}
	s.loading = true
	s.sourcesLoading = true
	s.relatedQuestions = nil

	isFollowUp := len(s.messages) > 0
	if !isFollowUp {
		s.sources = nil
		s.images = nil
		s.videos = nil
	}

	// History must not include the turn being started.
	history := make([]domain.Message, len(s.messages))
	copy(history, s.messages)

	s.messages = append(s.messages, domain.Message{
		ID:      uuid.NewString(),
		Role:    domain.RoleUser,
		Content: query,
	})

	assistantID := uuid.NewString()
	s.messages = append(s.messages, domain.Message{
		ID:          assistantID,
		Role:        domain.RoleAssistant,
		IsStreaming: true,
	})
	s.mu.Unlock()

	// Snapshot of this turn's search result, captured when sources arrive.
	// Thread persistence uses it instead of the live accumulators so a later
	// follow-up can't leak into the stored record.
	var turnResult domain.SearchResult

	s.orchestrator.Answer(ctx, query, history, mode, domain.StreamCallbacks{
		OnStart: func() {
			s.mu.Lock()
			s.sourcesLoading = false
			s.mu.Unlock()

			if observer.OnStart != nil {
				observer.OnStart()
			}
		},
		OnSources: func(result domain.SearchResult) {
			s.mu.Lock()
			turnResult = result
			if isFollowUp {
				s.sources = append(s.sources, result.Sources...)
				s.images = append(s.images, result.Images...)
				s.videos = append(s.videos, result.Videos...)
			} else {
				s.sources = append([]domain.Source(nil), result.Sources...)
				s.images = append([]string(nil), result.Images...)
				s.videos = append([]domain.Video(nil), result.Videos...)
			}
			s.sourcesLoading = false
			s.mu.Unlock()

			if observer.OnSources != nil {
				observer.OnSources(result)
			}
		},
		OnChunk: func(fragment string) {
			s.mu.Lock()
			s.appendToMessage(assistantID, fragment)
			s.mu.Unlock()

			if observer.OnChunk != nil {
				observer.OnChunk(fragment)
			}
		},
		OnComplete: func(fullText string) {
			s.mu.Lock()
			s.finalizeMessage(assistantID, fullText)
			s.loading = false

			if !isFollowUp {
				thread := domain.SearchThread{
					ID:        uuid.NewString(),
					Query:     query,
					Answer:    fullText,
					Sources:   turnResult.Sources,
					Images:    turnResult.Images,
					Videos:    turnResult.Videos,
					CreatedAt: time.Now(),
				}
				s.threads = append([]domain.SearchThread{thread}, s.threads...)
				s.currentThreadID = thread.ID

				if s.userID != "" && s.threadRepo != nil {
					s.tasks.Add(1)
					go func() {
						defer s.tasks.Done()
						s.persistThread(thread)
					}()
				}
			}
			s.mu.Unlock()

			s.tasks.Add(1)
			go func() {
				defer s.tasks.Done()
				s.fetchRelated(query, fullText)
			}()

			if observer.OnComplete != nil {
				observer.OnComplete(fullText)
			}
		},
		OnError: func(err error) {
			s.mu.Lock()
			s.finalizeMessage(assistantID, "Error: "+err.Error())
			s.loading = false
			s.sourcesLoading = false
			s.mu.Unlock()

			if observer.OnError != nil {
				observer.OnError(err)
			}
		},
	})

	return nil
}

// NewThread resets the session to its initial empty state.
func (s *Session) NewThread() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.messages = nil
	s.sources = nil
	s.images = nil
	s.videos = nil
	s.relatedQuestions = nil
	s.currentThreadID = ""
}

// SelectThread replaces the conversation with the stored exchange of the
// given thread and refreshes its related questions.
func (s *Session) SelectThread(id string) error {
	s.mu.Lock()

	var thread *domain.SearchThread
	for i := range s.threads {
		if s.threads[i].ID == id {
			thread = &s.threads[i]
			break
		}
	}
	if thread == nil {
		s.mu.Unlock()
		return domain.ErrNotFound
	}

	s.currentThreadID = thread.ID
	s.sources = append([]domain.Source(nil), thread.Sources...)
	s.images = append([]string(nil), thread.Images...)
	s.videos = append([]domain.Video(nil), thread.Videos...)
	s.relatedQuestions = nil
	s.messages = []domain.Message{
		{ID: uuid.NewString(), Role: domain.RoleUser, Content: thread.Query},
		{ID: uuid.NewString(), Role: domain.RoleAssistant, Content: thread.Answer},
	}

	query, answer := thread.Query, thread.Answer
	s.mu.Unlock()

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		s.fetchRelated(query, answer)
	}()

	return nil
}

// DeleteThread removes a thread from the history and from storage. Deleting
// the active thread additionally resets the conversation like NewThread.
// The storage delete is issued even for ids missing from the in-memory list,
// so records written by another process can still be removed.
func (s *Session) DeleteThread(id string) error {
	persisted := s.userID != "" && s.threadRepo != nil

	s.mu.Lock()

	idx := -1
	for i := range s.threads {
		if s.threads[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 && !persisted {
		s.mu.Unlock()
		return domain.ErrNotFound
	}

	if idx >= 0 {
		s.threads = append(s.threads[:idx], s.threads[idx+1:]...)
		if s.currentThreadID == id {
			s.resetLocked()
		}
	}
	s.mu.Unlock()

	if persisted {
		s.tasks.Add(1)
		go func() {
			defer s.tasks.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := s.threadRepo.Delete(ctx, id); err != nil {
				slog.Error("deleting search thread", "threadID", id, logger.Err(err))
			}
		}()
	}

	return nil
}

func (s *Session) appendToMessage(id, fragment string) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content += fragment
			return
		}
	}
}

func (s *Session) finalizeMessage(id, content string) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			s.messages[i].IsStreaming = false
			return
		}
	}
}

func (s *Session) persistThread(thread domain.SearchThread) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.threadRepo.Save(ctx, s.userID, thread); err != nil {
		slog.Error("persisting search thread", "threadID", thread.ID, logger.Err(err))
	}
}

func (s *Session) fetchRelated(query, answer string) {
	s.mu.Lock()
	s.relatedLoading = true
	s.relatedQuestions = nil
	s.mu.Unlock()

	questions := s.related.FetchRelated(context.Background(), query, answer)

	s.mu.Lock()
	s.relatedQuestions = questions
	s.relatedLoading = false
	s.mu.Unlock()
}

func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func (s *Session) Sources() []domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Source(nil), s.sources...)
}

func (s *Session) Images() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.images...)
}

func (s *Session) Videos() []domain.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Video(nil), s.videos...)
}

func (s *Session) RelatedQuestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.relatedQuestions...)
}

func (s *Session) Threads() []domain.SearchThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SearchThread(nil), s.threads...)
}

func (s *Session) CurrentThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentThreadID
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) IsSourcesLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourcesLoading
}

func (s *Session) IsRelatedLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relatedLoading
}
