package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dskvich/perplexed/pkg/domain"
)

type answerCall struct {
	query   string
	history []domain.Message
	mode    domain.Mode
}

// fakeOrchestrator replays a scripted callback sequence per turn.
type fakeOrchestrator struct {
	script func(query string, cb domain.StreamCallbacks)
	calls  []answerCall
}

func (f *fakeOrchestrator) Answer(_ context.Context, query string, history []domain.Message, mode domain.Mode, cb domain.StreamCallbacks) {
	f.calls = append(f.calls, answerCall{query: query, history: history, mode: mode})
	f.script(query, cb)
}

func completeWith(result domain.SearchResult, chunks ...string) func(string, domain.StreamCallbacks) {
	return func(_ string, cb domain.StreamCallbacks) {
		cb.OnStart()
		cb.OnSources(result)
		var full strings.Builder
		for _, c := range chunks {
			full.WriteString(c)
			cb.OnChunk(c)
		}
		cb.OnComplete(full.String())
	}
}

func failWith(err error) func(string, domain.StreamCallbacks) {
	return func(_ string, cb domain.StreamCallbacks) {
		cb.OnStart()
		cb.OnError(err)
	}
}

type fakeRelated struct {
	mu        sync.Mutex
	questions []string
	calls     int
}

func (f *fakeRelated) FetchRelated(_ context.Context, _, _ string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.questions
}

func (f *fakeRelated) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type savedThread struct {
	userID string
	thread domain.SearchThread
}

type fakeThreadRepo struct {
	mu      sync.Mutex
	saved   []savedThread
	deleted []string
	listed  []domain.SearchThread
	saveErr error
	listErr error
}

func (f *fakeThreadRepo) Save(_ context.Context, userID string, thread domain.SearchThread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedThread{userID: userID, thread: thread})
	return f.saveErr
}

func (f *fakeThreadRepo) ListByUser(_ context.Context, _ string, _ int) ([]domain.SearchThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed, f.listErr
}

func (f *fakeThreadRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeThreadRepo) savedThreads() []savedThread {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedThread(nil), f.saved...)
}

func resultWithSources(ids ...string) domain.SearchResult {
	result := domain.SearchResult{}
	for _, id := range ids {
		result.Sources = append(result.Sources, domain.Source{ID: id, Title: "title " + id})
		result.Images = append(result.Images, "https://img.example.com/"+id+".jpg")
		result.Videos = append(result.Videos, domain.Video{ID: id, Title: "video " + id})
	}
	return result
}

func TestSearchFreshTurn(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(
		resultWithSources("1", "2", "3"),
		"Paris", " is", " the", " capital",
	)}
	related := &fakeRelated{questions: []string{"Q1?", "Q2?", "Q3?"}}
	s := NewSession(orch, related, nil, "")

	var sourcesBeforeFirstChunk bool
	var sawSources bool
	err := s.Search(context.Background(), "capital of France", domain.ModeResearch, domain.StreamCallbacks{
		OnSources: func(domain.SearchResult) { sawSources = true },
		OnChunk: func(string) {
			if !sourcesBeforeFirstChunk {
				sourcesBeforeFirstChunk = sawSources
			}
		},
	})
	require.NoError(t, err)
	s.tasks.Wait()

	assert.True(t, sourcesBeforeFirstChunk, "sources must arrive before any chunk")

	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "capital of France", messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Paris is the capital", messages[1].Content)
	assert.False(t, messages[1].IsStreaming)

	assert.Len(t, s.Sources(), 3)
	assert.Len(t, s.Images(), 3)
	assert.Len(t, s.Videos(), 3)
	assert.Equal(t, []string{"Q1?", "Q2?", "Q3?"}, s.RelatedQuestions())
	assert.False(t, s.IsLoading())

	threads := s.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "capital of France", threads[0].Query)
	assert.Equal(t, "Paris is the capital", threads[0].Answer)
	assert.Len(t, threads[0].Sources, 3)
	assert.False(t, threads[0].CreatedAt.IsZero())
	assert.Equal(t, threads[0].ID, s.CurrentThreadID())
}

func TestSearchFreshTurnReplacesAccumulators(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "first")}
	s := NewSession(orch, &fakeRelated{}, nil, "")

	require.NoError(t, s.Search(context.Background(), "one", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	// Reset the conversation so the next turn is fresh again.
	s.NewThread()

	orch.script = completeWith(resultWithSources("b", "c"), "second")
	require.NoError(t, s.Search(context.Background(), "two", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	sources := s.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "b", sources[0].ID)
	assert.Equal(t, "c", sources[1].ID)
	assert.Len(t, s.Images(), 2)
	assert.Len(t, s.Videos(), 2)
}

func TestSearchFollowUpAppendsAccumulators(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "first")}
	s := NewSession(orch, &fakeRelated{}, nil, "")

	require.NoError(t, s.Search(context.Background(), "one", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	orch.script = completeWith(resultWithSources("b", "c"), "second")
	require.NoError(t, s.Search(context.Background(), "two", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	// Union, order preserving, previous first.
	sources := s.Sources()
	require.Len(t, sources, 3)
	assert.Equal(t, "a", sources[0].ID)
	assert.Equal(t, "b", sources[1].ID)
	assert.Equal(t, "c", sources[2].ID)
	assert.Len(t, s.Images(), 3)
	assert.Len(t, s.Videos(), 3)

	require.Len(t, s.Messages(), 4)
}

func TestSearchFollowUpHistoryExcludesNewTurn(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "answer one")}
	s := NewSession(orch, &fakeRelated{}, nil, "")

	require.NoError(t, s.Search(context.Background(), "one", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	orch.script = completeWith(resultWithSources("b"), "answer two")
	require.NoError(t, s.Search(context.Background(), "two", domain.ModeCode, domain.StreamCallbacks{}))
	s.tasks.Wait()

	require.Len(t, orch.calls, 2)
	assert.Empty(t, orch.calls[0].history)
	assert.Equal(t, domain.ModeCode, orch.calls[1].mode)

	history := orch.calls[1].history
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].Content)
	assert.Equal(t, "answer one", history[1].Content)
}

func TestExactlyOneStreamingMessageDuringTurn(t *testing.T) {
	streamingCounts := make([]int, 0, 4)
	var s *Session

	countStreaming := func() int {
		n := 0
		for _, m := range s.Messages() {
			if m.IsStreaming {
				n++
			}
		}
		return n
	}

	orch := &fakeOrchestrator{script: func(_ string, cb domain.StreamCallbacks) {
		cb.OnStart()
		streamingCounts = append(streamingCounts, countStreaming())
		cb.OnSources(domain.SearchResult{})
		cb.OnChunk("x")
		streamingCounts = append(streamingCounts, countStreaming())
		cb.OnComplete("x")
		streamingCounts = append(streamingCounts, countStreaming())
	}}
	s = NewSession(orch, &fakeRelated{}, nil, "")

	require.NoError(t, s.Search(context.Background(), "query", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	assert.Equal(t, []int{1, 1, 0}, streamingCounts)
}

func TestSearchErrorTurn(t *testing.T) {
	orch := &fakeOrchestrator{script: failWith(domain.ErrRateLimited)}
	related := &fakeRelated{questions: []string{"unused?"}}
	repo := &fakeThreadRepo{}
	s := NewSession(orch, related, repo, "user-1")

	var gotErr error
	require.NoError(t, s.Search(context.Background(), "query", domain.ModeResearch, domain.StreamCallbacks{
		OnError: func(err error) { gotErr = err },
	}))
	s.tasks.Wait()

	assert.ErrorIs(t, gotErr, domain.ErrRateLimited)

	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "Error: "+domain.ErrRateLimited.Error(), messages[1].Content)
	assert.False(t, messages[1].IsStreaming)
	assert.False(t, s.IsLoading())

	// No thread, no persistence, no related questions on a failed turn.
	assert.Empty(t, s.Threads())
	assert.Empty(t, repo.savedThreads())
	assert.Zero(t, related.callCount())
}

func TestFollowUpCompletionCreatesNoThread(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "one")}
	s := NewSession(orch, &fakeRelated{}, nil, "")

	require.NoError(t, s.Search(context.Background(), "first", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()
	require.Len(t, s.Threads(), 1)

	orch.script = completeWith(resultWithSources("b"), "two")
	require.NoError(t, s.Search(context.Background(), "second", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	assert.Len(t, s.Threads(), 1)
}

func TestCompleteOverwritesAccumulatedDrift(t *testing.T) {
	orch := &fakeOrchestrator{script: func(_ string, cb domain.StreamCallbacks) {
		cb.OnStart()
		cb.OnSources(domain.SearchResult{})
		cb.OnChunk("drif")
		cb.OnChunk("ted")
		cb.OnComplete("authoritative text")
	}}
	s := NewSession(orch, &fakeRelated{}, nil, "")

	require.NoError(t, s.Search(context.Background(), "query", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	messages := s.Messages()
	assert.Equal(t, "authoritative text", messages[1].Content)
}

func TestPersistedThreadSnapshotIgnoresFollowUpSources(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "one")}
	repo := &fakeThreadRepo{}
	s := NewSession(orch, &fakeRelated{}, repo, "user-1")

	require.NoError(t, s.Search(context.Background(), "first", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	orch.script = completeWith(resultWithSources("b", "c"), "two")
	require.NoError(t, s.Search(context.Background(), "second", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	// Live accumulator grew, the stored thread did not.
	assert.Len(t, s.Sources(), 3)

	saved := repo.savedThreads()
	require.Len(t, saved, 1)
	assert.Equal(t, "user-1", saved[0].userID)
	require.Len(t, saved[0].thread.Sources, 1)
	assert.Equal(t, "a", saved[0].thread.Sources[0].ID)

	threads := s.Threads()
	require.Len(t, threads, 1)
	assert.Len(t, threads[0].Sources, 1)
}

func TestPersistenceFailureKeepsInMemoryThread(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "answer")}
	repo := &fakeThreadRepo{saveErr: errors.New("db down")}
	s := NewSession(orch, &fakeRelated{}, repo, "user-1")

	require.NoError(t, s.Search(context.Background(), "query", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	assert.Len(t, s.Threads(), 1)
}

func TestAnonymousTurnIsNotPersisted(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "answer")}
	repo := &fakeThreadRepo{}
	s := NewSession(orch, &fakeRelated{}, repo, "")

	require.NoError(t, s.Search(context.Background(), "query", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	assert.Len(t, s.Threads(), 1)
	assert.Empty(t, repo.savedThreads())
}

func TestSearchRejectsOverlappingTurn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	orch := &fakeOrchestrator{script: func(_ string, cb domain.StreamCallbacks) {
		cb.OnStart()
		close(started)
		<-release
		cb.OnSources(domain.SearchResult{})
		cb.OnComplete("done")
	}}
	s := NewSession(orch, &fakeRelated{}, nil, "")

	done := make(chan error, 1)
	go func() {
		done <- s.Search(context.Background(), "slow", domain.ModeResearch, domain.StreamCallbacks{})
	}()

	<-started
	err := s.Search(context.Background(), "eager", domain.ModeResearch, domain.StreamCallbacks{})
	assert.ErrorIs(t, err, domain.ErrTurnInFlight)

	close(release)
	require.NoError(t, <-done)
	s.tasks.Wait()

	// The rejected turn left no trace.
	assert.Len(t, s.Messages(), 2)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := NewSession(&fakeOrchestrator{}, &fakeRelated{}, nil, "")

	err := s.Search(context.Background(), "  \t ", domain.ModeResearch, domain.StreamCallbacks{})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	assert.Empty(t, s.Messages())
}

func TestNewThreadResetsState(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "answer")}
	s := NewSession(orch, &fakeRelated{questions: []string{"Q?"}}, nil, "")

	require.NoError(t, s.Search(context.Background(), "query", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	s.NewThread()

	assert.Empty(t, s.Messages())
	assert.Empty(t, s.Sources())
	assert.Empty(t, s.Images())
	assert.Empty(t, s.Videos())
	assert.Empty(t, s.RelatedQuestions())
	assert.Empty(t, s.CurrentThreadID())

	// The thread history survives a reset.
	assert.Len(t, s.Threads(), 1)
}

func TestSelectThread(t *testing.T) {
	related := &fakeRelated{questions: []string{"Q?"}}
	stored := domain.SearchThread{
		ID:        "t-1",
		Query:     "stored query",
		Answer:    "stored answer",
		Sources:   []domain.Source{{ID: "s1"}},
		Images:    []string{"img1"},
		CreatedAt: time.Now(),
	}
	repo := &fakeThreadRepo{listed: []domain.SearchThread{stored}}
	s := NewSession(&fakeOrchestrator{}, related, repo, "user-1")

	require.NoError(t, s.SelectThread("t-1"))
	s.tasks.Wait()

	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "stored query", messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Equal(t, "stored answer", messages[1].Content)
	assert.False(t, messages[0].IsStreaming)
	assert.False(t, messages[1].IsStreaming)

	assert.Equal(t, "t-1", s.CurrentThreadID())
	assert.Len(t, s.Sources(), 1)
	assert.Equal(t, []string{"img1"}, s.Images())
	assert.Equal(t, 1, related.callCount())
	assert.Equal(t, []string{"Q?"}, s.RelatedQuestions())
}

func TestSelectThreadUnknownID(t *testing.T) {
	s := NewSession(&fakeOrchestrator{}, &fakeRelated{}, nil, "")

	assert.ErrorIs(t, s.SelectThread("nope"), domain.ErrNotFound)
}

func TestDeleteActiveThreadResetsLikeNewThread(t *testing.T) {
	orch := &fakeOrchestrator{script: completeWith(resultWithSources("a"), "answer")}
	repo := &fakeThreadRepo{}
	s := NewSession(orch, &fakeRelated{}, repo, "user-1")

	require.NoError(t, s.Search(context.Background(), "query", domain.ModeResearch, domain.StreamCallbacks{}))
	s.tasks.Wait()

	active := s.CurrentThreadID()
	require.NotEmpty(t, active)

	require.NoError(t, s.DeleteThread(active))
	s.tasks.Wait()

	assert.Empty(t, s.Threads())
	assert.Empty(t, s.Messages())
	assert.Empty(t, s.Sources())
	assert.Empty(t, s.CurrentThreadID())
	assert.Equal(t, []string{active}, repo.deleted)
}

func TestDeleteInactiveThreadKeepsConversation(t *testing.T) {
	repo := &fakeThreadRepo{listed: []domain.SearchThread{
		{ID: "t-1", Query: "q1", Answer: "a1"},
		{ID: "t-2", Query: "q2", Answer: "a2"},
	}}
	s := NewSession(&fakeOrchestrator{}, &fakeRelated{}, repo, "user-1")

	require.NoError(t, s.SelectThread("t-1"))
	s.tasks.Wait()

	require.NoError(t, s.DeleteThread("t-2"))
	s.tasks.Wait()

	threads := s.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "t-1", threads[0].ID)

	// Conversation untouched.
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, "t-1", s.CurrentThreadID())
}

func TestDeleteThreadUnknownID(t *testing.T) {
	s := NewSession(&fakeOrchestrator{}, &fakeRelated{}, nil, "")

	assert.ErrorIs(t, s.DeleteThread("nope"), domain.ErrNotFound)
}

func TestDeleteThreadNotInMemoryStillDeletesFromStorage(t *testing.T) {
	repo := &fakeThreadRepo{listed: []domain.SearchThread{{ID: "t-1", Query: "q1"}}}
	s := NewSession(&fakeOrchestrator{}, &fakeRelated{}, repo, "user-1")

	// Written by another process, never loaded into this session.
	require.NoError(t, s.DeleteThread("elsewhere"))
	s.tasks.Wait()

	assert.Equal(t, []string{"elsewhere"}, repo.deleted)

	// In-memory state untouched.
	require.Len(t, s.Threads(), 1)
	assert.Equal(t, "t-1", s.Threads()[0].ID)
}

func TestNewSessionLoadsThreadsForIdentity(t *testing.T) {
	repo := &fakeThreadRepo{listed: []domain.SearchThread{
		{ID: "t-1"}, {ID: "t-2"},
	}}

	s := NewSession(&fakeOrchestrator{}, &fakeRelated{}, repo, "user-1")
	assert.Len(t, s.Threads(), 2)

	anon := NewSession(&fakeOrchestrator{}, &fakeRelated{}, repo, "")
	assert.Empty(t, anon.Threads())
}

func TestNewSessionToleratesLoadFailure(t *testing.T) {
	repo := &fakeThreadRepo{listErr: errors.New("db down")}

	s := NewSession(&fakeOrchestrator{}, &fakeRelated{}, repo, "user-1")
	assert.Empty(t, s.Threads())
}
