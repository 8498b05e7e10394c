package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptyQuery    = errors.New("query is empty")
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrTurnInFlight  = errors.New("a search is already in progress for this conversation")
	ErrSearchFailed  = errors.New("failed to search the web")
	ErrRateLimited   = errors.New("rate limit exceeded, please try again later")
	ErrUsageLimited  = errors.New("usage limit reached, please add credits")
	ErrNotConfigured = errors.New("chat gateway is not configured")
)
