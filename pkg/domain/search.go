package domain

import "time"

type Source struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
	Favicon string `json:"favicon,omitempty"`
}

type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Channel      string `json:"channel,omitempty"`
}

// SearchResult is what a search provider returns for one query.
type SearchResult struct {
	Sources []Source `json:"sources"`
	Images  []string `json:"images"`
	Videos  []Video  `json:"videos"`
}

// SearchThread is a persisted initial exchange. Follow-ups are never
// materialized as threads.
type SearchThread struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	Images    []string  `json:"images"`
	Videos    []Video   `json:"videos"`
	CreatedAt time.Time `json:"createdAt"`
}
