package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dskvich/perplexed/pkg/domain"
)

const tavilyEndpoint = "https://api.tavily.com/search"

type tavilyClient struct {
	apiKey     string
	depth      string
	maxResults int
	endpoint   string
	hc         *http.Client
}

// NewTavilyClient creates a Tavily search provider. Depth is Tavily's
// search_depth parameter, "basic" or "advanced"; empty defaults to basic.
func NewTavilyClient(apiKey, depth string) (*tavilyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tavily api key is empty")
	}
	if depth == "" {
		depth = "basic"
	}
	return &tavilyClient{
		apiKey:     apiKey,
		depth:      depth,
		maxResults: defaultMaxResults,
		endpoint:   tavilyEndpoint,
		hc:         &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
	IncludeImages     bool   `json:"include_images"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
	Images []string `json:"images"`
}

func (t *tavilyClient) Search(ctx context.Context, query string) (domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return domain.SearchResult{}, errors.New("query is required")
	}

	payload, err := json.Marshal(tavilyRequest{
		APIKey:        t.apiKey,
		Query:         query,
		SearchDepth:   t.depth,
		MaxResults:    t.maxResults,
		IncludeImages: true,
	})
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.hc.Do(req)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.SearchResult{}, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, body)
	}

	var data tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return domain.SearchResult{}, fmt.Errorf("decoding response: %w", err)
	}

	return t.normalize(data), nil
}

func (t *tavilyClient) normalize(data tavilyResponse) domain.SearchResult {
	result := domain.SearchResult{
		Sources: make([]domain.Source, 0, len(data.Results)),
		Images:  []string{},
		Videos:  []domain.Video{},
	}

	for i, r := range data.Results {
		host := hostOf(r.URL)
		result.Sources = append(result.Sources, domain.Source{
			ID:      strconv.Itoa(i + 1),
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Domain:  stripWWW(host),
			Favicon: faviconURL(host),
		})
	}

	for _, img := range data.Images {
		if len(result.Images) >= maxImages {
			break
		}
		result.Images = append(result.Images, img)
	}

	for _, r := range data.Results {
		if len(result.Videos) >= maxVideos {
			break
		}
		videoID := youtubeVideoID(r.URL)
		if videoID == "" {
			continue
		}
		result.Videos = append(result.Videos, domain.Video{
			ID:           strconv.Itoa(len(result.Videos) + 1),
			Title:        r.Title,
			URL:          r.URL,
			ThumbnailURL: fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", videoID),
			Channel:      stripWWW(hostOf(r.URL)),
		})
	}

	return result
}
