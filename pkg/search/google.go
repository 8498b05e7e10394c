package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/dskvich/perplexed/pkg/domain"
	"github.com/dskvich/perplexed/pkg/logger"
)

const googleEndpoint = "https://www.googleapis.com/customsearch/v1"

const (
	googleMaxImages = 8
	googleMaxVideos = 5
)

// googleClient is the Google Custom Search variant of the search provider.
// It normalizes to the same shapes as Tavily.
type googleClient struct {
	apiKey     string
	cseID      string
	maxResults int
	endpoint   string
	hc         *http.Client
}

func NewGoogleClient(apiKey, cseID string) (*googleClient, error) {
	if apiKey == "" || cseID == "" {
		return nil, fmt.Errorf("google search api key or cse id is empty")
	}
	return &googleClient{
		apiKey:     apiKey,
		cseID:      cseID,
		maxResults: defaultMaxResults,
		endpoint:   googleEndpoint,
		hc:         &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type googleItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
	Pagemap     struct {
		CSEThumbnail []struct {
			Src string `json:"src"`
		} `json:"cse_thumbnail"`
		CSEImage []struct {
			Src string `json:"src"`
		} `json:"cse_image"`
		VideoObject []struct {
			Name         string `json:"name"`
			ThumbnailURL string `json:"thumbnailurl"`
		} `json:"videoobject"`
	} `json:"pagemap"`
}

type googleResponse struct {
	Items []googleItem `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *googleClient) Search(ctx context.Context, query string) (domain.SearchResult, error) {
	data, err := g.query(ctx, query, "")
	if err != nil {
		return domain.SearchResult{}, err
	}
	if data.Error != nil {
		return domain.SearchResult{}, fmt.Errorf("google search: %s", data.Error.Message)
	}

	result := g.normalize(data.Items)

	// A second, image-typed search enriches the image rail. Best effort: the
	// primary results stand on their own if it fails.
	if imageData, err := g.query(ctx, query, "image"); err != nil {
		slog.Warn("google image search failed", logger.Err(err))
	} else if imageData.Error == nil {
		for _, item := range imageData.Items {
			if item.Link != "" && !lo.Contains(result.Images, item.Link) {
				result.Images = append(result.Images, item.Link)
			}
		}
	}

	if len(result.Images) > googleMaxImages {
		result.Images = result.Images[:googleMaxImages]
	}
	return result, nil
}

func (g *googleClient) query(ctx context.Context, query, searchType string) (googleResponse, error) {
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.cseID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(min(g.maxResults, 10)))
	if searchType != "" {
		params.Set("searchType", searchType)
		params.Set("num", "5")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return googleResponse{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.hc.Do(req)
	if err != nil {
		return googleResponse{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	var data googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return googleResponse{}, fmt.Errorf("decoding response: %w", err)
	}
	return data, nil
}

func (g *googleClient) normalize(items []googleItem) domain.SearchResult {
	result := domain.SearchResult{
		Sources: make([]domain.Source, 0, len(items)),
		Images:  []string{},
		Videos:  []domain.Video{},
	}

	for i, item := range items {
		result.Sources = append(result.Sources, domain.Source{
			ID:      fmt.Sprintf("source-%d", i),
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
			Domain:  item.DisplayLink,
			Favicon: faviconURL(item.DisplayLink),
		})

		switch {
		case len(item.Pagemap.CSEImage) > 0 && item.Pagemap.CSEImage[0].Src != "":
			result.Images = append(result.Images, item.Pagemap.CSEImage[0].Src)
		case len(item.Pagemap.CSEThumbnail) > 0 && item.Pagemap.CSEThumbnail[0].Src != "":
			result.Images = append(result.Images, item.Pagemap.CSEThumbnail[0].Src)
		}
	}

	for _, item := range items {
		if len(result.Videos) >= googleMaxVideos {
			break
		}
		switch {
		case len(item.Pagemap.VideoObject) > 0:
			video := item.Pagemap.VideoObject[0]
			title, _ := lo.Coalesce(video.Name, item.Title)
			result.Videos = append(result.Videos, domain.Video{
				ID:           fmt.Sprintf("video-%d", len(result.Videos)),
				Title:        title,
				URL:          item.Link,
				ThumbnailURL: video.ThumbnailURL,
				Channel:      item.DisplayLink,
			})
		case strings.Contains(item.Link, "youtube.com") || strings.Contains(item.Link, "youtu.be"):
			var thumbnail string
			if len(item.Pagemap.CSEThumbnail) > 0 {
				thumbnail = item.Pagemap.CSEThumbnail[0].Src
			}
			result.Videos = append(result.Videos, domain.Video{
				ID:           fmt.Sprintf("video-%d", len(result.Videos)),
				Title:        item.Title,
				URL:          item.Link,
				ThumbnailURL: thumbnail,
				Channel:      "YouTube",
			})
		}
	}

	return result
}
