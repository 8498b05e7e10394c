// Package search provides web search providers that normalize third-party
// results into the domain's source/image/video shapes.
package search

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultMaxResults = 5
	maxImages         = 6
	maxVideos         = 4
)

// faviconURL derives a favicon for a site the same way for every provider.
func faviconURL(domain string) string {
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=32", domain)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// youtubeVideoID extracts the video id from youtube.com/watch and youtu.be
// links. Empty string means the URL is not a recognizable YouTube video.
func youtubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "youtube.com"):
		return u.Query().Get("v")
	case strings.Contains(host, "youtu.be"):
		return strings.TrimPrefix(u.Path, "/")
	}
	return ""
}
