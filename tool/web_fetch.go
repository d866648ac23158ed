package tool

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/smallnest/researchcanvas/log"
)

// FetchError is the sentinel content recorded for a resource that could not be fetched.
const FetchError = "ERROR"

// DefaultFetchTimeout bounds a single page download.
const DefaultFetchTimeout = 30 * time.Second

const userAgent = "Mozilla/5.0 (compatible; researchcanvas/1.0)"

// WebFetch downloads url and returns its visible text.
func WebFetch(url string) (string, error) {
	return WebFetchContext(context.Background(), &http.Client{Timeout: DefaultFetchTimeout}, url)
}

// WebFetchContext downloads url with client and returns its visible text.
// Scripts, styles and embedded frames are removed and whitespace is collapsed.
func WebFetchContext(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	text := strings.Join(strings.Fields(root.Text()), " ")
	if text == "" {
		return "", fmt.Errorf("no text content found")
	}

	return text, nil
}

// ResourceFetcher retrieves resource content for the conversation.
type ResourceFetcher struct {
	Client *http.Client
}

// NewResourceFetcher returns a fetcher whose downloads time out after timeout.
// A non-positive timeout selects DefaultFetchTimeout.
func NewResourceFetcher(timeout time.Duration) *ResourceFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &ResourceFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch returns the text of url, or FetchError on any failure.
func (f *ResourceFetcher) Fetch(ctx context.Context, url string) string {
	var client *http.Client
	if f != nil {
		client = f.Client
	}

	content, err := WebFetchContext(ctx, client, url)
	if err != nil {
		log.Warn("fetch %s failed: %v", url, err)
		return FetchError
	}
	return content
}
