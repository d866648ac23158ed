package canvas

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/tool"
)

// DefaultFailureTTL is how long a failed download is remembered before the
// resource is fetched again.
const DefaultFailureTTL = time.Minute

// ContentCache holds downloaded resource text by URL. Successful downloads
// are kept for the life of the process; failures are kept as
// tool.FetchError for FailureTTL so one turn does not fetch a broken URL
// repeatedly. It is shared by all threads and safe for concurrent use.
type ContentCache struct {
	mu      sync.RWMutex
	content map[string]cacheEntry

	failureTTL time.Duration
	now        func() time.Time
}

type cacheEntry struct {
	content string
	expires time.Time // zero for successful downloads
}

// NewContentCache creates an empty cache that forgets failures after
// DefaultFailureTTL.
func NewContentCache() *ContentCache {
	return &ContentCache{
		content:    make(map[string]cacheEntry),
		failureTTL: DefaultFailureTTL,
		now:        time.Now,
	}
}

// Get returns the cached content of url. An expired failure is a miss.
func (c *ContentCache) Get(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.content[url]
	if !ok || (!e.expires.IsZero() && !c.now().Before(e.expires)) {
		return "", false
	}
	return e.content, true
}

// Set stores the content of url.
func (c *ContentCache) Set(url, content string) {
	e := cacheEntry{content: content}
	if content == tool.FetchError {
		e.expires = c.now().Add(c.failureTTL)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content[url] = e
}

// Len returns the number of cached URLs.
func (c *ContentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.content)
}

// resource returns the content of url from the cache, downloading it on a miss.
func (a *Agent) resource(ctx context.Context, url string) string {
	if content, ok := a.cache.Get(url); ok {
		return content
	}
	content := a.fetcher.Fetch(ctx, url)
	a.cache.Set(url, content)
	return content
}

// download fetches every resource that is not cached yet and records a log
// entry per download.
func (a *Agent) download(ctx context.Context, state AgentState) (AgentState, error) {
	var pending []string
	for _, r := range state.Resources {
		if _, ok := a.cache.Get(r.URL); !ok {
			pending = append(pending, r.URL)
		}
	}
	if len(pending) == 0 {
		return state, nil
	}

	offset := len(state.Logs)
	for _, url := range pending {
		state.Logs = append(state.Logs, Log{Message: "Downloading " + url})
	}

	for i, url := range pending {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if content := a.resource(ctx, url); content == tool.FetchError {
			log.Warn("resource %s could not be downloaded", url)
		}
		state.Logs[offset+i].Done = true
	}

	return state, nil
}

// annotate pairs each resource with its content and drops resources whose
// download failed.
func (a *Agent) annotate(ctx context.Context, resources []Resource) []annotatedResource {
	out := make([]annotatedResource, 0, len(resources))
	for _, r := range resources {
		content := a.resource(ctx, r.URL)
		if content == tool.FetchError {
			continue
		}
		out = append(out, annotatedResource{Resource: r, Content: content})
	}
	return out
}
