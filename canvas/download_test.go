package canvas

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadCachesContent(t *testing.T) {
	fetcher := &mapFetcher{pages: map[string]string{"https://a": "A text"}}
	a, _ := newTestAgent(t, &MockLLM{}, func(o *Options) { o.Fetcher = fetcher })

	state := AgentState{Resources: []Resource{{URL: "https://a"}, {URL: "https://broken"}}}.Normalize()
	out, err := a.download(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []Log{
		{Message: "Downloading https://a", Done: true},
		{Message: "Downloading https://broken", Done: true},
	}, out.Logs)
	assert.Equal(t, 2, a.cache.Len())

	// A second pass neither fetches again nor logs.
	again, err := a.download(context.Background(), out)
	require.NoError(t, err)
	assert.Len(t, again.Logs, 2)
	assert.Equal(t, []string{"https://a", "https://broken"}, fetcher.fetched)

	annotated := a.annotate(context.Background(), state.Resources)
	require.Len(t, annotated, 1)
	assert.Equal(t, "A text", annotated[0].Content)
}

func TestDownloadRetriesExpiredFailures(t *testing.T) {
	fetcher := &mapFetcher{pages: map[string]string{"https://a": "A text"}}
	a, _ := newTestAgent(t, &MockLLM{}, func(o *Options) { o.Fetcher = fetcher })
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.cache.now = func() time.Time { return now }

	state := AgentState{Resources: []Resource{{URL: "https://a"}, {URL: "https://flaky"}}}.Normalize()
	out, err := a.download(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, a.annotate(context.Background(), []Resource{{URL: "https://flaky"}}))

	// The site comes back; within the TTL the failure is still served.
	fetcher.mu.Lock()
	fetcher.pages["https://flaky"] = "flaky text"
	fetcher.mu.Unlock()
	now = now.Add(DefaultFailureTTL / 2)
	out, err = a.download(context.Background(), out)
	require.NoError(t, err)
	assert.Len(t, out.Logs, 2)

	now = now.Add(DefaultFailureTTL)
	out, err = a.download(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, Log{Message: "Downloading https://flaky", Done: true}, out.Logs[2])
	assert.Equal(t, []string{"https://a", "https://flaky", "https://flaky"}, fetcher.fetched)

	annotated := a.annotate(context.Background(), state.Resources)
	require.Len(t, annotated, 2)
	assert.Equal(t, "flaky text", annotated[1].Content)
}

func TestDownloadStopsOnCancel(t *testing.T) {
	a, _ := newTestAgent(t, &MockLLM{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.download(ctx, AgentState{Resources: []Resource{{URL: "https://a"}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContentCacheConcurrent(t *testing.T) {
	cache := NewContentCache()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := "https://example.com/" + string(rune('a'+i%26))
			cache.Set(url, "x")
			_, _ = cache.Get(url)
		}()
	}
	wg.Wait()
	assert.Equal(t, 26, cache.Len())
}

func TestPerformDeleteWithoutCall(t *testing.T) {
	a, _ := newTestAgent(t, &MockLLM{})
	state := AgentState{Messages: []Message{HumanMessage("hi")}, Resources: []Resource{{URL: "u"}}}

	out, err := a.performDelete(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, state, out)
}
