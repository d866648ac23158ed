package graph

import "context"

// Config configures a single invocation of a compiled graph.
type Config struct {
	// Configurable carries per-invocation values readable by nodes, such as
	// the thread id or the caller's tool choice.
	Configurable map[string]any

	// InterruptBefore pauses execution before any of these nodes runs.
	InterruptBefore []string

	// InterruptAfter pauses execution after any of these nodes has run.
	InterruptAfter []string

	// ResumeFrom starts execution at these nodes instead of the entry point.
	ResumeFrom []string

	// RecursionLimit caps the number of steps; zero means DefaultRecursionLimit.
	RecursionLimit int
}

const threadIDKey = "thread_id"

// WithThreadID returns a config carrying the thread id.
func WithThreadID(threadID string) *Config {
	return &Config{Configurable: map[string]any{threadIDKey: threadID}}
}

// ThreadID returns the thread id stored in the config, if any.
func (c *Config) ThreadID() string {
	if c == nil || c.Configurable == nil {
		return ""
	}
	id, _ := c.Configurable[threadIDKey].(string)
	return id
}

// Get returns a configurable value.
func (c *Config) Get(key string) (any, bool) {
	if c == nil || c.Configurable == nil {
		return nil, false
	}
	v, ok := c.Configurable[key]
	return v, ok
}

// Clone returns a shallow copy safe to modify.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	out := *c
	if c.Configurable != nil {
		out.Configurable = make(map[string]any, len(c.Configurable))
		for k, v := range c.Configurable {
			out.Configurable[k] = v
		}
	}
	out.InterruptBefore = append([]string(nil), c.InterruptBefore...)
	out.InterruptAfter = append([]string(nil), c.InterruptAfter...)
	out.ResumeFrom = append([]string(nil), c.ResumeFrom...)
	return &out
}

type configKey struct{}

// WithConfig adds the config to the context.
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfig retrieves the config from the context.
func GetConfig(ctx context.Context) *Config {
	if config, ok := ctx.Value(configKey{}).(*Config); ok {
		return config
	}
	return nil
}
