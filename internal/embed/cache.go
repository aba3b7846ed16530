package embed

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// ClientCache caches Gemini API clients per API key for the process
// lifetime. Client construction performs credential setup and is not cheap,
// so first construction for a key is serialized behind a mutex.
//
// The cache is injected where needed rather than held as package state, and
// is safe for concurrent use.
type ClientCache struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewClientCache creates an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{clients: make(map[string]*genai.Client)}
}

// Client returns the cached client for apiKey, constructing it on first use.
func (c *ClientCache) Client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[apiKey]; ok {
		return client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	c.clients[apiKey] = client
	return client, nil
}
