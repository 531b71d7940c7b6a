package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownBackend is returned when no client is registered under a backend name.
var ErrUnknownBackend = errors.New("unknown backend")

// BackendRegistry maps backend identifiers (model names) to clients.
type BackendRegistry struct {
	mu      sync.RWMutex
	clients map[string]LLMClient
}

// NewBackendRegistry creates an empty registry.
func NewBackendRegistry() *BackendRegistry {
	return &BackendRegistry{clients: make(map[string]LLMClient)}
}

// Register adds or replaces the client for name.
func (r *BackendRegistry) Register(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// Get returns the client registered under name.
func (r *BackendRegistry) Get(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return client, nil
}

// Names returns the registered backend names in sorted order.
func (r *BackendRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderConfig holds the credentials used to build backends.
type ProviderConfig struct {
	OpenAIEndpoint     string
	OpenAIAPIKey       string
	AnthropicEndpoint  string
	AnthropicAPIKey    string
	AnthropicMaxTokens int
	// AnthropicModels lists model names served by Anthropic in addition to
	// any name starting with "claude".
	AnthropicModels []string
}

// IsAnthropicModel reports whether name is served by the Anthropic provider.
func (c ProviderConfig) IsAnthropicModel(name string) bool {
	if strings.HasPrefix(strings.ToLower(name), "claude") {
		return true
	}
	for _, m := range c.AnthropicModels {
		if m == name {
			return true
		}
	}
	return false
}

// BuildBackendRegistry creates one client per distinct backend name.
func BuildBackendRegistry(cfg ProviderConfig, names []string, logger *zap.Logger) (*BackendRegistry, error) {
	registry := NewBackendRegistry()

	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := registry.Get(name); err == nil {
			continue
		}

		var (
			client LLMClient
			err    error
		)
		if cfg.IsAnthropicModel(name) {
			client, err = NewAnthropicClient(&AnthropicConfig{
				Endpoint:  cfg.AnthropicEndpoint,
				Model:     name,
				APIKey:    cfg.AnthropicAPIKey,
				MaxTokens: cfg.AnthropicMaxTokens,
			}, logger)
		} else {
			client, err = NewClient(&Config{
				Endpoint: cfg.OpenAIEndpoint,
				Model:    name,
				APIKey:   cfg.OpenAIAPIKey,
			}, logger)
		}
		if err != nil {
			return nil, fmt.Errorf("create backend %s: %w", name, err)
		}

		registry.Register(name, client)
		logger.Info("Registered generation backend",
			zap.String("backend", name),
			zap.String("endpoint", client.GetEndpoint()))
	}

	return registry, nil
}
