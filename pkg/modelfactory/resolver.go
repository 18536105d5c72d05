// Package modelfactory resolves a model name from chat config into a
// constructed llmprovider.Provider plus the ModelConfig that named it,
// caching one provider per distinct client so repeated chat calls never
// rebuild SDK clients.
package modelfactory

import (
	"fmt"
	"sync"

	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/llmprovider"
)

// Resolver resolves model names against a config's clients/models maps.
type Resolver struct {
	clients map[string]chatmsg.ClientConfig
	models  map[string]chatmsg.ModelConfig

	mu        sync.Mutex
	providers map[string]llmprovider.Provider
}

// New builds a Resolver over the given clients and models maps.
func New(clients map[string]chatmsg.ClientConfig, models map[string]chatmsg.ModelConfig) *Resolver {
	return &Resolver{
		clients:   clients,
		models:    models,
		providers: make(map[string]llmprovider.Provider),
	}
}

// Resolve looks up modelName in the models map, lazily constructs (or
// reuses) the provider for its client, and returns both.
func (r *Resolver) Resolve(modelName string) (llmprovider.Provider, chatmsg.ModelConfig, error) {
	model, ok := r.models[modelName]
	if !ok {
		return nil, chatmsg.ModelConfig{}, chatmsg.ModelUnresolvedError(fmt.Sprintf("unknown model %q", modelName), nil)
	}

	client, ok := r.clients[model.Client]
	if !ok {
		return nil, chatmsg.ModelConfig{}, chatmsg.ModelUnresolvedError(
			fmt.Sprintf("model %q references unknown client %q", modelName, model.Client), nil)
	}

	provider, err := r.providerFor(model.Client, client)
	if err != nil {
		return nil, chatmsg.ModelConfig{}, err
	}
	return provider, model, nil
}

func (r *Resolver) providerFor(clientName string, client chatmsg.ClientConfig) (llmprovider.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[clientName]; ok {
		return p, nil
	}

	p, err := newProvider(client)
	if err != nil {
		return nil, chatmsg.ModelUnresolvedError(fmt.Sprintf("client %q: %v", clientName, err), err)
	}
	r.providers[clientName] = p
	return p, nil
}

func newProvider(client chatmsg.ClientConfig) (llmprovider.Provider, error) {
	switch client.Provider {
	case "claude", "anthropic", "":
		return llmprovider.NewClaudeProvider(llmprovider.ClaudeConfig{
			APIKey:  client.APIKey,
			BaseURL: client.BaseURL,
		})
	case "openai":
		return llmprovider.NewOpenAIProvider(llmprovider.OpenAIConfig{
			APIKey:  client.APIKey,
			BaseURL: client.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", client.Provider)
	}
}
