// Package llmprovider resolves a workflow-authored "provider:model" string
// into a concrete model.ChatModel, the way a model-init registry binds a
// model name to a live client. Credentials are read from the environment;
// a provider with no configured key yields a missing_dependency error
// rather than a panic or a silent no-op model.
package llmprovider

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dshills/wf-engine/engine/model"
	"github.com/dshills/wf-engine/engine/model/anthropic"
	"github.com/dshills/wf-engine/engine/model/google"
	"github.com/dshills/wf-engine/engine/model/openai"
)

// Error reports a missing or malformed model binding.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "missing_dependency: " + e.Message }

// Registry resolves and caches ChatModel clients by "provider:model" spec.
type Registry struct {
	mu    sync.Mutex
	cache map[string]model.ChatModel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cache: map[string]model.ChatModel{}}
}

// Resolve returns the ChatModel bound to spec, constructing and caching it
// on first use.
func (r *Registry) Resolve(spec string) (model.ChatModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.cache[spec]; ok {
		return m, nil
	}

	provider, modelName, err := splitSpec(spec)
	if err != nil {
		return nil, err
	}

	var m model.ChatModel
	switch provider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, &Error{Message: "OPENAI_API_KEY is not set"}
		}
		m = openai.NewChatModel(key, modelName)
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, &Error{Message: "ANTHROPIC_API_KEY is not set"}
		}
		m = anthropic.NewChatModel(key, modelName)
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, &Error{Message: "GOOGLE_API_KEY is not set"}
		}
		m = google.NewChatModel(key, modelName)
	default:
		return nil, &Error{Message: fmt.Sprintf("unknown llm provider %q", provider)}
	}

	r.cache[spec] = m
	return m, nil
}

func splitSpec(spec string) (provider, modelName string, err error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &Error{Message: fmt.Sprintf("model spec must be 'provider:model', got %q", spec)}
	}
	return parts[0], parts[1], nil
}
