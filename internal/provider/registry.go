package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Meta contains static metadata about a registered provider.
type Meta struct {
	Name    Name
	EnvVars []string // required environment variables
}

var (
	registryMu sync.RWMutex
	registry   = map[Name]registration{}
)

type registration struct {
	meta    Meta
	factory Factory
}

// Register adds a provider factory to the registry. Provider packages call
// this from init.
func Register(meta Meta, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[meta.Name] = registration{meta: meta, factory: factory}
}

// New creates the named provider, checking its required environment first.
func New(ctx context.Context, name Name) (LLMProvider, error) {
	registryMu.RLock()
	reg, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	for _, env := range reg.meta.EnvVars {
		if os.Getenv(env) == "" {
			return nil, fmt.Errorf("provider %s requires %s to be set", name, env)
		}
	}
	return reg.factory(ctx)
}

// Available returns the registered providers whose environment is configured.
func Available() []Meta {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var metas []Meta
	for _, reg := range registry {
		configured := true
		for _, env := range reg.meta.EnvVars {
			if os.Getenv(env) == "" {
				configured = false
				break
			}
		}
		if configured {
			metas = append(metas, reg.meta)
		}
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas
}
