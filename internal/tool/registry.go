package tool

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/permission"
)

// Registry manages tool registration and permission pre-checks.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[strings.ToLower(t.Name())] = t
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	return t, ok
}

// Definitions lists all registered tool definitions, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// PreCheck classifies a call against the permission rules before execution.
// Guarded tools contribute the full payload (diff, command signature) shown
// to the user.
func (r *Registry) PreCheck(ctx context.Context, name string, params map[string]any, cwd string,
	settings *config.Settings, session *config.SessionPermissions) (permission.Verdict, error) {

	result := settings.CheckPermission(name, params, session)
	switch result {
	case config.PermissionAllow:
		return permission.Allowed(), nil
	case config.PermissionDeny:
		return permission.Deny(), nil
	}

	t, ok := r.Resolve(name)
	if ok {
		if guarded, ok := t.(Guarded); ok {
			req, err := guarded.PreparePermission(ctx, params, cwd)
			if err != nil {
				return permission.Verdict{}, err
			}
			return permission.Ask(req), nil
		}
	}

	return permission.Ask(&permission.Request{
		ToolName:    name,
		Type:        permission.TypeForTool(name),
		Description: config.BuildRule(name, params),
	}), nil
}

// DefaultRegistry is the global default tool registry. Builtin tools register
// themselves here at init time.
var DefaultRegistry = NewRegistry()

// Register adds a tool to the default registry.
func Register(t Tool) {
	DefaultRegistry.Register(t)
}
