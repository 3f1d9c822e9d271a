// Package config provides settings management for aide. Settings are loaded
// from the user level (~/.aide/settings.yaml) and overlaid with the project
// level (.aide/settings.yaml); environment variables win over both.
package config

import "time"

// Settings represents the complete aide configuration.
type Settings struct {
	// Provider is the model provider name ("anthropic", "openai").
	Provider string `yaml:"provider,omitempty"`

	// Model is the default model identifier.
	Model string `yaml:"model,omitempty"`

	// MaxTokens overrides the provider's output token limit when > 0.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Permissions defines permission rules for tools.
	Permissions PermissionSettings `yaml:"permissions,omitempty"`

	// Pipeline holds the execution pipeline tunables.
	Pipeline PipelineSettings `yaml:"pipeline,omitempty"`
}

// PermissionSettings defines permission rules for tool execution.
// Rules use the format "Tool(pattern)" with glob-like patterns:
//
//	"Bash(npm:*)"               match npm commands
//	"Read(**/.env)"             match .env files anywhere
//	"Edit(/path/**)"            match files under /path
//	"WebFetch(domain:github.com)" match a specific domain
type PermissionSettings struct {
	// Allow contains patterns that are automatically allowed.
	Allow []string `yaml:"allow,omitempty"`

	// Deny contains patterns that are automatically denied.
	Deny []string `yaml:"deny,omitempty"`

	// Ask contains patterns that require user confirmation.
	Ask []string `yaml:"ask,omitempty"`
}

// PipelineSettings holds the tunable constants of the execution pipeline.
// Zero values mean "use the default".
type PipelineSettings struct {
	// OffloadThreshold is the tool output size in characters above which the
	// raw result is moved to the offload store.
	OffloadThreshold int `yaml:"offload_threshold,omitempty"`

	// RenderFlushMs is the renderer-facing flush interval in milliseconds.
	RenderFlushMs int `yaml:"render_flush_ms,omitempty"`

	// PersistFlushMs is the durable-storage flush interval in milliseconds.
	PersistFlushMs int `yaml:"persist_flush_ms,omitempty"`

	// MaxToolCalls caps tool calls per loop; exceeding it ends the loop.
	MaxToolCalls int `yaml:"max_tool_calls,omitempty"`
}

const (
	DefaultOffloadThreshold = 5000
	DefaultRenderFlush      = 120 * time.Millisecond
	DefaultPersistFlush     = 600 * time.Millisecond
	DefaultMaxToolCalls     = 80
)

// OffloadLimit returns the effective offload threshold.
func (p PipelineSettings) OffloadLimit() int {
	if p.OffloadThreshold > 0 {
		return p.OffloadThreshold
	}
	return DefaultOffloadThreshold
}

// RenderFlush returns the effective renderer-facing flush interval.
func (p PipelineSettings) RenderFlush() time.Duration {
	if p.RenderFlushMs > 0 {
		return time.Duration(p.RenderFlushMs) * time.Millisecond
	}
	return DefaultRenderFlush
}

// PersistFlush returns the effective durable-storage flush interval.
func (p PipelineSettings) PersistFlush() time.Duration {
	if p.PersistFlushMs > 0 {
		return time.Duration(p.PersistFlushMs) * time.Millisecond
	}
	return DefaultPersistFlush
}

// ToolCallCap returns the effective per-loop tool call cap.
func (p PipelineSettings) ToolCallCap() int {
	if p.MaxToolCalls > 0 {
		return p.MaxToolCalls
	}
	return DefaultMaxToolCalls
}

// NewSettings creates a Settings instance with empty rule sets.
func NewSettings() *Settings {
	return &Settings{
		Permissions: PermissionSettings{
			Allow: []string{},
			Deny:  []string{},
			Ask:   []string{},
		},
	}
}

// SessionPermissions tracks runtime permission grants for one conversation.
// "Remember" responses land here; they are never written back to settings.
type SessionPermissions struct {
	// AllowedTools contains tools granted for the whole session.
	AllowedTools map[string]bool

	// AllowedPatterns contains invocation rules granted for the session.
	AllowedPatterns map[string]bool
}

// NewSessionPermissions creates an empty session permission set.
func NewSessionPermissions() *SessionPermissions {
	return &SessionPermissions{
		AllowedTools:    make(map[string]bool),
		AllowedPatterns: make(map[string]bool),
	}
}

// AllowTool marks a tool as allowed for this session.
func (sp *SessionPermissions) AllowTool(toolName string) {
	sp.AllowedTools[toolName] = true
}

// AllowPattern marks a specific invocation rule as allowed for this session.
func (sp *SessionPermissions) AllowPattern(pattern string) {
	sp.AllowedPatterns[pattern] = true
}

// IsToolAllowed checks if a tool is allowed for this session.
func (sp *SessionPermissions) IsToolAllowed(toolName string) bool {
	return sp.AllowedTools[toolName]
}
