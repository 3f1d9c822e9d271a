package config

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PermissionResult represents the result of a permission rule check.
type PermissionResult int

const (
	// PermissionAllow means the action is automatically allowed.
	PermissionAllow PermissionResult = iota

	// PermissionDeny means the action is automatically denied.
	PermissionDeny

	// PermissionAsk means the action requires user confirmation.
	PermissionAsk
)

// String returns a human-readable representation of the permission result.
func (p PermissionResult) String() string {
	switch p {
	case PermissionAllow:
		return "allow"
	case PermissionDeny:
		return "deny"
	case PermissionAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// ReadOnlyTools is the set of tools that never modify files or state.
var ReadOnlyTools = map[string]bool{
	"Read":     true,
	"Glob":     true,
	"Grep":     true,
	"WebFetch": true,
}

// IsReadOnlyTool returns true if the tool is read-only.
func IsReadOnlyTool(toolName string) bool {
	return ReadOnlyTools[toolName]
}

// CheckPermission checks if a tool action is allowed based on settings and
// session permissions. Priority:
//  1. Deny rules (cannot be bypassed by session grants)
//  2. Destructive command protection (always ask)
//  3. Session grants (runtime "remember" responses)
//  4. Allow rules
//  5. Ask rules
//  6. Default (read-only tools allowed, others ask)
func (s *Settings) CheckPermission(toolName string, args map[string]any, session *SessionPermissions) PermissionResult {
	rule := BuildRule(toolName, args)

	if matchesAny(rule, s.Permissions.Deny) {
		return PermissionDeny
	}

	if toolName == "Bash" {
		if cmd, ok := args["command"].(string); ok {
			// A deny rule hitting any segment of a chained command denies
			// the whole invocation.
			for _, sub := range extractBashCommands(cmd) {
				if matchesAny("Bash("+normalizeBashCommand(sub)+")", s.Permissions.Deny) {
					return PermissionDeny
				}
			}
			if IsDestructiveCommand(cmd) {
				return PermissionAsk
			}
		}
	}

	if session != nil {
		if session.IsToolAllowed(toolName) {
			return PermissionAllow
		}
		patterns := make([]string, 0, len(session.AllowedPatterns))
		for p := range session.AllowedPatterns {
			patterns = append(patterns, p)
		}
		if invocationAllowed(toolName, args, rule, patterns) {
			return PermissionAllow
		}
	}

	if invocationAllowed(toolName, args, rule, s.Permissions.Allow) {
		return PermissionAllow
	}

	if matchesAny(rule, s.Permissions.Ask) {
		return PermissionAsk
	}

	if IsReadOnlyTool(toolName) {
		return PermissionAllow
	}
	return PermissionAsk
}

func matchesAny(rule string, patterns []string) bool {
	for _, pattern := range patterns {
		if MatchRule(rule, pattern) {
			return true
		}
	}
	return false
}

// invocationAllowed reports whether an invocation is covered by the allow
// patterns. Chained bash commands require every segment to be covered.
func invocationAllowed(toolName string, args map[string]any, rule string, patterns []string) bool {
	if toolName == "Bash" {
		if cmd, ok := args["command"].(string); ok {
			commands := extractBashCommands(cmd)
			if len(commands) == 0 {
				return false
			}
			for _, sub := range commands {
				if !matchesAny("Bash("+normalizeBashCommand(sub)+")", patterns) {
					return false
				}
			}
			return true
		}
	}
	return matchesAny(rule, patterns)
}

// BuildRule builds a rule string from a tool name and arguments.
// Format: "Tool(args)".
//
//   - Bash: "Bash(npm:install lodash)" (normalized command)
//   - Read/Edit/Write: "Read(/path/to/file)"
//   - Glob/Grep: "Glob(**/*.go)"
//   - WebFetch: "WebFetch(domain:github.com)"
func BuildRule(toolName string, args map[string]any) string {
	var argStr string

	switch toolName {
	case "Bash":
		if cmd, ok := args["command"].(string); ok {
			argStr = normalizeBashCommand(cmd)
		}

	case "Read", "Edit", "Write":
		if fp, ok := args["file_path"].(string); ok {
			argStr = fp
		}

	case "Glob", "Grep":
		if p, ok := args["pattern"].(string); ok {
			argStr = p
		}

	case "WebFetch":
		if u, ok := args["url"].(string); ok {
			if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
				argStr = "domain:" + parsed.Host
			} else {
				argStr = u
			}
		}

	default:
		if fp, ok := args["file_path"].(string); ok {
			argStr = fp
		} else if p, ok := args["path"].(string); ok {
			argStr = p
		} else if p, ok := args["pattern"].(string); ok {
			argStr = p
		}
	}

	return toolName + "(" + argStr + ")"
}

// normalizeBashCommand normalizes a bash command for pattern matching.
//
//	"npm install lodash" -> "npm:install lodash"
//	"/bin/rm -rf foo"    -> "rm:-rf foo"
func normalizeBashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return ""
	}
	parts := strings.SplitN(cmd, " ", 2)
	baseCmd := filepath.Base(parts[0])
	if len(parts) == 1 {
		return baseCmd
	}
	return baseCmd + ":" + parts[1]
}

// extractBashCommands splits a chained bash command on && and ; into its
// individual commands.
func extractBashCommands(cmd string) []string {
	var commands []string
	for _, part := range strings.Split(cmd, "&&") {
		for _, subPart := range strings.Split(part, ";") {
			if trimmed := strings.TrimSpace(subPart); trimmed != "" {
				commands = append(commands, trimmed)
			}
		}
	}
	return commands
}

// MatchRule checks if a rule matches a pattern. Both use the "Tool(args)"
// format; the args side supports *, ** and ? wildcards.
func MatchRule(rule, pattern string) bool {
	toolRule, argsRule := parseRule(rule)
	toolPat, argsPat := parseRule(pattern)

	if toolRule != toolPat {
		return false
	}
	return matchGlob(argsRule, argsPat)
}

// parseRule parses "Bash(npm install)" into ("Bash", "npm install").
func parseRule(s string) (tool, args string) {
	tool, args, found := strings.Cut(s, "(")
	if !found {
		return s, ""
	}
	return tool, strings.TrimSuffix(args, ")")
}

// matchGlob performs glob-like pattern matching with *, ** and ?.
func matchGlob(str, pattern string) bool {
	if pattern == "" {
		return str == ""
	}
	if pattern == "**" {
		return true
	}

	if strings.Contains(pattern, "**") {
		segments := strings.Split(pattern, "**")
		if len(segments) == 2 {
			prefix := strings.TrimSuffix(segments[0], "/")
			suffix := strings.TrimPrefix(segments[1], "/")

			if prefix != "" && !strings.HasPrefix(str, prefix) {
				return false
			}
			if suffix == "" {
				return true
			}
			if !strings.Contains(suffix, "*") {
				return strings.HasSuffix(str, suffix)
			}
			// Wildcard suffix: try the basename first, then the rest of
			// the path after the prefix.
			filename := str
			if idx := strings.LastIndex(str, "/"); idx >= 0 {
				filename = str[idx+1:]
			}
			if matchSimpleWildcard(filename, suffix) {
				return true
			}
			remaining := str
			if prefix != "" {
				remaining = strings.TrimPrefix(remaining, prefix)
				remaining = strings.TrimPrefix(remaining, "/")
			}
			return matchSimpleWildcard(remaining, suffix)
		}
	}

	if strings.Contains(pattern, "*") || strings.Contains(pattern, "?") {
		return matchSimpleWildcard(str, pattern)
	}

	return str == pattern
}

// matchSimpleWildcard matches str against a pattern with * and ? wildcards.
func matchSimpleWildcard(str, pattern string) bool {
	s, p := 0, 0
	starIdx, matchIdx := -1, 0

	for s < len(str) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == str[s]):
			s++
			p++
		case p < len(pattern) && pattern[p] == '*':
			starIdx = p
			matchIdx = s
			p++
		case starIdx != -1:
			p = starIdx + 1
			matchIdx++
			s = matchIdx
		default:
			return false
		}
	}

	for p < len(pattern) {
		if pattern[p] != '*' {
			return false
		}
		p++
	}
	return true
}

// CommonDenyPatterns contains commonly denied patterns for security.
var CommonDenyPatterns = []string{
	"Read(**/.env)",
	"Read(**/.env.*)",
	"Read(**/secrets/**)",
	"Read(**/*credentials*)",
	"Read(**/.aws/**)",
	"Read(**/.ssh/**)",
	"Edit(**/.env)",
	"Edit(**/.env.*)",
	"Write(**/.env)",
	"Write(**/.env.*)",
}

// DestructiveCommands are patterns that always require user confirmation,
// even when a session grant like "allow all Bash" is in effect.
var DestructiveCommands = []string{
	"rm:-rf",
	"rm:-fr",
	"rm:-r",
	"git:reset --hard",
	"git:clean -fd",
	"git:clean -f",
	"git:push --force",
	"git:push -f",
	"chmod:777",
	"chmod:-R 777",
	":(){ :|:& };:",
	"> /dev/",
	"dd:if=",
	"mkfs",
	"fdisk",
}

// IsDestructiveCommand checks if any segment of a bash command matches a
// destructive pattern.
func IsDestructiveCommand(cmd string) bool {
	for _, sub := range extractBashCommands(cmd) {
		normalized := normalizeBashCommand(sub)
		for _, pattern := range DestructiveCommands {
			if strings.Contains(normalized, pattern) {
				return true
			}
		}
	}
	return false
}
