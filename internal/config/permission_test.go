package config

import "testing"

func TestCheckPermissionPriority(t *testing.T) {
	settings := NewSettings()
	settings.Permissions.Allow = []string{"Bash(npm:*)"}
	settings.Permissions.Deny = []string{"Read(**/.env)", "Bash(curl:*)"}
	settings.Permissions.Ask = []string{"WebFetch(domain:internal.example.com)"}

	tests := []struct {
		name string
		tool string
		args map[string]any
		want PermissionResult
	}{
		{"read-only default allow", "Read", map[string]any{"file_path": "/src/main.go"}, PermissionAllow},
		{"deny rule wins", "Read", map[string]any{"file_path": "/src/.env"}, PermissionDeny},
		{"write default ask", "Write", map[string]any{"file_path": "/src/main.go"}, PermissionAsk},
		{"bash allow rule", "Bash", map[string]any{"command": "npm install lodash"}, PermissionAllow},
		{"bash deny rule", "Bash", map[string]any{"command": "curl http://x.test"}, PermissionDeny},
		{"bash default ask", "Bash", map[string]any{"command": "make build"}, PermissionAsk},
		{"ask rule", "WebFetch", map[string]any{"url": "https://internal.example.com/x"}, PermissionAsk},
		{"webfetch default allow", "WebFetch", map[string]any{"url": "https://pkg.go.dev"}, PermissionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := settings.CheckPermission(tt.tool, tt.args, nil); got != tt.want {
				t.Errorf("CheckPermission() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckPermissionDestructiveAlwaysAsks(t *testing.T) {
	settings := NewSettings()
	session := NewSessionPermissions()
	session.AllowTool("Bash")

	if got := settings.CheckPermission("Bash", map[string]any{"command": "ls -la"}, session); got != PermissionAllow {
		t.Errorf("granted bash = %s, want allow", got)
	}
	for _, cmd := range []string{"rm -rf /tmp/x", "git push --force", "git reset --hard HEAD~1"} {
		if got := settings.CheckPermission("Bash", map[string]any{"command": cmd}, session); got != PermissionAsk {
			t.Errorf("destructive %q = %s, want ask despite session grant", cmd, got)
		}
	}
}

func TestCheckPermissionDenyBeatsSessionGrant(t *testing.T) {
	settings := NewSettings()
	settings.Permissions.Deny = []string{"Write(**/.env)"}
	session := NewSessionPermissions()
	session.AllowTool("Write")

	if got := settings.CheckPermission("Write", map[string]any{"file_path": "/app/.env"}, session); got != PermissionDeny {
		t.Errorf("CheckPermission() = %s, want deny", got)
	}
}

func TestCheckPermissionSessionPattern(t *testing.T) {
	settings := NewSettings()
	session := NewSessionPermissions()
	session.AllowPattern("Bash(go:*)")

	if got := settings.CheckPermission("Bash", map[string]any{"command": "go vet ./..."}, session); got != PermissionAllow {
		t.Errorf("go command = %s, want allow via session pattern", got)
	}
	if got := settings.CheckPermission("Bash", map[string]any{"command": "make vet"}, session); got != PermissionAsk {
		t.Errorf("make command = %s, want ask", got)
	}

	// Chained commands need every segment covered.
	if got := settings.CheckPermission("Bash", map[string]any{"command": "go build ./... && go test ./..."}, session); got != PermissionAllow {
		t.Errorf("chained go commands = %s, want allow", got)
	}
	if got := settings.CheckPermission("Bash", map[string]any{"command": "go build && rm x"}, session); got != PermissionAsk {
		t.Errorf("partially covered chain = %s, want ask", got)
	}
}

func TestBuildRule(t *testing.T) {
	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"Bash", map[string]any{"command": "npm install lodash"}, "Bash(npm:install lodash)"},
		{"Bash", map[string]any{"command": "/bin/rm -rf foo"}, "Bash(rm:-rf foo)"},
		{"Read", map[string]any{"file_path": "/a/b.go"}, "Read(/a/b.go)"},
		{"Glob", map[string]any{"pattern": "**/*.go"}, "Glob(**/*.go)"},
		{"WebFetch", map[string]any{"url": "https://github.com/x/y"}, "WebFetch(domain:github.com)"},
	}
	for _, tt := range tests {
		if got := BuildRule(tt.tool, tt.args); got != tt.want {
			t.Errorf("BuildRule(%s, %v) = %q, want %q", tt.tool, tt.args, got, tt.want)
		}
	}
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		rule    string
		pattern string
		want    bool
	}{
		{"Bash(npm:install lodash)", "Bash(npm:*)", true},
		{"Bash(yarn:add x)", "Bash(npm:*)", false},
		{"Read(/home/u/.env)", "Read(**/.env)", true},
		{"Read(/home/u/env.go)", "Read(**/.env)", false},
		{"Edit(/proj/src/a.go)", "Edit(/proj/**)", true},
		{"Edit(/other/a.go)", "Edit(/proj/**)", false},
		{"Glob(**/*.go)", "Glob(**)", true},
		{"Read(x)", "Write(x)", false},
	}
	for _, tt := range tests {
		if got := MatchRule(tt.rule, tt.pattern); got != tt.want {
			t.Errorf("MatchRule(%q, %q) = %v, want %v", tt.rule, tt.pattern, got, tt.want)
		}
	}
}

func TestIsDestructiveCommand(t *testing.T) {
	destructive := []string{
		"rm -rf /tmp/x",
		"git push --force origin main",
		"git reset --hard HEAD~2",
		"chmod 777 /etc/passwd",
		"make build && rm -rf dist",
	}
	for _, cmd := range destructive {
		if !IsDestructiveCommand(cmd) {
			t.Errorf("IsDestructiveCommand(%q) = false, want true", cmd)
		}
	}

	safe := []string{"ls -la", "git status", "rm notes.txt", "grep -rf patterns.txt src"}
	for _, cmd := range safe {
		if IsDestructiveCommand(cmd) {
			t.Errorf("IsDestructiveCommand(%q) = true, want false", cmd)
		}
	}
}

func TestPipelineSettingsDefaults(t *testing.T) {
	var p PipelineSettings
	if p.OffloadLimit() != DefaultOffloadThreshold {
		t.Errorf("OffloadLimit() = %d", p.OffloadLimit())
	}
	if p.RenderFlush() != DefaultRenderFlush || p.PersistFlush() != DefaultPersistFlush {
		t.Errorf("flush intervals = %v / %v", p.RenderFlush(), p.PersistFlush())
	}
	if p.ToolCallCap() != DefaultMaxToolCalls {
		t.Errorf("ToolCallCap() = %d", p.ToolCallCap())
	}

	p = PipelineSettings{OffloadThreshold: 100, RenderFlushMs: 10, PersistFlushMs: 20, MaxToolCalls: 3}
	if p.OffloadLimit() != 100 || p.ToolCallCap() != 3 {
		t.Error("overrides not honored")
	}
}
