// Package permission defines the permission taxonomy and the request payloads
// surfaced to the user before a guarded tool call may run.
package permission

// Type classifies what a tool call wants to do.
type Type string

const (
	TypeRead    Type = "read"
	TypeWrite   Type = "write"
	TypeAll     Type = "all"
	TypeCommand Type = "command"
)

// TypeForTool maps a builtin tool name to its permission type.
func TypeForTool(name string) Type {
	switch name {
	case "Read", "Glob", "Grep", "WebFetch":
		return TypeRead
	case "Write", "Edit":
		return TypeWrite
	case "Bash":
		return TypeCommand
	default:
		return TypeAll
	}
}

// Request is the full payload shown to the user when a tool call needs
// approval. It is never truncated on its way to the UI.
type Request struct {
	ToolName    string `json:"tool_name"`
	Type        Type   `json:"type"`
	Description string `json:"description,omitempty"`

	// FilePath is set for file-touching tools.
	FilePath string `json:"file_path,omitempty"`

	// Diff is set for Edit/Write requests.
	Diff *DiffMeta `json:"diff,omitempty"`

	// Command is set for Bash requests.
	Command *CommandMeta `json:"command,omitempty"`
}

// DiffMeta carries the change preview for file modifications.
type DiffMeta struct {
	Unified   string `json:"unified"`
	IsNewFile bool   `json:"is_new_file,omitempty"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
}

// CommandMeta carries the command signature for shell execution requests.
type CommandMeta struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Background  bool   `json:"background,omitempty"`
}

// Verdict is the outcome of a pre-check, before any execution happens.
type Verdict struct {
	// Required is true when the call must wait for a user decision.
	Required bool

	// Denied is true when settings rules reject the call outright. The
	// processor synthesizes a denial without pausing the batch.
	Denied bool

	// Request is set when Required is true.
	Request *Request
}

// Allowed returns a verdict that lets the call run unguarded.
func Allowed() Verdict { return Verdict{} }

// Ask returns a verdict that pauses the batch for the given request.
func Ask(req *Request) Verdict { return Verdict{Required: true, Request: req} }

// Deny returns a verdict that rejects the call without asking.
func Deny() Verdict { return Verdict{Denied: true} }
