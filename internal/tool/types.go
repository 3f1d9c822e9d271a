// Package tool defines the tool catalog the pipeline dispatches against and
// the builtin tools that ship with aide.
package tool

import (
	"context"

	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/permission"
)

// QuestionToolName is the reserved tool that pauses the loop for user input.
// The processor rejects it when it is not the sole call in its batch.
const QuestionToolName = "AskUserQuestion"

// Definition describes a tool to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// Tool is an executable tool.
type Tool interface {
	// Name returns the tool name.
	Name() string

	// Definition returns the tool's schema for the model.
	Definition() Definition

	// Execute runs the tool. A returned error becomes an error tool result;
	// it never aborts sibling calls in the same batch.
	Execute(ctx context.Context, params map[string]any, cwd string) (string, error)
}

// Guarded is a tool that can build a rich permission payload (diff, command
// signature) for the approval prompt.
type Guarded interface {
	Tool

	// PreparePermission builds the full request shown to the user.
	PreparePermission(ctx context.Context, params map[string]any, cwd string) (*permission.Request, error)
}

// Catalog is the uniform capability abstraction the pipeline consumes. The
// builtin Registry implements it; protocol clients would plug in here.
type Catalog interface {
	// Definitions lists all available tool definitions.
	Definitions() []Definition

	// Resolve looks up a tool by name.
	Resolve(name string) (Tool, bool)

	// PreCheck classifies a call before any execution happens.
	PreCheck(ctx context.Context, name string, params map[string]any, cwd string,
		settings *config.Settings, session *config.SessionPermissions) (permission.Verdict, error)
}
