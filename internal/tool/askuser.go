package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionOption is a single selectable answer.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Question is one question posed to the user.
type Question struct {
	Question    string           `json:"question"`
	Header      string           `json:"header"`
	Options     []QuestionOption `json:"options"`
	MultiSelect bool             `json:"multiSelect"`
}

// AskUserQuestionTool pauses the loop until the user answers. It never
// executes on its own: the processor surfaces the parsed questions to the
// frontend and the engine formats the answers into the tool result.
type AskUserQuestionTool struct{}

func (t *AskUserQuestionTool) Name() string { return QuestionToolName }

func (t *AskUserQuestionTool) Definition() Definition {
	return Definition{
		Name:        QuestionToolName,
		Description: "Ask the user questions to gather preferences, clarify requirements, or get decisions on implementation choices. Use when you need user input to proceed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"questions": map[string]any{
					"type":        "array",
					"description": "Questions to ask the user (1-4 questions)",
					"minItems":    1,
					"maxItems":    4,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"question": map[string]any{
								"type":        "string",
								"description": "The complete question to ask the user",
							},
							"header": map[string]any{
								"type":        "string",
								"maxLength":   12,
								"description": "Very short label displayed as a chip/tag (max 12 chars)",
							},
							"options": map[string]any{
								"type":        "array",
								"description": "The available choices (2-4 options)",
								"minItems":    2,
								"maxItems":    4,
								"items": map[string]any{
									"type": "object",
									"properties": map[string]any{
										"label":       map[string]any{"type": "string"},
										"description": map[string]any{"type": "string"},
									},
									"required": []string{"label", "description"},
								},
							},
							"multiSelect": map[string]any{
								"type":    "boolean",
								"default": false,
							},
						},
						"required": []string{"question", "header", "options", "multiSelect"},
					},
				},
			},
			"required": []string{"questions"},
		},
	}
}

// ParseQuestions validates and parses the questions parameter.
func ParseQuestions(params map[string]any) ([]Question, error) {
	questionsRaw, ok := params["questions"]
	if !ok {
		return nil, fmt.Errorf("missing required parameter: questions")
	}
	questionsJSON, err := json.Marshal(questionsRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid questions format: %w", err)
	}
	var questions []Question
	if err := json.Unmarshal(questionsJSON, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}

	if len(questions) == 0 || len(questions) > 4 {
		return nil, fmt.Errorf("questions must have 1-4 items, got %d", len(questions))
	}
	for i, q := range questions {
		if q.Question == "" {
			return nil, fmt.Errorf("question[%d]: question text is required", i)
		}
		if len(q.Header) > 12 {
			return nil, fmt.Errorf("question[%d]: header must be at most 12 characters", i)
		}
		if len(q.Options) < 2 || len(q.Options) > 4 {
			return nil, fmt.Errorf("question[%d]: must have 2-4 options, got %d", i, len(q.Options))
		}
		for j, opt := range q.Options {
			if opt.Label == "" {
				return nil, fmt.Errorf("question[%d].options[%d]: label is required", i, j)
			}
		}
	}
	return questions, nil
}

// FormatAnswers renders the user's answers into a tool result for the model.
func FormatAnswers(questions []Question, answers map[int][]string) string {
	var sb strings.Builder
	sb.WriteString("User responses:\n")
	for i, q := range questions {
		selected := answers[i]
		if len(selected) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s: %s", q.Header, strings.Join(selected, ", "))
	}
	return sb.String()
}

// Execute is never called directly; the processor intercepts the question tool.
func (t *AskUserQuestionTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	return "", fmt.Errorf("%s requires user interaction", QuestionToolName)
}

func init() {
	Register(&AskUserQuestionTool{})
}
