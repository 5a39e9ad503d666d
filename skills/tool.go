package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modoki-agent/modoki/tools"
)

// maxInstructionChars caps what run_skill injects into the conversation.
const maxInstructionChars = 10_000

// RegisterRunSkillTool exposes the registry to the model as a run_skill
// tool. Running a skill loads its instructions into the conversation as a
// tool result; the following turns carry them out.
func RegisterRunSkillTool(reg *tools.Registry, skills *Registry) {
	reg.Register(&tools.Tool{
		Name: "run_skill",
		Description: "Run a registered skill: loads its instructions into the " +
			"conversation so the next turns can follow them. " +
			"Available skills are listed in the system prompt.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Name of the skill to run",
				},
				"arguments": map[string]any{
					"type":        "string",
					"description": "Extra context or arguments for the skill (optional)",
				},
			},
			"required": []string{"name"},
		},
		Handler: func(ctx context.Context, args map[string]any, env tools.Environment) (string, error) {
			var a struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}
			if err := tools.DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Name == "" {
				return "", errors.New("name is required")
			}

			if _, ok := skills.Get(a.Name); !ok {
				available := "none"
				if list := skills.List(); len(list) > 0 {
					names := make([]string, len(list))
					for i, s := range list {
						names[i] = s.Name
					}
					available = strings.Join(names, ", ")
				}
				return "", fmt.Errorf("unknown skill %q (available: %s)", a.Name, available)
			}

			instructions, err := skills.Instructions(a.Name)
			if err != nil {
				return "", err
			}

			result := fmt.Sprintf("[skill:%s] Follow the instructions below.\n\n%s", a.Name, instructions)
			if a.Arguments != "" {
				result += "\n\n## Additional context from the user\n" + a.Arguments
			}
			if len(result) > maxInstructionChars {
				result = result[:maxInstructionChars] + "\n\n[...instructions truncated]"
			}
			return result, nil
		},
	})
}
