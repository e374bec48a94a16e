// internal/llmclient/instructions.go
package llmclient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/internal/action"
)

// AgentInstructionFiles lists the project instruction files that are looked up, highest
// priority first.
var AgentInstructionFiles = []string{
	".github/copilot-instructions.md",
	".copilot-instructions.md",
	".cursorrules",
	".aidigestconfig",
	".ai/instructions.md",
	"copilot-instructions.md",
}

const projectInstructionsHeader = "Additional project-specific instructions:\n"

// BaseInstructions is the fixed system instruction sent to every backend.
var BaseInstructions = `You are an expert end-to-end test developer.
Given the current HTML of a web page or a partial HTML snippet, and a prompt describing
one step of a test on that page, output exactly one statement from the command vocabulary
below that best matches the prompt and the HTML.
Output only the statement. Do not add explanations, commentary, or code fences.
Use the HTML to choose precise CSS selectors. Quote every string argument.

Command vocabulary:
` + action.Describe()

// ComposeInstructions appends the project instructions, when present, to the base instructions.
func ComposeInstructions(agentInstructions string) string {
	agentInstructions = strings.TrimSpace(agentInstructions)
	if agentInstructions == "" {
		return BaseInstructions
	}
	return BaseInstructions + "\n\n" + projectInstructionsHeader + agentInstructions + "\n"
}

// ComposeInput renders the markup and the step into the user input of a backend call.
func ComposeInput(html, step string) string {
	return fmt.Sprintf("HTML:\n%s\n\nCommand prompt:\n%s\n", html, step)
}

// ReadAgentInstructions returns the trimmed content of the first non-blank instruction file
// under root and the relative path it came from. Unreadable files are logged and skipped.
// Both results are empty when no file applies.
func ReadAgentInstructions(root string, logger *zap.Logger) (string, string) {
	log := logger.Named("agent_instructions")
	for _, rel := range AgentInstructionFiles {
		full := filepath.Join(root, filepath.FromSlash(rel))
		content, err := os.ReadFile(full)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn("Failed to read instruction file.", zap.String("path", rel), zap.Error(err))
			}
			continue
		}
		if trimmed := strings.TrimSpace(string(content)); trimmed != "" {
			log.Info("Found agent instructions.", zap.String("path", rel))
			return trimmed, rel
		}
	}
	log.Debug("No agent instruction file found.", zap.String("root", root))
	return "", ""
}
