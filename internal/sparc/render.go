package sparc

import (
	"fmt"
	"strings"

	"github.com/sparcflow/sparcflow/internal/protocol"
)

// Prompt is the rendered text handed to the model process.
type Prompt string

func (p Prompt) String() string { return string(p) }

type template struct {
	persona      string
	deliverables []string
}

// templateFor returns the single template bound to each mode.
// Undeclared modes get the code template.
func templateFor(m Mode) template {
	switch m {
	case ModeTDD:
		return template{
			persona: "You are a test-driven development expert. Implement the following using TDD approach:",
			deliverables: []string{
				"Test cases first (failing tests)",
				"Minimal code to make tests pass",
				"Refactored final implementation",
				"Test coverage report",
			},
		}
	case ModeArchitect:
		return template{
			persona: "You are a software architect. Design a comprehensive system architecture for:",
			deliverables: []string{
				"High-level system design",
				"Component architecture",
				"Data flow diagrams",
				"Technology stack recommendations",
				"Scalability considerations",
			},
		}
	case ModeDocsWriter:
		return template{
			persona: "You are a technical documentation expert. Create comprehensive documentation for:",
			deliverables: []string{
				"Clear project overview",
				"Installation instructions",
				"Usage examples",
				"API documentation",
				"Contributing guidelines",
			},
		}
	case ModeSpecPseudocode:
		return template{
			persona: "You are a system analyst. Analyze and create detailed specifications for:",
			deliverables: []string{
				"Detailed requirements analysis",
				"System specifications",
				"Pseudocode algorithms",
				"Data structures design",
				"Edge cases and constraints",
			},
		}
	case ModeOptimization:
		return template{
			persona: "You are a code optimization expert. Review and optimize the following:",
			deliverables: []string{
				"Performance analysis",
				"Code quality improvements",
				"Optimization strategies",
				"Refactoring recommendations",
				"Best practices implementation",
			},
		}
	case ModeDebug:
		return template{
			persona: "You are a debugging expert. Analyze and fix issues in:",
			deliverables: []string{
				"Issue identification",
				"Root cause analysis",
				"Fix implementation",
				"Prevention strategies",
				"Testing verification",
			},
		}
	case ModeIntegration:
		return template{
			persona: "You are an integration specialist. Implement integration solutions for:",
			deliverables: []string{
				"Integration architecture",
				"API connections",
				"Data transformation",
				"Error handling",
				"Integration testing",
			},
		}
	case ModeSecurityReview:
		return template{
			persona: "You are a security expert. Perform security analysis for:",
			deliverables: []string{
				"Security assessment",
				"Vulnerability identification",
				"Risk mitigation strategies",
				"Secure coding practices",
				"Compliance recommendations",
			},
		}
	case ModeDevOps:
		return template{
			persona: "You are a DevOps engineer. Implement deployment and operations for:",
			deliverables: []string{
				"Deployment pipeline",
				"Infrastructure as code",
				"Monitoring setup",
				"CI/CD configuration",
				"Operational procedures",
			},
		}
	default:
		return template{
			persona: "You are an expert software developer. Write clean, efficient, and well-documented code for the following task:",
			deliverables: []string{
				"Complete working code",
				"Clear explanations of your approach",
				"Any necessary setup instructions",
				"Best practices used",
			},
		}
	}
}

// Persona returns the opening line of the mode's prompt.
func Persona(m Mode) string {
	return templateFor(m).persona
}

// FormatDescription builds the effective task description: the description,
// the instructions when they add something, and the task's target directory
// hint. Double quotes are backslash-escaped so the text survives being
// embedded in a quoted shell argument.
func FormatDescription(task protocol.TaskDefinition) string {
	description := task.Description
	if task.Instructions != "" && task.Instructions != task.Description {
		description = description + ". " + task.Instructions
	}
	if task.Context.TargetDir != "" {
		description += " in " + task.Context.TargetDir
	}
	return strings.ReplaceAll(description, `"`, `\"`)
}

// Render produces the prompt for running task in mode. It never fails.
func Render(mode Mode, task protocol.TaskDefinition, targetDir string) Prompt {
	tmpl := templateFor(mode)

	var b strings.Builder
	b.WriteString(tmpl.persona)
	b.WriteString("\n\n")
	b.WriteString(FormatDescription(task))
	b.WriteString("\n\n")
	if targetDir != "" {
		b.WriteString("Target directory: ")
		b.WriteString(targetDir)
	}
	b.WriteString("\n\nPlease provide:")
	for i, d := range tmpl.deliverables {
		fmt.Fprintf(&b, "\n%d. %s", i+1, d)
	}
	return Prompt(b.String())
}
