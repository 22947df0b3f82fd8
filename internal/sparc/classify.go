package sparc

import (
	"strings"

	"github.com/sparcflow/sparcflow/internal/protocol"
)

type keywordRule struct {
	keywords []string
	mode     Mode
}

// Keyword rules are checked in order against the lowercased description and
// take precedence over the agent role and task category.
var keywordRules = []keywordRule{
	{keywords: []string{"architecture", "design"}, mode: ModeArchitect},
	{keywords: []string{"security"}, mode: ModeSecurityReview},
	{keywords: []string{"bug"}, mode: ModeDebug}, // also covers "debug"
	{keywords: []string{"test"}, mode: ModeTDD},
	{keywords: []string{"document"}, mode: ModeDocsWriter},
	{keywords: []string{"integrate"}, mode: ModeIntegration},
}

var roleModes = map[protocol.AgentType]Mode{
	protocol.AgentTypeDeveloper:   ModeCode,
	protocol.AgentTypeTester:      ModeTDD,
	protocol.AgentTypeAnalyzer:    ModeSpecPseudocode,
	protocol.AgentTypeDocumenter:  ModeDocsWriter,
	protocol.AgentTypeReviewer:    ModeOptimization,
	protocol.AgentTypeResearcher:  ModeSpecPseudocode,
	protocol.AgentTypeCoordinator: ModeArchitect,
}

var categoryModes = map[protocol.TaskType]Mode{
	protocol.TaskTypeCoding:        ModeCode,
	protocol.TaskTypeTesting:       ModeTDD,
	protocol.TaskTypeAnalysis:      ModeSpecPseudocode,
	protocol.TaskTypeDocumentation: ModeDocsWriter,
	protocol.TaskTypeResearch:      ModeSpecPseudocode,
	protocol.TaskTypeReview:        ModeOptimization,
	protocol.TaskTypeDeployment:    ModeDevOps,
	protocol.TaskTypeOptimization:  ModeOptimization,
	protocol.TaskTypeIntegration:   ModeIntegration,
}

// Classify picks the execution mode for a task. Free-text keywords in the
// description win over the agent role, which wins over the task category.
// Anything unmatched runs in code mode.
func Classify(task protocol.TaskDefinition, agent protocol.AgentState) Mode {
	description := strings.ToLower(task.Description)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(description, kw) {
				return rule.mode
			}
		}
	}

	if mode, ok := roleModes[normalizeAgentType(agent.Type)]; ok {
		return mode
	}
	if mode, ok := categoryModes[normalizeTaskType(task.Type)]; ok {
		return mode
	}
	return ModeCode
}

func normalizeAgentType(t protocol.AgentType) protocol.AgentType {
	return protocol.AgentType(strings.ToLower(strings.TrimSpace(string(t))))
}

func normalizeTaskType(t protocol.TaskType) protocol.TaskType {
	return protocol.TaskType(strings.ToLower(strings.TrimSpace(string(t))))
}
