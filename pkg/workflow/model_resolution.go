package workflow

import "github.com/codeready-toolchain/agent-runner/pkg/config"

// resolveModel implements the model override chain, applied once per step
// at start: per-Run options.models.{role} > environment variable for
// {role} > step's declared model > engine default.
func resolveModel(step Step, runOptions map[string]any, llmCfg *config.LLMConfig, engineDefault string) string {
	role := step.effectiveRole()

	if models, ok := runOptions["models"].(map[string]any); ok {
		if m, ok := models[role].(string); ok && m != "" {
			return m
		}
	}

	if llmCfg != nil {
		if m, ok := llmCfg.RoleDefaults[config.LLMRole(role)]; ok && m != "" {
			return m
		}
	}

	if step.Model != "" {
		return step.Model
	}

	if llmCfg != nil && llmCfg.DefaultModel != "" {
		return llmCfg.DefaultModel
	}
	return engineDefault
}
