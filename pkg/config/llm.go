package config

import "time"

// LLMRole identifies a named role an agent or workflow step resolves a model
// for, e.g. "planner" or "coder". Mirrors OLLAMA_PLANNER_MODEL / OLLAMA_CODER_MODEL.
type LLMRole string

const (
	RolePlanner LLMRole = "planner"
	RoleCoder   LLMRole = "coder"
)

// LLMConfig configures the LLM Provider.
type LLMConfig struct {
	BaseURL           string
	HeartbeatInterval time.Duration
	Timeout           time.Duration
	RoleDefaults      map[LLMRole]string
	DefaultModel      string
}

// LLMConfigFromEnv loads provider configuration from the OLLAMA_* environment
// keys.
func LLMConfigFromEnv() *LLMConfig {
	return &LLMConfig{
		BaseURL:           getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		HeartbeatInterval: getEnvDuration("OLLAMA_HEARTBEAT_INTERVAL", 15*time.Second),
		Timeout:           getEnvDuration("OLLAMA_TIMEOUT_SECONDS", 120*time.Second),
		DefaultModel:      getEnv("OLLAMA_DEFAULT_MODEL", "llama3"),
		RoleDefaults: map[LLMRole]string{
			RolePlanner: getEnv("OLLAMA_PLANNER_MODEL", ""),
			RoleCoder:   getEnv("OLLAMA_CODER_MODEL", ""),
		},
	}
}

// ModelForRole returns the environment-level default model for a role, or
// the provider's general default if the role has no override. In the model
// override chain the role's env default ranks above a step's declared model,
// and DefaultModel below it.
func (c *LLMConfig) ModelForRole(role string) string {
	if m, ok := c.RoleDefaults[LLMRole(role)]; ok && m != "" {
		return m
	}
	return c.DefaultModel
}
