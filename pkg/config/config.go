package config

// WorkflowConfig configures where the Workflow Engine's registry loads named
// Workflow definitions from. HotReload is read from WORKFLOWS_HOT_RELOAD but
// not consulted: workflow.NewRegistry always watches the directory for
// changes (fsnotify-driven hot reload).
type WorkflowConfig struct {
	Dir       string
	HotReload bool
}

// WorkflowConfigFromEnv loads workflow registry configuration from the environment.
func WorkflowConfigFromEnv() *WorkflowConfig {
	return &WorkflowConfig{
		Dir:       getEnv("WORKFLOWS_DIR", "./deploy/workflows"),
		HotReload: getEnvBool("WORKFLOWS_HOT_RELOAD", true),
	}
}

// Config is the umbrella configuration object for the whole process.
type Config struct {
	HTTP     *HTTPConfig
	Queue    *QueueConfig
	LLM      *LLMConfig
	Workflow *WorkflowConfig
}

// Load builds the full process configuration from the environment. Callers
// load a .env file (via godotenv) before calling Load so that file-based
// overrides are visible to os.Getenv.
func Load() *Config {
	return &Config{
		HTTP:     HTTPConfigFromEnv(),
		Queue:    QueueConfigFromEnv(),
		LLM:      LLMConfigFromEnv(),
		Workflow: WorkflowConfigFromEnv(),
	}
}
