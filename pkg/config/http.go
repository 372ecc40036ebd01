package config

import "strings"

// HTTPConfig configures the Control Plane API's HTTP listener.
type HTTPConfig struct {
	Port        string
	CORSOrigins []string
}

// HTTPConfigFromEnv loads HTTP configuration from the environment.
func HTTPConfigFromEnv() *HTTPConfig {
	origins := getEnv("CORS_ORIGINS", "*")
	var list []string
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			list = append(list, o)
		}
	}
	return &HTTPConfig{
		Port:        getEnv("HTTP_PORT", "8080"),
		CORSOrigins: list,
	}
}
