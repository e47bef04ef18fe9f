package config

import (
	"strings"
)

// ControllerConfig holds configuration for the Huma capture control API.
type ControllerConfig struct {
	Run              *Config
	BindAddr         string
	CaptureDir       string
	PortCandidates   []string
	PortAutoFallback bool
}

// LoadController reads the capture config plus control server settings.
func LoadController() (*ControllerConfig, error) {
	run, err := Load()
	if err != nil {
		return nil, err
	}
	cfg := &ControllerConfig{
		Run:              run,
		BindAddr:         getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8190"),
		CaptureDir:       getEnvOrDefault("CONTROLLER_CAPTURE_DIR", "captures"),
		PortCandidates:   splitList(getEnvOrDefault("CONTROLLER_PORT_CANDIDATES", "127.0.0.1:8191,127.0.0.1:8192,127.0.0.1:8193")),
		PortAutoFallback: getEnvBoolOrDefault("CONTROLLER_PORT_AUTO_FALLBACK", true),
	}
	cfg.Run.LogFile = getEnvOrDefault("CONTROLLER_LOG_FILE", "logs/menu_controller.log")
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
