package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkerConfig describes how to start the external analysis worker.
// The endpoint address, port and working directory are appended to Args at launch.
type WorkerConfig struct {
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Dir         string            `yaml:"dir" json:"dir"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of worker.yaml
type ConfigFile struct {
	Worker WorkerConfig `yaml:"worker" json:"worker"`
}

// LoadConfig reads a configuration file (YAML or JSON).
// A missing file yields an empty config; Launch reports it as not configured.
func LoadConfig(path string) (WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return WorkerConfig{}, nil
		}
		return WorkerConfig{}, fmt.Errorf("failed to read worker config: %w", err)
	}

	var cfg ConfigFile
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return WorkerConfig{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return WorkerConfig{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	cfg.Worker.Command = strings.TrimSpace(cfg.Worker.Command)
	return cfg.Worker, nil
}
