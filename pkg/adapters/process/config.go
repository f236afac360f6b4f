package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentConfig declares an agent backed by a local command.
type AgentConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of agents.yaml.
type ConfigFile struct {
	Agents []AgentConfig `yaml:"agents" json:"agents"`
}

// LoadAgents reads a configuration file (YAML or JSON) and returns the agents by name.
func LoadAgents(path string) (map[string]AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	agents := make(map[string]AgentConfig, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.Name == "" || a.Command == "" {
			return nil, fmt.Errorf("%s: every agent needs a name and a command", path)
		}
		if _, dup := agents[a.Name]; dup {
			return nil, fmt.Errorf("%s: agent %q declared twice", path, a.Name)
		}
		agents[a.Name] = a
	}
	return agents, nil
}
