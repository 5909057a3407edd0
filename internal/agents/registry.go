// Package agents loads the user's configured agent personalities.
package agents

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Agent is one configured personality the chat surface can run as.
type Agent struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
	IsDefault    bool   `yaml:"default,omitempty"`
}

type agentsFile struct {
	Agents []Agent `yaml:"agents"`
}

// Registry indexes agents by id and name.
type Registry struct {
	byID   map[string]Agent
	byName map[string]Agent
	all    []Agent
}

// LoadRegistry reads an agents YAML file. A missing file yields an empty
// registry: the backend falls back to its stock agent when no id is sent.
func LoadRegistry(path string) (*Registry, error) {
	reg := &Registry{
		byID:   make(map[string]Agent),
		byName: make(map[string]Agent),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}

	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse agents yaml: %w", err)
	}

	for _, a := range file.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agent %q is missing an id", a.Name)
		}
		if _, dup := reg.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		reg.byID[a.ID] = a
		if a.Name != "" {
			reg.byName[a.Name] = a
		}
		reg.all = append(reg.all, a)
	}

	return reg, nil
}

// Get looks an agent up by id.
func (r *Registry) Get(id string) (Agent, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// Resolve accepts an agent id or display name and returns the agent id.
// Empty input resolves to the registry default, or empty if none is marked.
func (r *Registry) Resolve(idOrName string) (string, error) {
	if idOrName == "" {
		for _, a := range r.all {
			if a.IsDefault {
				return a.ID, nil
			}
		}
		return "", nil
	}
	if a, ok := r.byID[idOrName]; ok {
		return a.ID, nil
	}
	if a, ok := r.byName[idOrName]; ok {
		return a.ID, nil
	}
	return "", fmt.Errorf("unknown agent %q", idOrName)
}

// List returns all agents sorted by name.
func (r *Registry) List() []Agent {
	out := append([]Agent(nil), r.all...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
