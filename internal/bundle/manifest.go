// Package bundle reads the manifest of an external deployment bundle. A
// bundle is a directory with a manifest.yaml declaring profiles and the
// agents that back them, plus an agents/ directory of implementation files.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Manifest struct {
	Name     string             `yaml:"name,omitempty"`
	Profiles map[string]Profile `yaml:"profiles"`
	Agents   []AgentDecl        `yaml:"agents,omitempty"`
}

type Profile struct {
	Agent        string `yaml:"agent"`
	Instructions string `yaml:"instructions,omitempty"`
}

type AgentDecl struct {
	Name string `yaml:"name"`
	// File is the implementation file under agents/, defaulting to <name>.go.
	File string `yaml:"file,omitempty"`
}

// ImplementationFile resolves the path of the agent's implementation inside
// the bundle.
func (d AgentDecl) ImplementationFile(bundlePath string) string {
	file := strings.TrimSpace(d.File)
	if file == "" {
		file = d.Name + ".go"
	}
	return filepath.Join(bundlePath, "agents", file)
}

// FindAgent returns the declaration for the named agent. Agents referenced by
// a profile but not declared fall back to a bare declaration, which resolves
// to agents/<name>.go.
func (m Manifest) FindAgent(name string) AgentDecl {
	for _, decl := range m.Agents {
		if decl.Name == name {
			return decl
		}
	}
	return AgentDecl{Name: name}
}

func ReadManifest(bundlePath string) (Manifest, error) {
	var manifest Manifest
	var data []byte
	var err error
	for _, candidate := range []string{"manifest.yaml", "manifest.yml"} {
		data, err = os.ReadFile(filepath.Join(bundlePath, candidate))
		if err == nil {
			break
		}
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read bundle manifest in %s: %w", bundlePath, err)
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse bundle manifest: %w", err)
	}
	if err := manifest.validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (m Manifest) validate() error {
	if len(m.Profiles) == 0 {
		return fmt.Errorf("bundle manifest declares no profiles")
	}
	for name, profile := range m.Profiles {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("bundle manifest has a profile with an empty name")
		}
		if strings.TrimSpace(profile.Agent) == "" {
			return fmt.Errorf("profile %s: agent is required", name)
		}
	}
	for idx, decl := range m.Agents {
		if strings.TrimSpace(decl.Name) == "" {
			return fmt.Errorf("agents[%d]: name is required", idx)
		}
	}
	return nil
}
