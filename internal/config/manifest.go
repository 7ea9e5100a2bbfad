package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestEntry describes one session to run: its id, the session config
// file, and where the session's artifacts live.
type ManifestEntry struct {
	ID          string `yaml:"id"`
	ConfigPath  string `yaml:"config"`
	StatusPath  string `yaml:"status"`
	ResultPath  string `yaml:"result"`
	SummaryPath string `yaml:"summary"`
	CachePath   string `yaml:"cache"`
}

// Manifest lists the sessions the run command should start.
type Manifest struct {
	Sessions []ManifestEntry `yaml:"sessions"`
}

// LoadManifest reads a YAML session manifest. Relative paths inside the
// manifest are resolved against the manifest file's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Sessions) == 0 {
		return nil, fmt.Errorf("manifest %s lists no sessions", path)
	}

	base := filepath.Dir(path)
	for i := range m.Sessions {
		e := &m.Sessions[i]
		if e.ID == "" {
			return nil, fmt.Errorf("manifest entry %d has no id", i)
		}
		e.ConfigPath = resolve(base, e.ConfigPath)
		e.StatusPath = resolve(base, e.StatusPath)
		e.ResultPath = resolve(base, e.ResultPath)
		e.SummaryPath = resolve(base, e.SummaryPath)
		e.CachePath = resolve(base, e.CachePath)
	}

	return &m, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
