package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

// Load reads settings from the user level (~/.aide/settings.yaml) and overlays
// the project level (cwd/.aide/settings.yaml). Missing files are fine;
// malformed files are not.
func Load(cwd string) (*Settings, error) {
	settings := NewSettings()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(homeDir, ".aide", settingsFileName)
		if err := mergeFile(settings, userPath); err != nil {
			return nil, err
		}
	}

	if cwd != "" {
		projectPath := filepath.Join(cwd, ".aide", settingsFileName)
		if err := mergeFile(settings, projectPath); err != nil {
			return nil, err
		}
	}

	applyEnv(settings)

	return settings, nil
}

// mergeFile overlays one settings file onto the accumulated settings.
func mergeFile(settings *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var layer Settings
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	merge(settings, &layer)
	return nil
}

// merge overlays non-zero fields of layer onto base. Permission rule lists
// are concatenated; later layers cannot remove earlier rules.
func merge(base, layer *Settings) {
	if layer.Provider != "" {
		base.Provider = layer.Provider
	}
	if layer.Model != "" {
		base.Model = layer.Model
	}
	if layer.MaxTokens > 0 {
		base.MaxTokens = layer.MaxTokens
	}
	base.Permissions.Allow = append(base.Permissions.Allow, layer.Permissions.Allow...)
	base.Permissions.Deny = append(base.Permissions.Deny, layer.Permissions.Deny...)
	base.Permissions.Ask = append(base.Permissions.Ask, layer.Permissions.Ask...)

	if layer.Pipeline.OffloadThreshold > 0 {
		base.Pipeline.OffloadThreshold = layer.Pipeline.OffloadThreshold
	}
	if layer.Pipeline.RenderFlushMs > 0 {
		base.Pipeline.RenderFlushMs = layer.Pipeline.RenderFlushMs
	}
	if layer.Pipeline.PersistFlushMs > 0 {
		base.Pipeline.PersistFlushMs = layer.Pipeline.PersistFlushMs
	}
	if layer.Pipeline.MaxToolCalls > 0 {
		base.Pipeline.MaxToolCalls = layer.Pipeline.MaxToolCalls
	}
}

// applyEnv applies environment variable overrides.
func applyEnv(settings *Settings) {
	if v := os.Getenv("AIDE_PROVIDER"); v != "" {
		settings.Provider = v
	}
	if v := os.Getenv("AIDE_MODEL"); v != "" {
		settings.Model = v
	}
}
