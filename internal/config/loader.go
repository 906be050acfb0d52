package config

import (
	"fmt"
	"os"
	"path/filepath"

	"portmux/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDirName    = "portmux"
	projectConfigDirName = ".portmux"
	configFileName       = "config.yaml"
)

// UserConfigDir returns ~/.config/portmux.
func UserConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(base, userConfigDirName), nil
}

// ProjectConfigDir returns ./.portmux relative to the working directory.
func ProjectConfigDir() string {
	return projectConfigDirName
}

// Load builds the merged configuration: defaults, then the user file, then
// the project file. Missing files are not errors.
func Load() (Config, error) {
	cfg := GetDefaultConfig()

	userDir, err := UserConfigDir()
	if err == nil {
		if err := mergeFile(&cfg, filepath.Join(userDir, configFileName)); err != nil {
			return cfg, err
		}
	}

	if err := mergeFile(&cfg, filepath.Join(ProjectConfigDir(), configFileName)); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	merge(cfg, overlay)
	logging.Debug("Config", "Merged configuration from %s", path)
	return nil
}

// merge overlays set fields of overlay onto cfg.
func merge(cfg *Config, overlay Config) {
	if overlay.Server.Host != "" {
		cfg.Server.Host = overlay.Server.Host
	}
	if overlay.Server.Port != 0 {
		cfg.Server.Port = overlay.Server.Port
	}
	if overlay.Ports.BaseDir != "" {
		cfg.Ports.BaseDir = overlay.Ports.BaseDir
	}
	if overlay.Ports.Count != 0 {
		cfg.Ports.Count = overlay.Ports.Count
	}
	if overlay.Settings.PortBaudRates != nil {
		if cfg.Settings.PortBaudRates == nil {
			cfg.Settings.PortBaudRates = make(map[string]int)
		}
		for id, baud := range overlay.Settings.PortBaudRates {
			cfg.Settings.PortBaudRates[id] = baud
		}
	}
	if overlay.LogLevel != "" {
		cfg.LogLevel = overlay.LogLevel
	}
}
