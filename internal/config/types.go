package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"portmux/internal/api"
)

// Config is the merged runtime configuration. Loaded in layers: built-in
// defaults, then the user file, then the project file, with later layers
// overriding earlier ones.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Ports    PortsConfig  `yaml:"ports"`
	Settings api.Settings `yaml:"settings"`
	LogLevel string       `yaml:"log_level"`
}

// ServerConfig configures the HTTP/websocket surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the host:port listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PortsConfig describes where the per-port device paths live.
type PortsConfig struct {
	// BaseDir is the directory holding portN device paths. Defaults to the
	// user's home directory.
	BaseDir string `yaml:"base_dir"`
	// Count is how many ports the concentrator exposes.
	Count int `yaml:"count"`
}

// Path resolves the device path for a port id.
func (p PortsConfig) Path(id int) string {
	base := p.BaseDir
	if base == "" {
		base = "~"
	}
	if base == "~" || strings.HasPrefix(base, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, strings.TrimPrefix(base, "~"))
		}
	}
	return filepath.Join(base, fmt.Sprintf("port%d", id))
}
