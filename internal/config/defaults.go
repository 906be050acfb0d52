package config

import "portmux/internal/api"

// GetDefaultConfig returns the built-in configuration defaults.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Ports: PortsConfig{
			BaseDir: "~",
			Count:   16,
		},
		LogLevel: "info",
	}
}

// DefaultProfiles returns the seeded device profiles written to entity storage
// on first run (the project root when it exists, else the user directory).
func DefaultProfiles() []api.DeviceProfile {
	ciscoPatterns := api.PromptPatterns{
		User:   `(?m)^.*?>\s*\z`,
		Priv:   `(?m)^.*?#\s*\z`,
		Config: `(?m)^.*?\(config[^)]*\)#\s*\z`,
		Any:    `(?m)^.*?[>#]\s*\z`,
	}

	return []api.DeviceProfile{
		{
			Name:           "Cisco IOS",
			Vendor:         "Cisco",
			Description:    "Classic Cisco IOS (switches and routers)",
			PromptPatterns: ciscoPatterns,
			Commands: api.ProfileCommands{
				ShowVersion: "show version",
				ShowRun:     "show run",
				SaveConfig:  "write memory",
				EnterConfig: "configure terminal",
				ExitConfig:  "end",
				Enable:      "enable",
			},
			ErrorMarkers: []string{
				"% Invalid",
				"% Ambiguous",
				"% Incomplete",
				"Error:",
			},
			DetectionCommand: "show version",
		},
		{
			Name:           "Cisco IOS-XE",
			Vendor:         "Cisco",
			Description:    "Modern Cisco IOS-XE (Catalyst 9K, etc.)",
			PromptPatterns: ciscoPatterns,
			Commands: api.ProfileCommands{
				ShowVersion: "show version",
				ShowRun:     "show running-config",
				SaveConfig:  "write memory",
				EnterConfig: "configure terminal",
				ExitConfig:  "end",
				Enable:      "enable",
			},
			ErrorMarkers: []string{
				"% Invalid",
				"% Ambiguous",
				"% Incomplete",
			},
			DetectionCommand: "show version",
		},
		{
			Name:           "Generic",
			Vendor:         "Generic",
			Description:    "Fallback profile for unknown devices",
			PromptPatterns: ciscoPatterns,
			Commands: api.ProfileCommands{
				ShowVersion: "show version",
				ShowRun:     "show run",
				SaveConfig:  "write",
				EnterConfig: "conf t",
				ExitConfig:  "end",
				Enable:      "en",
			},
			ErrorMarkers: []string{
				"% Invalid",
				"Error",
				"Fail",
			},
		},
	}
}
