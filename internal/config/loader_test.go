package config

import (
	"testing"

	"portmux/internal/api"

	"github.com/stretchr/testify/assert"
)

func TestMerge_OverlayWins(t *testing.T) {
	cfg := GetDefaultConfig()

	merge(&cfg, Config{
		Server:   ServerConfig{Port: 9000},
		Ports:    PortsConfig{BaseDir: "/dev/serial"},
		Settings: api.Settings{PortBaudRates: map[string]int{"2": 115200}},
		LogLevel: "debug",
	})

	assert.Equal(t, 9000, cfg.Server.Port)
	// Unset overlay fields keep the defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "/dev/serial", cfg.Ports.BaseDir)
	assert.Equal(t, 16, cfg.Ports.Count)
	assert.Equal(t, 115200, cfg.Settings.BaudFor("2"))
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestMerge_BaudRatesAccumulate(t *testing.T) {
	cfg := GetDefaultConfig()

	merge(&cfg, Config{Settings: api.Settings{PortBaudRates: map[string]int{"1": 115200}}})
	merge(&cfg, Config{Settings: api.Settings{PortBaudRates: map[string]int{"2": 38400}}})

	assert.Equal(t, 115200, cfg.Settings.BaudFor("1"))
	assert.Equal(t, 38400, cfg.Settings.BaudFor("2"))
}

func TestPortsConfig_Path(t *testing.T) {
	p := PortsConfig{BaseDir: "/srv/console"}
	assert.Equal(t, "/srv/console/port3", p.Path(3))
}

func TestServerConfig_Address(t *testing.T) {
	s := ServerConfig{Host: "localhost", Port: 8090}
	assert.Equal(t, "localhost:8090", s.Address())
}
