package config

import (
	"context"
	"fmt"
	"sync"

	"portmux/internal/api"
	"portmux/pkg/logging"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Manager holds the loaded entity definitions and serves them to the job
// executor and the server. It satisfies the executor's Definitions interface.
// Entity directories are watched; edits on disk become visible to the next
// job, never to one already running (jobs snapshot at start).
type Manager struct {
	cfg     Config
	storage *Storage

	mu        sync.RWMutex
	profiles  map[string]api.DeviceProfile
	templates map[string]api.Template
	macros    map[string]api.Macro
}

// NewManager creates a manager over the default storage roots.
func NewManager(cfg Config) *Manager {
	return NewManagerWithStorage(cfg, NewStorage())
}

// NewManagerWithStorage creates a manager over explicit storage, for tests.
func NewManagerWithStorage(cfg Config, storage *Storage) *Manager {
	return &Manager{
		cfg:       cfg,
		storage:   storage,
		profiles:  make(map[string]api.DeviceProfile),
		templates: make(map[string]api.Template),
		macros:    make(map[string]api.Macro),
	}
}

// Config returns the merged runtime configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// SeedDefaultProfiles writes the built-in device profiles to storage when no
// profiles exist yet.
func (m *Manager) SeedDefaultProfiles() error {
	if names := m.storage.List(EntityProfiles); len(names) > 0 {
		logging.Debug("Config", "Profiles already exist (%d found), skipping seed", len(names))
		return nil
	}

	for _, profile := range DefaultProfiles() {
		data, err := yaml.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshaling profile %s: %w", profile.Name, err)
		}
		if err := m.storage.Save(EntityProfiles, profile.Name, data); err != nil {
			return err
		}
	}
	logging.Info("Config", "Seeded %d device profiles", len(DefaultProfiles()))
	return nil
}

// LoadAll reads every entity definition from storage into memory.
func (m *Manager) LoadAll() error {
	profiles := make(map[string]api.DeviceProfile)
	for _, name := range m.storage.List(EntityProfiles) {
		var p api.DeviceProfile
		if err := m.loadEntity(EntityProfiles, name, &p); err != nil {
			logging.Warn("Config", "Skipping profile %s: %v", name, err)
			continue
		}
		profiles[p.Name] = p
	}

	templates := make(map[string]api.Template)
	for _, name := range m.storage.List(EntityTemplates) {
		var t api.Template
		if err := m.loadEntity(EntityTemplates, name, &t); err != nil {
			logging.Warn("Config", "Skipping template %s: %v", name, err)
			continue
		}
		templates[t.Name] = t
	}

	macros := make(map[string]api.Macro)
	for _, name := range m.storage.List(EntityMacros) {
		var mc api.Macro
		if err := m.loadEntity(EntityMacros, name, &mc); err != nil {
			logging.Warn("Config", "Skipping macro %s: %v", name, err)
			continue
		}
		macros[mc.Name] = mc
	}

	m.mu.Lock()
	m.profiles = profiles
	m.templates = templates
	m.macros = macros
	m.mu.Unlock()

	logging.Info("Config", "Loaded %d profiles, %d templates, %d macros",
		len(profiles), len(templates), len(macros))
	return nil
}

func (m *Manager) loadEntity(entityType, name string, out interface{}) error {
	data, err := m.storage.Load(entityType, name)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// Watch reloads entity definitions when their directories change, until the
// context is canceled.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	for _, entityType := range []string{EntityProfiles, EntityTemplates, EntityMacros} {
		for _, dir := range m.storage.Dirs(entityType) {
			// Directories may not exist yet; watch what does.
			if err := watcher.Add(dir); err != nil {
				logging.Debug("Config", "Not watching %s: %v", dir, err)
			}
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					logging.Debug("Config", "Entity change detected: %s", event)
					if err := m.LoadAll(); err != nil {
						logging.Error("Config", err, "Reload after %s failed", event)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("Config", "Watcher error: %v", err)
			}
		}
	}()

	return nil
}

// Template resolves a template definition by name.
func (m *Manager) Template(name string) (*api.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[name]
	if !ok {
		return nil, api.NewNotFoundError("template", name)
	}
	return &t, nil
}

// Macro resolves a macro definition by name.
func (m *Manager) Macro(name string) (*api.Macro, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mc, ok := m.macros[name]
	if !ok {
		return nil, api.NewNotFoundError("macro", name)
	}
	return &mc, nil
}

// Profile resolves a device profile by name.
func (m *Manager) Profile(name string) (*api.DeviceProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[name]
	if !ok {
		return nil, api.NewNotFoundError("profile", name)
	}
	return &p, nil
}

// Profiles lists all loaded profiles.
func (m *Manager) Profiles() []api.DeviceProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]api.DeviceProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out
}

// Settings returns the operator settings consumed by the core.
func (m *Manager) Settings() api.Settings {
	return m.cfg.Settings
}
