package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entity types stored as YAML files under the configuration roots.
const (
	EntityProfiles  = "profiles"
	EntityTemplates = "templates"
	EntityMacros    = "macros"
)

// Storage provides YAML-file persistence for entity definitions (device
// profiles, templates, macros). Entities live in type-specific
// subdirectories of the user root (~/.config/portmux/) and the project root
// (./.portmux/); project entities override user entities with the same name.
type Storage struct {
	userRoot    string
	projectRoot string
}

// NewStorage creates a storage over the default roots.
func NewStorage() *Storage {
	userRoot, err := UserConfigDir()
	if err != nil {
		userRoot = ""
	}
	return &Storage{
		userRoot:    userRoot,
		projectRoot: ProjectConfigDir(),
	}
}

// NewStorageAt creates a storage over explicit roots, for tests.
func NewStorageAt(userRoot, projectRoot string) *Storage {
	return &Storage{userRoot: userRoot, projectRoot: projectRoot}
}

// Dirs returns the directories holding an entity type, user first.
func (s *Storage) Dirs(entityType string) []string {
	var dirs []string
	if s.userRoot != "" {
		dirs = append(dirs, filepath.Join(s.userRoot, entityType))
	}
	dirs = append(dirs, filepath.Join(s.projectRoot, entityType))
	return dirs
}

// List returns the names of all entities of a type, merged across roots.
func (s *Storage) List(entityType string) []string {
	seen := make(map[string]struct{})
	for _, dir := range s.Dirs(entityType) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
				continue
			}
			seen[strings.TrimSuffix(entry.Name(), ".yaml")] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads an entity's YAML document. The project root wins when both
// define the name.
func (s *Storage) Load(entityType, name string) ([]byte, error) {
	dirs := s.Dirs(entityType)
	// Project overrides user: walk in reverse.
	for i := len(dirs) - 1; i >= 0; i-- {
		path := filepath.Join(dirs[i], sanitizeName(name)+".yaml")
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%s %q not found in storage", entityType, name)
}

// Save writes an entity's YAML document. Saves to the project root when it
// exists, else to the user root.
func (s *Storage) Save(entityType, name string, data []byte) error {
	root := s.userRoot
	if _, err := os.Stat(s.projectRoot); err == nil {
		root = s.projectRoot
	}
	if root == "" {
		return fmt.Errorf("no writable configuration root")
	}

	dir := filepath.Join(root, entityType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, sanitizeName(name)+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// sanitizeName keeps entity filenames filesystem-safe.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "..", "-", " ", "-")
	return replacer.Replace(name)
}
