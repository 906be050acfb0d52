package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_SaveLoadList(t *testing.T) {
	userRoot := t.TempDir()
	projectRoot := t.TempDir()
	storage := NewStorageAt(userRoot, projectRoot)

	require.NoError(t, storage.Save(EntityTemplates, "vlan-setup", []byte("name: vlan-setup\n")))

	names := storage.List(EntityTemplates)
	assert.Equal(t, []string{"vlan-setup"}, names)

	data, err := storage.Load(EntityTemplates, "vlan-setup")
	require.NoError(t, err)
	assert.Equal(t, "name: vlan-setup\n", string(data))
}

func TestStorage_ProjectOverridesUser(t *testing.T) {
	userRoot := t.TempDir()
	projectRoot := t.TempDir()
	storage := NewStorageAt(userRoot, projectRoot)

	userDir := filepath.Join(userRoot, EntityProfiles)
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "cisco.yaml"), []byte("vendor: user\n"), 0o644))

	projectDir := filepath.Join(projectRoot, EntityProfiles)
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "cisco.yaml"), []byte("vendor: project\n"), 0o644))

	data, err := storage.Load(EntityProfiles, "cisco")
	require.NoError(t, err)
	assert.Equal(t, "vendor: project\n", string(data))

	// Merged listing contains the name once.
	assert.Equal(t, []string{"cisco"}, storage.List(EntityProfiles))
}

func TestStorage_LoadMissing(t *testing.T) {
	storage := NewStorageAt(t.TempDir(), t.TempDir())

	_, err := storage.Load(EntityMacros, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStorage_SanitizesNames(t *testing.T) {
	userRoot := t.TempDir()
	storage := NewStorageAt(userRoot, filepath.Join(userRoot, "no-project"))

	require.NoError(t, storage.Save(EntityTemplates, "a/b c", []byte("x: 1\n")))

	entries, err := os.ReadDir(filepath.Join(userRoot, EntityTemplates))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a-b-c.yaml", entries[0].Name())
}
