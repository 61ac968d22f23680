package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
entry = "main.phon"

[engine]
debug = true
stack-size = 256

[gc]
threshold = 64

[import]
paths = ["lib", "/opt/phon"]

[log]
verbosity = 2
file = "phon.log"

[chunks]
deny = ["file"]
`)

	m, err := Load(dir)
	require.NoError(t, err)

	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, m.Dir)
	assert.Equal(t, "test-app", m.Project.Name)
	assert.Equal(t, filepath.Join(abs, "main.phon"), m.EntryPath())
	assert.True(t, m.Engine.Debug)
	assert.Equal(t, 256, m.Engine.StackSize)
	assert.Equal(t, 64, m.GC.Threshold)
	assert.Equal(t, []string{filepath.Join(abs, "lib"), "/opt/phon"}, m.ImportPaths())
	assert.Equal(t, 2, m.Log.Verbosity)
	require.NotNil(t, m.LogPath())
	assert.Equal(t, filepath.Join(abs, "phon.log"), *m.LogPath())
	assert.Equal(t, []string{"file"}, m.Chunks.Deny)
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project]\nname = \"minimal\"\n")

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultStackSize, m.Engine.StackSize)
	assert.Equal(t, DefaultGCThreshold, m.GC.Threshold)
	assert.False(t, m.Engine.Debug)
	assert.Empty(t, m.ImportPaths())
	assert.Empty(t, m.EntryPath())
	assert.Nil(t, m.LogPath())

	assert.Equal(t, DefaultGCThreshold, Default().GC.Threshold)
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.ErrorContains(t, err, "cannot read")

	writeManifest(t, dir, "[gc]\nthreshold = \"many\"\n")
	_, err = Load(dir)
	assert.ErrorContains(t, err, "parse error")

	writeManifest(t, dir, "[gc]\ntreshold = 10\n")
	_, err = Load(dir)
	assert.ErrorContains(t, err, `unknown key "gc.treshold"`)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[import]\npaths = [\"mods\"]\n"), 0o644))

	m, err := LoadFile(path)
	require.NoError(t, err)
	abs, _ := filepath.Abs(dir)
	assert.Equal(t, []string{filepath.Join(abs, "mods")}, m.ImportPaths())
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(subDir, 0o755))
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	m, err := FindAndLoad(subDir)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "found-project", m.Project.Name)
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, m)
}
