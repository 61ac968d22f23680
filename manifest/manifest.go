// Package manifest handles phon.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "phon.toml"

// Defaults applied to settings a phon.toml leaves out.
const (
	DefaultStackSize   = 1024
	DefaultGCThreshold = 1024
)

// Manifest represents a phon.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Engine  EngineConfig `toml:"engine"`
	GC      GCConfig     `toml:"gc"`
	Import  ImportConfig `toml:"import"`
	Log     LogConfig    `toml:"log"`
	Chunks  ChunkConfig  `toml:"chunks"`

	// Dir is the directory containing the phon.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// EngineConfig configures the interpreter.
type EngineConfig struct {
	Debug     bool `toml:"debug"`
	StackSize int  `toml:"stack-size"`
}

// GCConfig configures the cycle collector.
type GCConfig struct {
	Threshold int `toml:"threshold"`
}

// ImportConfig lists the directories searched by import().
type ImportConfig struct {
	Paths []string `toml:"paths"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// ChunkConfig restricts what precompiled chunks may use.
type ChunkConfig struct {
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`
}

// Default returns the configuration used when no phon.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Engine.StackSize <= 0 {
		m.Engine.StackSize = DefaultStackSize
	}
	if m.GC.Threshold <= 0 {
		m.GC.Threshold = DefaultGCThreshold
	}
}

// Load parses a phon.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// LoadFile parses the configuration file at path, which may have any name.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes phon.toml content and applies defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a phon.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ImportPaths returns absolute paths for the configured import directories.
func (m *Manifest) ImportPaths() []string {
	var paths []string
	for _, d := range m.Import.Paths {
		if !filepath.IsAbs(d) {
			d = filepath.Join(m.Dir, d)
		}
		paths = append(paths, d)
	}
	return paths
}

// EntryPath returns the absolute path of the project's entry script, or
// "" when none is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// LogPath returns the log file, or nil for stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}
