// Package manifest handles mcode.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mcode/compiler"
)

// FileName is the project file looked up by Load and FindAndLoad.
const FileName = "mcode.toml"

// Manifest represents an mcode.toml project configuration.
type Manifest struct {
	Project Project         `toml:"project"`
	Source  Source          `toml:"source"`
	Output  Output          `toml:"output"`
	Env     map[string]any  `toml:"env"`
	Axes    map[string]Axis `toml:"axis"`

	// Dir is the directory containing the mcode.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures module locations.
type Source struct {
	Dir         string   `toml:"dir"`
	Modules     []string `toml:"modules"`
	IncludeDirs []string `toml:"include-dirs"`
}

// Output configures build output.
type Output struct {
	Dir       string `toml:"dir"`
	Wrap      bool   `toml:"wrap"`
	Artifacts bool   `toml:"artifacts"`
}

// Axis holds the per-axis overrides. Env entries shadow the top-level [env].
type Axis struct {
	Modules []string       `toml:"modules"`
	Env     map[string]any `toml:"env"`
}

// Load parses an mcode.toml file from the given directory.
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

// Parse decodes manifest contents and fills defaults. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	// Defaults
	if m.Source.Dir == "" {
		m.Source.Dir = "modules"
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "."
	}
	for name, axis := range m.Axes {
		if len(axis.Modules) == 0 && len(m.Source.Modules) == 0 {
			return nil, fmt.Errorf("axis %s: no modules", name)
		}
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find an mcode.toml file,
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
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// AxisNames returns the configured axes in sorted order.
func (m *Manifest) AxisNames() []string {
	names := make([]string, 0, len(m.Axes))
	for name := range m.Axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Environment builds the compile environment for an axis: [env] first, then
// the axis overrides, then "axis" bound to the axis name unless either set it.
// An empty axis yields the project-wide environment.
func (m *Manifest) Environment(axis string) (*compiler.Environment, error) {
	values := make(map[string]any, len(m.Env))
	for k, v := range m.Env {
		values[k] = v
	}
	if axis != "" {
		a, ok := m.Axes[axis]
		if !ok {
			return nil, fmt.Errorf("unknown axis %q", axis)
		}
		for k, v := range a.Env {
			values[k] = v
		}
		if _, ok := values["axis"]; !ok {
			values["axis"] = axis
		}
	}

	env := compiler.NewEnvironment(values)
	env.IncludeDirs = m.IncludeDirPaths()
	return env, nil
}

// Modules returns the module paths compiled for an axis, in order.
func (m *Manifest) Modules(axis string) ([]string, error) {
	names := m.Source.Modules
	if axis != "" {
		a, ok := m.Axes[axis]
		if !ok {
			return nil, fmt.Errorf("unknown axis %q", axis)
		}
		if len(a.Modules) > 0 {
			names = a.Modules
		}
	}

	base := m.resolve(m.Source.Dir)
	paths := make([]string, len(names))
	for i, name := range names {
		if filepath.IsAbs(name) {
			paths[i] = name
		} else {
			paths[i] = filepath.Join(base, name)
		}
	}
	return paths, nil
}

// IncludeDirPaths returns the configured include directories resolved
// against the project directory.
func (m *Manifest) IncludeDirPaths() []string {
	var paths []string
	for _, d := range m.Source.IncludeDirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// OutputPath returns the listing path for an axis.
func (m *Manifest) OutputPath(axis string) string {
	return filepath.Join(m.resolve(m.Output.Dir), axis+"-axis.mtx")
}

// ArtifactPath returns the CBOR artifact path for an axis.
func (m *Manifest) ArtifactPath(axis string) string {
	return filepath.Join(m.resolve(m.Output.Dir), axis+"-axis.cbor")
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
