package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/mcode/artifact"
	"github.com/chazu/mcode/compiler"
	"github.com/chazu/mcode/manifest"
)

// axisBuild is the result of compiling one axis of a project.
type axisBuild struct {
	Axis     string
	Program  *compiler.Program
	Artifact *artifact.Artifact
}

// buildProject loads the mcode.toml at or above dir and writes the listing
// of every axis, plus its artifact when output.artifacts is set. Warnings of
// all axes are returned even when a later axis fails.
func buildProject(dir string, defines []string) ([]compiler.Warning, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no %s found in %s or its parents", manifest.FileName, dir)
	}
	axes := m.AxisNames()
	if len(axes) == 0 {
		return nil, fmt.Errorf("%s: no axes configured", filepath.Join(m.Dir, manifest.FileName))
	}

	var warnings []compiler.Warning
	for _, axis := range axes {
		b, err := buildAxis(m, axis, defines)
		if err != nil {
			return warnings, fmt.Errorf("axis %s: %w", axis, err)
		}
		warnings = append(warnings, b.Program.Warnings...)
		if err := writeAxis(m, b); err != nil {
			return warnings, fmt.Errorf("axis %s: %w", axis, err)
		}
		log.Infof("built %s", m.OutputPath(axis))
	}
	return warnings, nil
}

// buildAxis compiles each module of an axis as a fragment sharing one
// environment, merges the fragments and checks the merged unit.
func buildAxis(m *manifest.Manifest, axis string, defines []string) (*axisBuild, error) {
	env, err := m.Environment(axis)
	if err != nil {
		return nil, err
	}
	applyDefines(env, defines)
	paths, err := m.Modules(axis)
	if err != nil {
		return nil, err
	}

	prog := &compiler.Program{Symbols: compiler.NewSymbolTable()}
	sources := make([][]*compiler.Node, len(paths))
	for i, path := range paths {
		nodes, err := compiler.ParseFile(path, env, nil)
		if err != nil {
			return nil, err
		}
		c := compiler.NewCompiler(env, compiler.WithChecks())
		if err := c.CompileNodes(nodes); err != nil {
			return nil, err
		}
		if err := prog.Merge(c.Program()); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		sources[i] = nodes
	}
	prog.Check()

	a := artifact.New(m.Project.Name, axis, prog)
	for i, path := range paths {
		if rel, err := filepath.Rel(m.Dir, path); err == nil {
			path = filepath.ToSlash(rel)
		}
		a.AddSource(path, sources[i])
	}
	return &axisBuild{Axis: axis, Program: prog, Artifact: a}, nil
}

func writeAxis(m *manifest.Manifest, b *axisBuild) error {
	out := m.OutputPath(b.Axis)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := b.Program.Compose(f, m.Output.Wrap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if m.Output.Artifacts {
		return writeArtifact(m.ArtifactPath(b.Axis), b.Artifact)
	}
	return nil
}
