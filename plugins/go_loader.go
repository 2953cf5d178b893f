package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/MaTriXy/babysitter-sub005/internal/process"
)

// Go plugin files export ProcessDefinitions, returning one raw definition
// document per process. The error return is optional.
const pluginEntrypoint = "ProcessDefinitions"

// LoadGoDefinitionDir interprets every .go file in dir with yaegi and decodes
// the definitions its ProcessDefinitions function returns. A missing dir
// yields no definitions.
func LoadGoDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	if _, err := os.Stat(trimmed); os.IsNotExist(err) {
		return nil, nil
	}
	paths, err := filepath.Glob(filepath.Join(trimmed, "*.go"))
	if err != nil {
		return nil, fmt.Errorf("plugin: scan %s: %w", trimmed, err)
	}
	sort.Strings(paths)

	var files []DefinitionFile
	for _, path := range paths {
		raws, err := evalPluginFile(path)
		if err != nil {
			return nil, err
		}
		for idx, raw := range raws {
			def, err := decodePluginDefinition(raw)
			if err != nil {
				return nil, fmt.Errorf("plugin: %s definition[%d]: %w", path, idx, err)
			}
			files = append(files, DefinitionFile{Definition: def, Path: fmt.Sprintf("%s#%d", path, idx+1)})
		}
	}
	return files, nil
}

// evalPluginFile runs one plugin source file in a fresh interpreter and calls
// its entrypoint. Both the one-value and the (value, error) signatures are
// accepted.
func evalPluginFile(path string) ([]map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(src))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	i.Use(stdlib.Symbols)
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	v, err := i.Eval(pluginEntrypoint)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s does not export %s() ([]map[string]any, error): %w", path, pluginEntrypoint, err)
	}
	switch fn := v.Interface().(type) {
	case func() ([]map[string]any, error):
		raws, err := fn()
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %s: %w", path, pluginEntrypoint, err)
		}
		return raws, nil
	case func() []map[string]any:
		return fn(), nil
	default:
		return nil, fmt.Errorf("plugin: %s: %s must be func() ([]map[string]any, error)", path, pluginEntrypoint)
	}
}

// decodePluginDefinition maps a raw plugin document onto a typed definition
// through a yaml.Node, so checkpoint windows and other custom decoders apply
// the same way they do for YAML files on disk.
func decodePluginDefinition(raw map[string]any) (process.Definition, error) {
	var node yaml.Node
	if err := node.Encode(raw); err != nil {
		return process.Definition{}, fmt.Errorf("encode definition: %w", err)
	}
	var def process.Definition
	if err := node.Decode(&def); err != nil {
		return process.Definition{}, fmt.Errorf("decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return process.Definition{}, err
	}
	return def.Clone(), nil
}
