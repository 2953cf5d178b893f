package plugins

import (
	"fmt"
	"sort"

	"github.com/MaTriXy/babysitter-sub005/internal/process"
)

// Catalog indexes the process definitions discovered for a project.
type Catalog struct {
	files []DefinitionFile
	byID  map[string]DefinitionFile
}

// Discover loads every YAML and Go process definition under dir. Duplicate
// process IDs across files are rejected so runs are unambiguous.
func Discover(dir string) (*Catalog, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	files := append(yamlDefs, goDefs...)
	catalog := &Catalog{byID: make(map[string]DefinitionFile, len(files))}
	for _, file := range files {
		id := file.Definition.ID
		if existing, ok := catalog.byID[id]; ok {
			return nil, fmt.Errorf("plugin: duplicate process id %s (%s and %s)", id, existing.Path, file.Path)
		}
		catalog.byID[id] = file
		catalog.files = append(catalog.files, file)
	}
	return catalog, nil
}

// IDs returns the discovered process identifiers, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns a process definition by ID.
func (c *Catalog) Lookup(id string) (process.Definition, bool) {
	file, ok := c.byID[id]
	if !ok {
		return process.Definition{}, false
	}
	return file.Definition.Clone(), true
}

// Files returns every discovered definition with its source path.
func (c *Catalog) Files() []DefinitionFile {
	out := make([]DefinitionFile, len(c.files))
	copy(out, c.files)
	return out
}

// Len reports how many definitions were discovered.
func (c *Catalog) Len() int {
	return len(c.files)
}
