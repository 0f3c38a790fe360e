package recipe

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed master_recipes.yaml
var masterRecipes []byte

// Catalog is the read-only set of recipes available for new projects.
// Master recipes ship with the binary; user recipes live as YAML files in dir.
type Catalog struct {
	dir     string
	recipes map[string]*Recipe
	order   []string
}

// LoadCatalog reads the embedded master recipes and every *.yaml file in dir.
// A missing dir is not an error.
func LoadCatalog(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir, recipes: make(map[string]*Recipe)}

	var masters []*Recipe
	if err := yaml.Unmarshal(masterRecipes, &masters); err != nil {
		return nil, fmt.Errorf("parse master recipes: %w", err)
	}
	for _, r := range masters {
		if err := c.add(r); err != nil {
			return nil, err
		}
	}

	if dir == "" {
		return c, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read recipes dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)

	for _, path := range files {
		r, err := ReadRecipe(path)
		if err != nil {
			return nil, err
		}
		if err := c.add(r); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return c, nil
}

func (c *Catalog) add(r *Recipe) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, exists := c.recipes[r.ID]; !exists {
		c.order = append(c.order, r.ID)
	}
	c.recipes[r.ID] = r
	return nil
}

// Get returns the recipe with the given id.
func (c *Catalog) Get(id string) (*Recipe, error) {
	r, ok := c.recipes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// List returns recipes in catalog order: masters first, then files by name.
func (c *Catalog) List() []*Recipe {
	out := make([]*Recipe, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.recipes[id])
	}
	return out
}

// Import validates the recipe file at path and copies it into the catalog
// directory, replacing any user recipe with the same id.
func (c *Catalog) Import(path string) (*Recipe, error) {
	r, err := ReadRecipe(path)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if c.dir == "" {
		return nil, fmt.Errorf("recipes directory is not configured")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recipes dir: %w", err)
	}
	if err := WriteRecipe(r, filepath.Join(c.dir, r.ID+".yaml")); err != nil {
		return nil, err
	}
	if err := c.add(r); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteRecipe writes a recipe to a YAML file.
func WriteRecipe(r *Recipe, path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadRecipe reads a recipe from a YAML file.
func ReadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	return &r, nil
}
