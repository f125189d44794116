package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadRegoFiles reads the .rego modules under dir, keyed by file name.
// Dotfiles and underscore-prefixed files are skipped so a bundle can carry
// scratch rules and editor droppings without shipping them to the
// evaluator; empty files are ignored rather than compiled.
func LoadRegoFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy bundle %s: %w", dir, err)
	}

	modules := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".rego" {
			continue
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		modules[name] = string(data)
	}
	return modules, nil
}
