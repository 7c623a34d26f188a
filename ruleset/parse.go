package ruleset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ParseDefinition decodes a YAML definition. JSON documents are valid YAML
// and decode the same way. Unknown fields are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("definition", "document is empty")
		}
		return nil, invalid("definition", "%v", err)
	}
	return &def, nil
}

// LoadDir parses every *.yaml and *.yml file in dir, in name order
func LoadDir(dir string) ([]*Definition, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	defs := make([]*Definition, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		def, err := ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
