package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Pack is the YAML document format for extra scenarios loaded at startup.
// Pack entries with an ID matching a built-in replace it.
type Pack struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadPack reads the YAML pack at path and merges its scenarios into the
// catalog.
func (c *Catalog) LoadPack(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("scenario: open pack %q: %w", path, err)
	}
	defer f.Close()

	if err := c.LoadPackFromReader(f); err != nil {
		return fmt.Errorf("scenario: parse pack %q: %w", path, err)
	}
	return nil
}

// LoadPackFromReader decodes a YAML pack from r and merges it into the
// catalog. Useful in tests where packs are constructed from string literals.
func (c *Catalog) LoadPackFromReader(r io.Reader) error {
	var pack Pack
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}

	var errs []error
	for i, s := range pack.Scenarios {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("scenarios[%d].id is required", i))
			continue
		}
		if s.Addendum == "" {
			errs = append(errs, fmt.Errorf("scenarios[%d].addendum is required", i))
			continue
		}
		c.add(s)
	}
	return errors.Join(errs...)
}
