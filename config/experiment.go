package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/satriahrh/lextale/domain/entities"
)

var ErrUnknownVariant = errors.New("unknown variant")

// Experiment holds the variants a session can be created with and the labels
// used to score stimulus types
type Experiment struct {
	DefaultVariant string              `yaml:"default_variant"`
	Variants       []entities.Variant  `yaml:"variants"`
	TypeLabels     entities.TypeLabels `yaml:"type_labels"`
}

// DefaultExperiment offers the plain variant and one with a replay button
func DefaultExperiment() *Experiment {
	replay := entities.DefaultVariant()
	replay.Name = "replay"
	replay.HasReplay = true

	return &Experiment{
		DefaultVariant: "default",
		Variants:       []entities.Variant{entities.DefaultVariant(), replay},
		TypeLabels:     entities.DefaultTypeLabels(),
	}
}

// LoadExperiment reads the variants file. An empty path returns the defaults.
func LoadExperiment(path string) (*Experiment, error) {
	if path == "" {
		return DefaultExperiment(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variants file: %w", err)
	}

	exp := &Experiment{}
	if err := yaml.Unmarshal(data, exp); err != nil {
		return nil, fmt.Errorf("failed to parse variants file: %w", err)
	}

	defaults := DefaultExperiment()
	if len(exp.Variants) == 0 {
		exp.Variants = defaults.Variants
	}
	if len(exp.TypeLabels.Words) == 0 {
		exp.TypeLabels.Words = defaults.TypeLabels.Words
	}
	if len(exp.TypeLabels.Pseudowords) == 0 {
		exp.TypeLabels.Pseudowords = defaults.TypeLabels.Pseudowords
	}
	if exp.DefaultVariant == "" {
		exp.DefaultVariant = exp.Variants[0].Name
	}
	for i := range exp.Variants {
		exp.Variants[i] = exp.Variants[i].WithDefaults()
	}

	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

// Validate checks every variant and that variant names are unique
func (e *Experiment) Validate() error {
	seen := make(map[string]bool, len(e.Variants))
	for _, v := range e.Variants {
		if err := v.Validate(); err != nil {
			return err
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate variant %q", v.Name)
		}
		seen[v.Name] = true
	}
	if !seen[e.DefaultVariant] {
		return fmt.Errorf("default_variant %q: %w", e.DefaultVariant, ErrUnknownVariant)
	}
	return nil
}

// Variant looks up a variant by name. An empty name selects the default.
func (e *Experiment) Variant(name string) (entities.Variant, error) {
	if name == "" {
		name = e.DefaultVariant
	}
	for _, v := range e.Variants {
		if v.Name == name {
			return v, nil
		}
	}
	return entities.Variant{}, fmt.Errorf("%w: %s", ErrUnknownVariant, name)
}
