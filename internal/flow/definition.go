package flow

import (
	"bytes"
	_ "embed"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed steps.yaml
var defaultDefinition []byte

// Rule selects one validator kind and its parameters.
type Rule struct {
	Kind    string   `yaml:"kind"`
	Pattern string   `yaml:"pattern,omitempty"`
	Options []string `yaml:"options,omitempty"`
}

// Step is one question of a scripted flow.
type Step struct {
	ID           string `yaml:"id"`
	Prompt       string `yaml:"prompt"`
	Rule         Rule   `yaml:"rule"`
	ErrorMessage string `yaml:"error_message"`
}

type Definition struct {
	Steps []Step `yaml:"steps"`
}

// DefaultDefinition returns the built-in lead capture flow.
func DefaultDefinition() (Definition, error) {
	return ParseDefinition(defaultDefinition)
}

// LoadDefinition reads a flow definition file. An empty path selects the
// built-in flow.
func LoadDefinition(path string) (Definition, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDefinition()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errors.Wrapf(err, "flow: read definition %s", path)
	}
	return ParseDefinition(raw)
}

func ParseDefinition(raw []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, errors.Wrap(err, "flow: decode definition")
	}
	if len(def.Steps) == 0 {
		return Definition{}, errors.New("flow: definition has no steps")
	}
	return def, nil
}
