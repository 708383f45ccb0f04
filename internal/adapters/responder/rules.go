package responder

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// RuleSet is the on-disk form of a rule table.
type RuleSet struct {
	Fallback string `yaml:"fallback"`
	Rules    []Rule `yaml:"rules"`
}

func (rs RuleSet) Validate() error {
	if strings.TrimSpace(rs.Fallback) == "" {
		return errors.New("fallback response is required")
	}
	for i, r := range rs.Rules {
		if strings.TrimSpace(r.Response) == "" {
			return errors.Errorf("rule %d (%s): response is required", i, r.Name)
		}
		hasKeyword := false
		for _, kw := range r.Keywords {
			if strings.TrimSpace(kw) != "" {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			return errors.Errorf("rule %d (%s): at least one keyword is required", i, r.Name)
		}
	}
	return nil
}

// Parse decodes and validates a YAML rule table.
func Parse(data []byte) (*Engine, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, errors.Wrap(err, "decode rules")
	}
	return New(rs.Rules, rs.Fallback)
}

// LoadFile reads a rule table from path.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read rules file %s", path)
	}
	eng, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "rules file %s", path)
	}
	return eng, nil
}

// Default returns the engine built from the embedded rule table.
func Default() *Engine {
	eng, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("responder: embedded rules are invalid: %v", err))
	}
	return eng
}

// Load returns the engine for path, or the embedded default when path is empty.
func Load(path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
