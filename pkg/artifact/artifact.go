package artifact

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"m365prov/internal/facts"
)

// Artifact is a provisioning action described as data: the prompts to ask
// the operator and the REST steps a registered handler runs with the answers.
type Artifact struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Service     string   `yaml:"service"`
	Handler     string   `yaml:"handler"`
	Description string   `yaml:"description"`
	Prompts     []Prompt `yaml:"prompts"`
	Steps       []Step   `yaml:"steps"`
}

type Prompt struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Default  string `yaml:"default"`
	Pattern  string `yaml:"pattern"`
	Required bool   `yaml:"required"`
	Secret   bool   `yaml:"secret"`
}

// Step is one request template. When Items is set the step runs once per
// item with the item bound as {{item.*}}.
type Step struct {
	Name    string             `yaml:"name"`
	Method  string             `yaml:"method"`
	Path    string             `yaml:"path"`
	Query   map[string]string  `yaml:"query"`
	Headers map[string]string  `yaml:"headers"`
	Body    any                `yaml:"body"`
	Items   []map[string]any   `yaml:"items"`
	Expect  []int              `yaml:"expect"`
	Capture map[string]Capture `yaml:"capture"`
}

// Capture binds a value from a step's response for later steps: a JMESPath
// expression, optionally reduced by a named transform (count, first, ...).
// A bare string is shorthand for the expression alone.
type Capture struct {
	Path      string `yaml:"path"`
	Transform string `yaml:"transform"`
	Args      []any  `yaml:"args"`
}

func (c *Capture) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		c.Path = n.Value
		return nil
	}
	type plain Capture
	return n.Decode((*plain)(c))
}

// Validate checks that a prompt answer is acceptable.
func (p Prompt) Validate(v string) error {
	if strings.TrimSpace(v) == "" {
		if p.Required {
			return fmt.Errorf("%s is required", p.title())
		}
		return nil
	}
	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return err
		}
		if !re.MatchString(v) {
			return fmt.Errorf("%s must match %s", p.title(), p.Pattern)
		}
	}
	return nil
}

func (p Prompt) title() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Key
}

// Parse decodes and validates a YAML artifact.
func Parse(raw []byte) (*Artifact, error) {
	var a Artifact
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if strings.TrimSpace(a.Handler) == "" {
		return errors.New("artifact: handler missing")
	}
	if len(a.Steps) == 0 {
		return errors.New("artifact: no steps")
	}
	seen := map[string]bool{}
	for _, p := range a.Prompts {
		if p.Key == "" {
			return errors.New("artifact: prompt without key")
		}
		if seen[p.Key] {
			return fmt.Errorf("artifact: duplicate prompt %q", p.Key)
		}
		seen[p.Key] = true
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("artifact: prompt %q: %w", p.Key, err)
			}
		}
	}
	for i, s := range a.Steps {
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("artifact: step %d has no path", i+1)
		}
		for k, c := range s.Capture {
			if strings.TrimSpace(c.Path) == "" {
				return fmt.Errorf("artifact: step %d capture %q has no path", i+1, k)
			}
			if !facts.Known(c.Transform) {
				return fmt.Errorf("artifact: step %d capture %q: unknown transform %q", i+1, k, c.Transform)
			}
		}
	}
	return nil
}
