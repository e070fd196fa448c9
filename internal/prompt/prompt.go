// Package prompt renders the system instruction that teaches the model the CRM
// schema, Danish vocabulary and output format.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the structured rule set rendered into the system instruction.
type Rules struct {
	Intro            string            `yaml:"intro"`
	Tables           []Table           `yaml:"tables"`
	RuleGroups       []RuleGroup       `yaml:"rule_groups"`
	Examples         []Example         `yaml:"examples"`
	Guidelines       []string          `yaml:"guidelines"`
	OutputConstraint string            `yaml:"output_constraint"`
	Variants         map[string]string `yaml:"variants"`
}

type Table struct {
	Name    string   `yaml:"name"`
	Label   string   `yaml:"label"`
	Columns []string `yaml:"columns"`
}

// RuleGroup maps natural-language phrases to SQL predicates.
type RuleGroup struct {
	Title string `yaml:"title"`
	Rules []Rule `yaml:"rules"`
}

type Rule struct {
	Phrase    string `yaml:"phrase"`
	Predicate string `yaml:"predicate"`
}

// Example is a worked question/SQL pair.
type Example struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
}

// DefaultRules returns the embedded CRM rule set.
func DefaultRules() (Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads a YAML rule set from path.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read prompt rules: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse prompt rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) Validate() error {
	if len(r.Tables) == 0 {
		return errors.New("prompt rules: at least one table is required")
	}
	for _, t := range r.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return errors.New("prompt rules: table name is required")
		}
	}
	for _, g := range r.RuleGroups {
		for _, rule := range g.Rules {
			if strings.TrimSpace(rule.Phrase) == "" || strings.TrimSpace(rule.Predicate) == "" {
				return fmt.Errorf("prompt rules: group %q has an incomplete rule", g.Title)
			}
		}
	}
	for i, ex := range r.Examples {
		if strings.TrimSpace(ex.Question) == "" || strings.TrimSpace(ex.SQL) == "" {
			return fmt.Errorf("prompt rules: example %d is incomplete", i+1)
		}
	}
	if strings.TrimSpace(r.OutputConstraint) == "" {
		return errors.New("prompt rules: output constraint is required")
	}
	return nil
}

// Builder holds the rendered instruction. It is immutable after NewBuilder and
// safe for concurrent use.
type Builder struct {
	rules  Rules
	system string
}

func NewBuilder(rules Rules) (*Builder, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Builder{rules: rules, system: render(rules)}, nil
}

// System returns the base instruction. Repeated calls return the same string.
func (b *Builder) System() string {
	return b.system
}

// Variant returns the specialised text for key, or "" when key is unknown.
func (b *Builder) Variant(key string) string {
	return strings.TrimSpace(b.rules.Variants[key])
}

// SystemFor returns the base instruction with the variant for key appended.
func (b *Builder) SystemFor(key string) string {
	variant := b.Variant(key)
	if variant == "" {
		return b.system
	}
	return b.system + "\n\n" + variant
}

// VariantKeys lists the configured variant keys in sorted order.
func (b *Builder) VariantKeys() []string {
	keys := make([]string, 0, len(b.rules.Variants))
	for k := range b.rules.Variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tables returns the table names the instruction describes.
func (b *Builder) Tables() []string {
	names := make([]string, len(b.rules.Tables))
	for i, t := range b.rules.Tables {
		names[i] = t.Name
	}
	return names
}

// Examples returns the worked example questions.
func (b *Builder) Examples() []Example {
	out := make([]Example, len(b.rules.Examples))
	copy(out, b.rules.Examples)
	return out
}

func render(r Rules) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(r.Intro))
	sb.WriteString("\n\nDATABASER OG TABELLER:\n")
	for _, t := range r.Tables {
		sb.WriteString("\n")
		sb.WriteString(t.Name)
		if t.Label != "" {
			fmt.Fprintf(&sb, " (%s)", t.Label)
		}
		sb.WriteString(":\n")
		for _, col := range t.Columns {
			fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(col))
		}
	}

	for _, g := range r.RuleGroups {
		fmt.Fprintf(&sb, "\n%s:\n", g.Title)
		for _, rule := range g.Rules {
			fmt.Fprintf(&sb, "- %q = %s\n", rule.Phrase, strings.TrimSpace(rule.Predicate))
		}
	}

	if len(r.Examples) > 0 {
		sb.WriteString("\nEKSEMPLER:\n")
		for _, ex := range r.Examples {
			fmt.Fprintf(&sb, "- %q → %s\n", ex.Question, strings.TrimSpace(ex.SQL))
		}
	}

	if len(r.Guidelines) > 0 {
		sb.WriteString("\nVIGTIGE REGLER:\n")
		for _, g := range r.Guidelines {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(r.OutputConstraint))
	return sb.String()
}
