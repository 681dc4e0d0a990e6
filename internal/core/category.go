package core

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Category is a program label derived from a table name.
type Category string

const (
	DataScience          Category = "Data Science"
	DataAnalytics        Category = "Data Analytics"
	GenerativeAI         Category = "Generative AI"
	FullStackDevelopment Category = "Full Stack Development"
	CommunityLiveClasses Category = "Community Live Classes"
)

// CategoryRule maps a lower-case substring of a table name to a category.
type CategoryRule struct {
	Pattern  string   `yaml:"pattern"`
	Category Category `yaml:"category"`
}

//go:embed categories.yaml
var defaultRulesYAML []byte

var (
	ErrNoRules    = errors.New("category rules are empty")
	ErrEmptyRule  = errors.New("category rule has empty pattern or category")
	masterWord    = regexp.MustCompile(`(?i)master`)
	defaultRules  []CategoryRule
	defaultParsed error
)

func init() {
	defaultRules, defaultParsed = ParseCategoryRules(defaultRulesYAML)
}

// ParseCategoryRules decodes an ordered rule list from YAML of the form
// `rules: [{pattern: ..., category: ...}]`. Patterns are lower-cased.
func ParseCategoryRules(data []byte) ([]CategoryRule, error) {
	var doc struct {
		Rules []CategoryRule `yaml:"rules"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid category rules yaml: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, ErrNoRules
	}
	for i, r := range doc.Rules {
		p := strings.ToLower(strings.TrimSpace(r.Pattern))
		if p == "" || strings.TrimSpace(string(r.Category)) == "" {
			return nil, fmt.Errorf("rule %d: %w", i, ErrEmptyRule)
		}
		doc.Rules[i].Pattern = p
	}
	return doc.Rules, nil
}

// Classifier turns free-text table names into categories using an ordered
// rule list. It is safe for concurrent use.
type Classifier struct {
	rules []CategoryRule
}

// NewClassifier builds a classifier over rules, consulted top-down.
func NewClassifier(rules []CategoryRule) *Classifier {
	return &Classifier{rules: append([]CategoryRule(nil), rules...)}
}

// DefaultClassifier uses the built-in rule table.
func DefaultClassifier() *Classifier {
	if defaultParsed != nil {
		panic("core: embedded category rules: " + defaultParsed.Error())
	}
	return NewClassifier(defaultRules)
}

// LoadClassifier reads rules from a YAML file; an empty path means the
// built-in table.
func LoadClassifier(path string) (*Classifier, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultClassifier(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category rules: %w", err)
	}
	rules, err := ParseCategoryRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewClassifier(rules), nil
}

// Rules returns a copy of the rule list in evaluation order.
func (c *Classifier) Rules() []CategoryRule {
	return append([]CategoryRule(nil), c.rules...)
}

// Classify returns the category of the first rule whose pattern is contained
// in the lower-cased table name. Without a match the name itself is cleaned
// up: "master" is removed, '_' and '-' become spaces, and each word is
// title-cased. If nothing is left the original name is returned.
func (c *Classifier) Classify(tableName string) Category {
	if tableName == "" {
		return ""
	}
	low := strings.ToLower(tableName)
	for _, r := range c.rules {
		if strings.Contains(low, r.Pattern) {
			return r.Category
		}
	}
	return fallbackCategory(tableName)
}

func fallbackCategory(tableName string) Category {
	cleaned := masterWord.ReplaceAllString(tableName, "")
	cleaned = strings.NewReplacer("_", " ", "-", " ").Replace(cleaned)

	// cases.Caser keeps state, so one per call.
	title := cases.Title(language.Und)
	words := strings.Fields(cleaned)
	for i, w := range words {
		words[i] = title.String(w)
	}
	if len(words) == 0 {
		return Category(tableName)
	}
	return Category(strings.Join(words, " "))
}
