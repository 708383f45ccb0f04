// Package responder implements the scripted assistant: an ordered keyword
// rule table with a fallback reply.
package responder

import (
	"strings"
)

// Rule maps a keyword set to a canned response.
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Response string   `yaml:"response"`
}

// Matches reports whether any keyword occurs in lowered, which must already be lower-cased.
func (r Rule) Matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Engine implements domain.ResponseEngine.
type Engine struct {
	rules    []Rule
	fallback string
}

// New validates the rule table and returns an Engine evaluating it in order.
func New(rules []Rule, fallback string) (*Engine, error) {
	rs := RuleSet{Fallback: fallback, Rules: rules}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Engine{rules: cp, fallback: fallback}, nil
}

// Generate returns the response of the first matching rule, or the fallback.
func (e *Engine) Generate(userText string) string {
	lowered := strings.ToLower(userText)
	for _, r := range e.rules {
		if r.Matches(lowered) {
			return r.Response
		}
	}
	return e.fallback
}

// Match returns the name of the rule that would answer userText, or "" for the fallback.
func (e *Engine) Match(userText string) string {
	lowered := strings.ToLower(userText)
	for _, r := range e.rules {
		if r.Matches(lowered) {
			return r.Name
		}
	}
	return ""
}

// Rules returns a copy of the rule table in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
