package source

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Rule is a per-source download filter in disjunctive normal form: an OR of
// AND groups of atoms. An empty rule accepts everything.
type Rule struct {
	Any []Group `json:"any"`
}

// Group is one AND clause.
type Group struct {
	All []Atom `json:"all"`
}

// Atom targets one field with one condition, optionally negated once.
type Atom struct {
	Field   string  `json:"field"` // title | tags | fav_time | pub_time | page_count
	Op      string  `json:"op"`
	Not     bool    `json:"not,omitempty"`
	Value   string  `json:"value,omitempty"`
	Number  int64   `json:"number,omitempty"`
	Between []int64 `json:"between,omitempty"`
}

// Atom operators.
const (
	OpEquals       = "equals"
	OpContains     = "contains"
	OpIContains    = "icontains"
	OpMatchesRegex = "matches_regex"
	OpPrefix       = "prefix"
	OpSuffix       = "suffix"
	OpGreaterThan  = "greater_than"
	OpLessThan     = "less_than"
	OpBetween      = "between"
)

// RuleInput is the fully-enriched view a rule is evaluated against.
type RuleInput struct {
	Title     string
	Tags      []string
	FavTime   time.Time
	PubTime   time.Time
	PageCount int
}

// CompiledRule carries pre-compiled regexes. A rule whose regex fails to
// compile keeps its serialized form but always evaluates to false.
type CompiledRule struct {
	rule    Rule
	regexes map[string]*regexp.Regexp
	broken  bool
	empty   bool
}

// CompileRule parses and prepares a serialized rule. An empty string yields
// the accept-everything rule. Malformed JSON or regexes are not errors; they
// produce a rule that never matches.
func CompileRule(serialized string) *CompiledRule {
	if strings.TrimSpace(serialized) == "" {
		return &CompiledRule{empty: true}
	}
	var rule Rule
	if err := json.Unmarshal([]byte(serialized), &rule); err != nil {
		return &CompiledRule{broken: true}
	}
	c := &CompiledRule{rule: rule, regexes: map[string]*regexp.Regexp{}}
	for _, g := range rule.Any {
		for _, a := range g.All {
			if a.Op != OpMatchesRegex {
				continue
			}
			re, err := regexp.Compile(a.Value)
			if err != nil {
				c.broken = true
				return c
			}
			c.regexes[a.Value] = re
		}
	}
	return c
}

// Eval applies the DNF semantics.
func (c *CompiledRule) Eval(in RuleInput) bool {
	if c.empty {
		return true
	}
	if c.broken || len(c.rule.Any) == 0 {
		return false
	}
	for _, g := range c.rule.Any {
		if c.evalGroup(g, in) {
			return true
		}
	}
	return false
}

func (c *CompiledRule) evalGroup(g Group, in RuleInput) bool {
	for _, a := range g.All {
		if !c.evalAtom(a, in) {
			return false
		}
	}
	return len(g.All) > 0
}

func (c *CompiledRule) evalAtom(a Atom, in RuleInput) bool {
	var hit bool
	switch a.Field {
	case "title":
		hit = c.evalString(a, in.Title)
	case "tags":
		// satisfied if any tag matches
		for _, tag := range in.Tags {
			if c.evalString(a, tag) {
				hit = true
				break
			}
		}
	case "fav_time":
		hit = evalNumber(a, in.FavTime.Unix())
	case "pub_time":
		hit = evalNumber(a, in.PubTime.Unix())
	case "page_count":
		hit = evalNumber(a, int64(in.PageCount))
	}
	if a.Not {
		return !hit
	}
	return hit
}

func (c *CompiledRule) evalString(a Atom, s string) bool {
	switch a.Op {
	case OpEquals:
		return s == a.Value
	case OpContains:
		return strings.Contains(s, a.Value)
	case OpIContains:
		return strings.Contains(strings.ToLower(s), strings.ToLower(a.Value))
	case OpMatchesRegex:
		re := c.regexes[a.Value]
		return re != nil && re.MatchString(s)
	case OpPrefix:
		return strings.HasPrefix(s, a.Value)
	case OpSuffix:
		return strings.HasSuffix(s, a.Value)
	}
	return false
}

func evalNumber(a Atom, v int64) bool {
	switch a.Op {
	case OpEquals:
		return v == a.Number
	case OpGreaterThan:
		return v > a.Number
	case OpLessThan:
		return v < a.Number
	case OpBetween:
		return len(a.Between) == 2 && v >= a.Between[0] && v <= a.Between[1]
	}
	return false
}
