package tolerance

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse reads a rule from its compact text form:
//
//	none | "" | <3.0 | >90 | >163.0 and <167.0 | |x|<5
func Parse(text string) (Rule, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" || s == "none" || s == "no tolerance set" {
		return NoTolerance(), nil
	}

	var r Rule
	var haveLower, haveUpper, signed bool
	for _, part := range strings.Split(s, "and") {
		part = strings.ReplaceAll(strings.TrimSpace(part), " ", "")
		abs := false
		switch {
		case strings.HasPrefix(part, "|x|"):
			abs = true
			part = part[3:]
		case strings.HasPrefix(part, "x"):
			part = part[1:]
		}
		if len(part) < 2 {
			return Rule{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidRule, text)
		}
		if abs {
			r.Abs = true
		} else {
			signed = true
		}
		if r.Abs && signed {
			return Rule{}, fmt.Errorf("%w: mixed absolute and signed bounds in %q", ErrInvalidRule, text)
		}

		op, num := part[0], part[1:]
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: bad bound %q in %q", ErrInvalidRule, num, text)
		}
		switch op {
		case '<':
			if haveUpper {
				return Rule{}, fmt.Errorf("%w: duplicate upper bound in %q", ErrInvalidRule, text)
			}
			r.Upper, haveUpper = v, true
		case '>':
			if haveLower {
				return Rule{}, fmt.Errorf("%w: duplicate lower bound in %q", ErrInvalidRule, text)
			}
			r.Lower, haveLower = v, true
		default:
			return Rule{}, fmt.Errorf("%w: unknown operator %q in %q", ErrInvalidRule, string(op), text)
		}
	}

	switch {
	case haveLower && haveUpper:
		r.Kind = Between
	case haveUpper:
		r.Kind = LessThan
	default:
		r.Kind = GreaterThan
	}
	return r, r.Validate()
}

// ruleDoc is the mapping form of a rule in YAML ({gt: 163, lt: 167}, {lt: 5, abs: true})
type ruleDoc struct {
	GT  *float64 `yaml:"gt,omitempty"`
	LT  *float64 `yaml:"lt,omitempty"`
	Abs bool     `yaml:"abs,omitempty"`
}

// UnmarshalYAML accepts either the compact text form or the gt/lt/abs mapping
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var text string
		if err := node.Decode(&text); err != nil {
			return err
		}
		parsed, err := Parse(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = parsed
		return nil
	}

	var doc ruleDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	rule := Rule{Abs: doc.Abs}
	switch {
	case doc.GT != nil && doc.LT != nil:
		rule.Kind, rule.Lower, rule.Upper = Between, *doc.GT, *doc.LT
	case doc.LT != nil:
		rule.Kind, rule.Upper = LessThan, *doc.LT
	case doc.GT != nil:
		rule.Kind, rule.Lower = GreaterThan, *doc.GT
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*r = rule
	return nil
}

// MarshalYAML writes the mapping form, or "none" for the None rule
func (r Rule) MarshalYAML() (interface{}, error) {
	var doc ruleDoc
	switch r.Kind {
	case None:
		return "none", nil
	case LessThan:
		doc.LT = &r.Upper
	case GreaterThan:
		doc.GT = &r.Lower
	case Between:
		doc.GT, doc.LT = &r.Lower, &r.Upper
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrInvalidRule, r.Kind)
	}
	doc.Abs = r.Abs
	return doc, nil
}
