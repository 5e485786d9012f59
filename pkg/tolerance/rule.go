// Package tolerance evaluates measured QA values against configured pass/fail rules.
package tolerance

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidRule is returned for malformed tolerance rules. It is a configuration error
// and aborts a run before any measurement work.
var ErrInvalidRule = errors.New("invalid tolerance rule")

// Kind selects the predicate a Rule applies
type Kind int

const (
	// None means no tolerance is configured
	None Kind = iota
	// LessThan passes when the value is strictly below Upper
	LessThan
	// GreaterThan passes when the value is strictly above Lower
	GreaterThan
	// Between passes when the value is strictly between Lower and Upper
	Between
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case LessThan:
		return "less_than"
	case GreaterThan:
		return "greater_than"
	case Between:
		return "between"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rule is a tolerance predicate over one metric. The zero value is the None rule.
type Rule struct {
	Kind  Kind
	Lower float64
	Upper float64

	// Abs applies the predicate to |value| (slice position error)
	Abs bool
}

// NoTolerance returns the None rule
func NoTolerance() Rule { return Rule{} }

// Below returns the rule value < upper
func Below(upper float64) Rule { return Rule{Kind: LessThan, Upper: upper} }

// Above returns the rule value > lower
func Above(lower float64) Rule { return Rule{Kind: GreaterThan, Lower: lower} }

// Within returns the rule lower < value < upper
func Within(lower, upper float64) Rule { return Rule{Kind: Between, Lower: lower, Upper: upper} }

// Magnitude returns a copy of the rule that is applied to the absolute value
func (r Rule) Magnitude() Rule {
	r.Abs = true
	return r
}

// Validate checks that the rule is well formed
func (r Rule) Validate() error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	switch r.Kind {
	case None:
		return nil
	case LessThan:
		if !finite(r.Upper) {
			return fmt.Errorf("%w: upper bound %v is not finite", ErrInvalidRule, r.Upper)
		}
	case GreaterThan:
		if !finite(r.Lower) {
			return fmt.Errorf("%w: lower bound %v is not finite", ErrInvalidRule, r.Lower)
		}
	case Between:
		if !finite(r.Lower) || !finite(r.Upper) {
			return fmt.Errorf("%w: bounds (%v, %v) are not finite", ErrInvalidRule, r.Lower, r.Upper)
		}
		if r.Lower >= r.Upper {
			return fmt.Errorf("%w: lower bound %v must be below upper bound %v", ErrInvalidRule, r.Lower, r.Upper)
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidRule, r.Kind)
	}
	return nil
}

// String describes the rule in the compact text form accepted by Parse
func (r Rule) String() string {
	x := "x"
	if r.Abs {
		x = "|x|"
	}
	switch r.Kind {
	case None:
		return "none"
	case LessThan:
		if r.Abs {
			return x + "<" + formatBound(r.Upper)
		}
		return "<" + formatBound(r.Upper)
	case GreaterThan:
		if r.Abs {
			return x + ">" + formatBound(r.Lower)
		}
		return ">" + formatBound(r.Lower)
	case Between:
		if r.Abs {
			return x + ">" + formatBound(r.Lower) + " and " + x + "<" + formatBound(r.Upper)
		}
		return ">" + formatBound(r.Lower) + " and <" + formatBound(r.Upper)
	default:
		return r.Kind.String()
	}
}

// Description is the human-readable label used in reports
func (r Rule) Description() string {
	if r.Kind == None {
		return "No Tolerance Set"
	}
	return r.String()
}

// formatBound prints whole numbers with one decimal (163.0) and everything else as short as possible
func formatBound(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
