package tolerance

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Outcome is the result of evaluating a value against a rule
type Outcome int

const (
	NoToleranceSet Outcome = iota
	Pass
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "Pass"
	case Fail:
		return "Fail"
	default:
		return "No Tolerance Set"
	}
}

// MarshalText implements encoding.TextMarshaler
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Evaluate classifies value against rule. Bounds are strict: a value equal to a bound
// fails. The only errors are a malformed rule or a non-finite value.
func Evaluate(value float64, rule Rule) (Outcome, error) {
	if err := rule.Validate(); err != nil {
		return NoToleranceSet, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NoToleranceSet, fmt.Errorf("cannot evaluate non-finite value %v", value)
	}

	v := value
	if rule.Abs {
		v = math.Abs(v)
	}

	var ok bool
	switch rule.Kind {
	case None:
		return NoToleranceSet, nil
	case LessThan:
		ok = v < rule.Upper
	case GreaterThan:
		ok = v > rule.Lower
	case Between:
		ok = v > rule.Lower && v < rule.Upper
	}
	if ok {
		return Pass, nil
	}
	return Fail, nil
}

// Set maps metric keys ("module.metric") to rules. Metrics absent from the set have no
// tolerance.
type Set map[string]Rule

// Lookup returns the rule for key, or the None rule when the key is absent
func (s Set) Lookup(key string) Rule {
	if r, ok := s[key]; ok {
		return r
	}
	return NoTolerance()
}

// Validate checks every rule in the set and reports all malformed ones
func (s Set) Validate() error {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := s[k].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tolerance %q: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Merge returns a new set with the entries of other overriding those of s
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
