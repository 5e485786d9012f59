// Package report assembles evaluated measurements into the ordered, per-module QA report.
package report

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"phantomqa/internal/models"
	"phantomqa/pkg/tolerance"
)

// Entry is one evaluated metric of one slice, or the marker that it could not be measured
type Entry struct {
	Slice     int               `json:"slice"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Rule      tolerance.Rule    `json:"-"`
	Outcome   tolerance.Outcome `json:"outcome"`
	Available bool              `json:"available"`

	// Failure classifies the cause of an unavailable entry and Err carries it
	Failure string `json:"failure,omitempty"`
	Err     error  `json:"-"`
}

// Section holds the entries of one module, ordered by slice
type Section struct {
	Module  string  `json:"module"`
	Entries []Entry `json:"entries"`
}

// Report is the complete result of a QA run
type Report struct {
	ID       uuid.UUID `json:"id"`
	Sections []Section `json:"sections"`
}

// Summary counts the entries of a report by outcome
type Summary struct {
	Pass        int `json:"pass"`
	Fail        int `json:"fail"`
	NoTolerance int `json:"no_tolerance"`
	Unavailable int `json:"unavailable"`
}

// Assemble evaluates every observation against its rule and groups the entries into one
// section per module in the given order. Observations of modules missing from order are
// appended in order of first appearance. Entries keep their input order within a slice.
func Assemble(id uuid.UUID, order []string, obs []models.Observation, rules tolerance.Set) Report {
	index := make(map[string]int, len(order))
	rep := Report{ID: id}
	for _, m := range order {
		if _, dup := index[m]; dup {
			continue
		}
		index[m] = len(rep.Sections)
		rep.Sections = append(rep.Sections, Section{Module: m})
	}

	for _, o := range obs {
		i, ok := index[o.Module]
		if !ok {
			i = len(rep.Sections)
			index[o.Module] = i
			rep.Sections = append(rep.Sections, Section{Module: o.Module})
		}
		rep.Sections[i].Entries = append(rep.Sections[i].Entries, evaluate(o, rules.Lookup(o.Key())))
	}

	for i := range rep.Sections {
		entries := rep.Sections[i].Entries
		sort.SliceStable(entries, func(a, b int) bool { return entries[a].Slice < entries[b].Slice })
	}
	return rep
}

func evaluate(o models.Observation, rule tolerance.Rule) Entry {
	e := Entry{
		Slice:  o.Slice,
		Metric: o.Metric,
		Unit:   o.Unit,
		Rule:   rule,
	}
	if !o.Available() {
		e.Failure = models.FailureKind(o.Err)
		e.Err = o.Err
		return e
	}

	outcome, err := tolerance.Evaluate(o.Value, rule)
	if err != nil {
		// a non-finite value is not a measurement
		e.Failure = models.FailureKind(err)
		e.Err = fmt.Errorf("%s: %w", o.Key(), err)
		return e
	}
	e.Value = o.Value
	e.Outcome = outcome
	e.Available = true
	return e
}

// Section returns the section of a module
func (r Report) Section(module string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Module == module {
			return s, true
		}
	}
	return Section{}, false
}

// Lookup returns the entry of a metric on a slice
func (r Report) Lookup(module, metric string, slice int) (Entry, bool) {
	s, ok := r.Section(module)
	if !ok {
		return Entry{}, false
	}
	for _, e := range s.Entries {
		if e.Metric == metric && e.Slice == slice {
			return e, true
		}
	}
	return Entry{}, false
}

// Summary counts the report entries by outcome
func (r Report) Summary() Summary {
	var s Summary
	for _, sec := range r.Sections {
		for _, e := range sec.Entries {
			switch {
			case !e.Available:
				s.Unavailable++
			case e.Outcome == tolerance.Pass:
				s.Pass++
			case e.Outcome == tolerance.Fail:
				s.Fail++
			default:
				s.NoTolerance++
			}
		}
	}
	return s
}

// Failures joins the causes of every unavailable entry
func (r Report) Failures() error {
	var errs []error
	for _, sec := range r.Sections {
		for _, e := range sec.Entries {
			if !e.Available && e.Err != nil {
				errs = append(errs, fmt.Errorf("%s slice %d: %w", models.MetricKey(sec.Module, e.Metric), e.Slice, e.Err))
			}
		}
	}
	return errors.Join(errs...)
}
