// Package render formats a QA report for people (text) and for other tools (JSON).
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"phantomqa/pkg/report"
	"phantomqa/pkg/tolerance"
)

// Format selects a renderer
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat returns the format with the given name
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatText, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", name)
	}
}

// Write renders rep to w in the given format
func Write(w io.Writer, rep report.Report, f Format) error {
	switch f {
	case FormatJSON:
		return JSON(w, rep)
	case FormatText, "":
		return Text(w, rep)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}

// Text writes one block per module: a header line followed by an aligned row per metric
// with its value, result and tolerance.
func Text(w io.Writer, rep report.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Phantom QA report %s\n", rep.ID)
	for _, sec := range rep.Sections {
		fmt.Fprintf(tw, "\n%s\n%s\n", title(sec.Module), strings.Repeat("=", len(sec.Module)))
		if len(sec.Entries) == 0 {
			fmt.Fprintln(tw, "  (no measurements)")
			continue
		}
		for _, e := range sec.Entries {
			if !e.Available {
				reason := e.Failure
				if e.Err != nil {
					reason += ": " + e.Err.Error()
				}
				fmt.Fprintf(tw, "  Slice %d\t%s\tunavailable\tResult: -\t(%s)\n", e.Slice, e.Metric, reason)
				continue
			}
			fmt.Fprintf(tw, "  Slice %d\t%s\t%s\tResult: %s\tTolerance: %s\n",
				e.Slice, e.Metric, value(e), e.Outcome, describe(e.Rule))
		}
	}

	s := rep.Summary()
	fmt.Fprintf(tw, "\nSummary: %d pass, %d fail, %d without tolerance, %d unavailable\n",
		s.Pass, s.Fail, s.NoTolerance, s.Unavailable)
	return tw.Flush()
}

func title(module string) string {
	return strings.ReplaceAll(strings.ToUpper(module), "_", " ")
}

func value(e report.Entry) string {
	v := strconv.FormatFloat(e.Value, 'f', 2, 64)
	if e.Unit == "" {
		return v
	}
	if e.Unit == "%" {
		return v + "%"
	}
	return v + " " + e.Unit
}

// describe spells a tolerance rule out in words
func describe(r tolerance.Rule) string {
	x := "value"
	if r.Abs {
		x = "|value|"
	}
	b := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	switch r.Kind {
	case tolerance.LessThan:
		return fmt.Sprintf("%s < %s", x, b(r.Upper))
	case tolerance.GreaterThan:
		return fmt.Sprintf("%s > %s", x, b(r.Lower))
	case tolerance.Between:
		return fmt.Sprintf("%s < %s < %s", b(r.Lower), x, b(r.Upper))
	default:
		return "none"
	}
}

type jsonEntry struct {
	report.Entry
	Tolerance string `json:"tolerance"`
	Error     string `json:"error,omitempty"`
}

type jsonSection struct {
	Module  string      `json:"module"`
	Entries []jsonEntry `json:"entries"`
}

type jsonReport struct {
	ID       string         `json:"id"`
	Sections []jsonSection  `json:"sections"`
	Summary  report.Summary `json:"summary"`
}

// JSON writes rep as an indented JSON document. Unavailable entries carry their failure
// kind and error text; every entry carries its tolerance in compact form.
func JSON(w io.Writer, rep report.Report) error {
	out := jsonReport{
		ID:       rep.ID.String(),
		Sections: make([]jsonSection, 0, len(rep.Sections)),
		Summary:  rep.Summary(),
	}
	for _, sec := range rep.Sections {
		js := jsonSection{Module: sec.Module, Entries: make([]jsonEntry, 0, len(sec.Entries))}
		for _, e := range sec.Entries {
			je := jsonEntry{Entry: e, Tolerance: e.Rule.String()}
			if e.Err != nil {
				je.Error = e.Err.Error()
			}
			js.Entries = append(js.Entries, je)
		}
		out.Sections = append(out.Sections, js)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
