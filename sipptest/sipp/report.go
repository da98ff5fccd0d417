package sipp

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Summary counts results.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Summarize counts passed and failed results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}

	for _, r := range results {
		if r.Success {
			s.Passed++
		}
	}

	s.Failed = s.Total - s.Passed

	return s
}

// PrintResults writes a human-readable table of results
// followed by the totals.
func PrintResults(w io.Writer, results []Result) error {
	const rule = "============================================================"

	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\nTEST RESULTS\n%s\n", rule, rule)

	for _, r := range results {
		status := "PASS"
		if !r.Success {
			status = "FAIL"
		}

		fmt.Fprintf(
			&b, "%s %-15s (%.2fs)\n",
			status, r.Scenario, r.Duration.Seconds(),
		)

		if r.Success {
			continue
		}

		if msg := strings.TrimSpace(r.Error); msg != "" {
			fmt.Fprintf(&b, "    error: %s\n", msg)
		}

		if c := r.Cause(); c.Transient() {
			fmt.Fprintf(&b, "    cause: %s\n", c)
		}
	}

	s := Summarize(results)

	fmt.Fprintf(
		&b, "%s\nTotal: %d, Passed: %d, Failed: %d\n",
		rule, s.Total, s.Passed, s.Failed,
	)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("printing results: %w", err)
	}

	return nil
}

type jsonResult struct {
	Scenario   Scenario          `json:"scenario"`
	Success    bool              `json:"success"`
	ExitCode   int               `json:"exit_code"`
	Output     string            `json:"output"`
	Error      string            `json:"error"`
	Duration   float64           `json:"duration"`
	Statistics map[string]string `json:"statistics"`
	Cause      string            `json:"cause,omitempty"`
}

type jsonReport struct {
	Target  string       `json:"target,omitempty"`
	Results []jsonResult `json:"results"`
	Summary Summary      `json:"summary"`
}

// WriteJSON writes results as one indented JSON
// document. Durations are in seconds.
func WriteJSON(w io.Writer, target string, results []Result) error {
	const errCtx = "writing json results"

	rep := jsonReport{
		Target:  target,
		Results: make([]jsonResult, 0, len(results)),
		Summary: Summarize(results),
	}

	for _, r := range results {
		jr := jsonResult{
			Scenario:   r.Scenario,
			Success:    r.Success,
			ExitCode:   r.ExitCode,
			Output:     r.Output,
			Error:      r.Error,
			Duration:   r.Duration.Seconds(),
			Statistics: r.Statistics,
		}

		if c := r.Cause(); c.Transient() {
			jr.Cause = c.String()
		}

		rep.Results = append(rep.Results, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}
