// Package output formats omni's machine-readable (--json) command output:
// one encoder per result shape, indenting the same way.
package output

import (
	"encoding/json"
	"io"

	"github.com/omnicli/omni/internal/operation"
)

// StepOutcome is one operation's result, shaped for JSON consumption.
type StepOutcome struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// RunReport is `omni up`/`omni down`'s --json payload.
type RunReport struct {
	EnvVersionID string        `json:"env_version_id,omitempty"`
	Aborted      bool          `json:"aborted"`
	Steps        []StepOutcome `json:"steps"`
}

// NewRunReport converts an operation.RunResult into its JSON shape.
func NewRunReport(result operation.RunResult, envVersionID string) RunReport {
	report := RunReport{EnvVersionID: envVersionID, Aborted: result.Aborted}
	for _, s := range result.Steps {
		so := StepOutcome{Index: s.Index, Kind: s.Kind, Outcome: s.Outcome.String()}
		if s.Err != nil {
			so.Error = s.Err.Error()
		}
		report.Steps = append(report.Steps, so)
	}
	return report
}

// RemovableResource is one row of `omni cache list-removable`'s payload.
type RemovableResource struct {
	Kind        string `json:"kind"`
	Values      []any  `json:"values"`
	InstallPath string `json:"install_path"`
}

// FormatJSON writes v as indented JSON to w.
func FormatJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
