// Package report loads and tracks the static-analysis defect report a
// campaign runs against.
//
// Every alert carries two monotone booleans, covered and validated. The
// broker flips them as agents make progress and mirrors the whole report to
// a CSV file after every transition, so an external observer always sees a
// fresh picture. A campaign is over when every alert is validated.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrUnknownAlert is returned by lookups that match no alert.
var ErrUnknownAlert = errors.New("unknown alert")

// Alert is one statically-identified potential vulnerability.
type Alert struct {
	// ID is the analyser's stable identifier for this alert.
	ID int `json:"id"`

	// Binding maps the alert to the numeric tag compiled into the
	// instrumented binary. Zero means the report carries no binding for
	// this alert.
	Binding int `json:"binding_id,omitempty"`

	// Kind is the analyser's defect taxonomy code.
	Kind string `json:"kind,omitempty"`

	Severity string `json:"severity,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Function string `json:"function,omitempty"`

	// Covered is set once some input reached the alert's location.
	Covered bool `json:"covered"`

	// Validated is set once some input proved the defect real.
	// Validated implies Covered.
	Validated bool `json:"validated"`
}

func (a *Alert) String() string {
	loc := a.File
	if a.Line > 0 {
		loc = fmt.Sprintf("%s:%d", a.File, a.Line)
	}
	if a.Kind != "" || loc != "" {
		return fmt.Sprintf("alert #%d (%s %s)", a.ID, a.Kind, loc)
	}
	return fmt.Sprintf("alert #%d", a.ID)
}

// DefectReport is the in-memory defect list of one campaign.
type DefectReport struct {
	Alerts []*Alert `json:"alerts"`

	byID      map[int]*Alert
	byBinding map[int]*Alert
}

// Load reads a defect report from a JSON file. An unreadable or empty
// report is fatal to the campaign, so errors here abort startup.
func Load(path string) (*DefectReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defect report %q: %w", path, err)
	}

	var r DefectReport
	if err := json.Unmarshal(data, &r); err != nil {
		// Accept a bare list of alerts as well.
		if listErr := json.Unmarshal(data, &r.Alerts); listErr != nil {
			return nil, fmt.Errorf("failed to parse defect report %q: %w", path, err)
		}
	}
	if len(r.Alerts) == 0 {
		return nil, fmt.Errorf("defect report %q contains no alerts", path)
	}

	r.index()
	return &r, nil
}

func (r *DefectReport) index() {
	r.byID = make(map[int]*Alert, len(r.Alerts))
	r.byBinding = make(map[int]*Alert)
	for _, a := range r.Alerts {
		r.byID[a.ID] = a
		if a.Binding != 0 {
			r.byBinding[a.Binding] = a
		}
	}
}

// HasBinding reports whether the analyser emitted binary bindings. When it
// did, agents report alerts by binding id rather than raw id.
func (r *DefectReport) HasBinding() bool {
	return len(r.byBinding) > 0
}

// GetByID looks an alert up by its raw analyser id.
func (r *DefectReport) GetByID(id int) (*Alert, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownAlert, id)
	}
	return a, nil
}

// GetByBinding looks an alert up by the numeric tag compiled into the
// instrumented binary.
func (r *DefectReport) GetByBinding(binding int) (*Alert, error) {
	a, ok := r.byBinding[binding]
	if !ok {
		return nil, fmt.Errorf("%w: binding %d", ErrUnknownAlert, binding)
	}
	return a, nil
}

// Resolve finds the alert an agent update refers to: by binding when the
// report carries bindings, by raw id otherwise.
func (r *DefectReport) Resolve(id int) (*Alert, error) {
	if r.HasBinding() {
		return r.GetByBinding(id)
	}
	return r.GetByID(id)
}

// AllValidated reports whether every alert has been validated, which is the
// campaign's success condition.
func (r *DefectReport) AllValidated() bool {
	for _, a := range r.Alerts {
		if !a.Validated {
			return false
		}
	}
	return true
}

// CoveredCount returns how many alerts are covered so far.
func (r *DefectReport) CoveredCount() int {
	n := 0
	for _, a := range r.Alerts {
		if a.Covered {
			n++
		}
	}
	return n
}

// ValidatedCount returns how many alerts are validated so far.
func (r *DefectReport) ValidatedCount() int {
	n := 0
	for _, a := range r.Alerts {
		if a.Validated {
			n++
		}
	}
	return n
}

// ToJSON serializes the report, bindings included, for transmission to
// agents in a START order.
func (r *DefectReport) ToJSON() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize defect report: %w", err)
	}
	return data, nil
}

// WriteCSV mirrors the report to path, overwriting any previous content.
// The write is synchronous; callers serialise it.
func (r *DefectReport) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "binding", "kind", "severity", "file", "line", "function", "covered", "validated"}); err != nil {
		return fmt.Errorf("failed to write results header: %w", err)
	}
	for _, a := range r.Alerts {
		row := []string{
			strconv.Itoa(a.ID),
			strconv.Itoa(a.Binding),
			a.Kind,
			a.Severity,
			a.File,
			strconv.Itoa(a.Line),
			a.Function,
			strconv.FormatBool(a.Covered),
			strconv.FormatBool(a.Validated),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write results row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush results file: %w", err)
	}
	return nil
}
