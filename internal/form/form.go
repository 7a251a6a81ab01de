package form

import "strings"

// Field names, also used as the missing[] vocabulary.
const (
	FieldBiodata      = "biodata"
	FieldSourceInfo   = "source_info"
	FieldBusinessType = "business_type"
	FieldBudget       = "budget"
	FieldStartPlan    = "start_plan"
)

var fieldOrder = []string{
	FieldBiodata,
	FieldSourceInfo,
	FieldBusinessType,
	FieldBudget,
	FieldStartPlan,
}

// Fragment is a partial or complete set of the five qualification answers.
// An empty string means the field has not been captured yet.
type Fragment struct {
	Biodata      string
	SourceInfo   string
	BusinessType string
	Budget       string
	StartPlan    string
}

func (f Fragment) get(field string) string {
	switch field {
	case FieldBiodata:
		return f.Biodata
	case FieldSourceInfo:
		return f.SourceInfo
	case FieldBusinessType:
		return f.BusinessType
	case FieldBudget:
		return f.Budget
	case FieldStartPlan:
		return f.StartPlan
	}
	return ""
}

func (f *Fragment) set(field, value string) {
	switch field {
	case FieldBiodata:
		f.Biodata = value
	case FieldSourceInfo:
		f.SourceInfo = value
	case FieldBusinessType:
		f.BusinessType = value
	case FieldBudget:
		f.Budget = value
	case FieldStartPlan:
		f.StartPlan = value
	}
}

func (f Fragment) IsEmpty() bool {
	for _, field := range fieldOrder {
		if strings.TrimSpace(f.get(field)) != "" {
			return false
		}
	}
	return true
}

// Merge overlays partial on existing: a captured (non-empty) value in partial
// replaces whatever was there before, an empty one preserves the prior value.
func Merge(existing, partial Fragment) Fragment {
	out := existing
	for _, field := range fieldOrder {
		if v := strings.TrimSpace(partial.get(field)); v != "" {
			out.set(field, v)
		}
	}
	return out
}

// Result is the outcome of validating a parse pass against the accumulated
// fragment for a lead.
type Result struct {
	Valid   bool
	Merged  Fragment
	Missing []string
}

// Validate merges partial over existing and checks completeness.
func Validate(partial, existing Fragment) Result {
	merged := Merge(existing, partial)
	var missing []string
	for _, field := range fieldOrder {
		if strings.TrimSpace(merged.get(field)) == "" {
			missing = append(missing, field)
		}
	}
	return Result{Valid: len(missing) == 0, Merged: merged, Missing: missing}
}

var fieldChecklist = map[string]string{
	FieldBiodata:      "Nama & Domisili",
	FieldSourceInfo:   "Sumber informasi",
	FieldBusinessType: "Jenis bisnis",
	FieldBudget:       "Budget",
	FieldStartPlan:    "Rencana mulai",
}

// ExplainMissing renders a user-visible checklist of the fields still needed.
// An empty list renders to an empty string.
func ExplainMissing(missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Mohon lengkapi data berikut ya:\n")
	for _, field := range missing {
		label, ok := fieldChecklist[field]
		if !ok {
			label = field
		}
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var fieldLabels = map[string]string{
	FieldBiodata:      "Nama, Domisili",
	FieldSourceInfo:   "Sumber info",
	FieldBusinessType: "Jenis bisnis",
	FieldBudget:       "Budget",
	FieldStartPlan:    "Rencana mulai",
}

// Format renders a fragment as canonical labeled lines. Parse(Format(f))
// recovers f for any fragment Parse itself produced.
func Format(f Fragment) string {
	var lines []string
	for _, field := range fieldOrder {
		v := strings.TrimSpace(f.get(field))
		if v == "" {
			continue
		}
		lines = append(lines, fieldLabels[field]+": "+v)
	}
	return strings.Join(lines, "\n")
}
