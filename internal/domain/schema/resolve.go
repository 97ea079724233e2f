package schema

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/trendradar/internal/domain/model"
)

// Requirements lists what a scoring run needs from a dataset.
type Requirements struct {
	Required    []string
	Optional    []string
	Derivations []model.DerivationRule
}

// Mapping is the outcome of a successful resolution.
type Mapping struct {
	columns  map[string]string // canonical -> source column
	derived  map[string]model.DerivationRule
	unmapped []string
}

// Columns returns the union of keys across rows, sorted.
func Columns(rows []map[string]any) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve assigns source columns to canonical names. Structural problems are
// all reported together: ambiguous columns first, then missing required
// names. Values are never inspected here.
func (s *Schema) Resolve(columns []string, req Requirements) (*Mapping, error) {
	candidates := make(map[string][]string)
	m := &Mapping{
		columns: make(map[string]string),
		derived: make(map[string]model.DerivationRule),
	}
	for _, col := range columns {
		canonical, ok := s.Canonical(col)
		if !ok {
			m.unmapped = append(m.unmapped, col)
			continue
		}
		candidates[canonical] = append(candidates[canonical], col)
	}

	var ambiguous []error
	for _, f := range s.fields {
		cols := candidates[f.Canonical]
		switch len(cols) {
		case 0:
		case 1:
			m.columns[f.Canonical] = cols[0]
		default:
			sorted := append([]string(nil), cols...)
			sort.Strings(sorted)
			ambiguous = append(ambiguous, &model.AmbiguousColumnError{Metric: f.Canonical, Columns: sorted})
		}
	}
	if len(ambiguous) > 0 {
		return nil, errors.Join(ambiguous...)
	}

	rules := make(map[string]model.DerivationRule, len(req.Derivations))
	for _, r := range req.Derivations {
		rules[r.Target] = r
	}
	derive := func(name string) bool {
		r, ok := rules[name]
		if !ok {
			return false
		}
		_, num := m.columns[r.Numerator]
		_, den := m.columns[r.Denominator]
		if num && den {
			m.derived[name] = r
			return true
		}
		return false
	}

	var missing []error
	for _, name := range req.Required {
		if _, ok := m.columns[name]; ok {
			continue
		}
		if !derive(name) {
			missing = append(missing, &model.MissingColumnError{Metric: name})
		}
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}
	for _, name := range req.Optional {
		if _, ok := m.columns[name]; !ok {
			derive(name)
		}
	}
	return m, nil
}

// Column returns the source column bound to canonical.
func (m *Mapping) Column(canonical string) (string, bool) {
	c, ok := m.columns[canonical]
	return c, ok
}

// Derived returns the rule used for a canonical name without a column.
func (m *Mapping) Derived(canonical string) (model.DerivationRule, bool) {
	r, ok := m.derived[canonical]
	return r, ok
}

// Has reports whether canonical is available, directly or derived.
func (m *Mapping) Has(canonical string) bool {
	if _, ok := m.columns[canonical]; ok {
		return true
	}
	_, ok := m.derived[canonical]
	return ok
}

// Unmapped returns the source columns that matched no canonical name.
func (m *Mapping) Unmapped() []string {
	return append([]string(nil), m.unmapped...)
}

// ApplyOptions selects which canonical names become metric values.
type ApplyOptions struct {
	Values   []string // canonical names copied into Record.Values
	External string   // canonical name of the external signal, optional
}

// Apply renames rows into records. Cells are copied as they are. Canonical
// names not listed as values, and unmapped columns, land in Meta. A row
// without identifier or category, or repeating an identifier, is rejected.
func (m *Mapping) Apply(rows []map[string]any, opts ApplyOptions) ([]model.Record, error) {
	idCol, ok := m.columns[FieldID]
	if !ok {
		return nil, &model.MissingColumnError{Metric: FieldID}
	}
	catCol, ok := m.columns[FieldCategory]
	if !ok {
		return nil, &model.MissingColumnError{Metric: FieldCategory}
	}
	wanted := make(map[string]bool, len(opts.Values))
	for _, v := range opts.Values {
		wanted[v] = true
	}
	bySource := make(map[string]string, len(m.columns))
	for canonical, col := range m.columns {
		bySource[col] = canonical
	}

	records := make([]model.Record, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		line := i + 1
		id, ok := cellString(row[idCol])
		if !ok {
			return nil, &model.InvalidRecordError{Row: line, Reason: "missing identifier"}
		}
		if first, dup := seen[id]; dup {
			return nil, &model.InvalidRecordError{Row: line, Reason: "duplicate identifier " + strconv.Quote(id) + " (first at row " + strconv.Itoa(first) + ")"}
		}
		seen[id] = line
		category, ok := cellString(row[catCol])
		if !ok {
			return nil, &model.InvalidRecordError{Row: line, Reason: "missing category for " + strconv.Quote(id)}
		}

		rec := model.Record{
			ID:       id,
			Category: category,
			Values:   make(map[string]any, len(wanted)),
			Meta:     make(map[string]any),
			Row:      line,
		}
		for col, cell := range row {
			canonical, mapped := bySource[col]
			switch {
			case !mapped:
				rec.Meta[col] = cell
			case canonical == FieldID || canonical == FieldCategory:
			case opts.External != "" && canonical == opts.External:
				rec.External = cell
			case wanted[canonical]:
				rec.Values[canonical] = cell
			default:
				rec.Meta[canonical] = cell
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// cellString reads an identifier-like cell. Blank strings and nil are absent.
func cellString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case float64:
		if math.IsNaN(t) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case interface{ String() string }:
		s := strings.TrimSpace(t.String())
		return s, s != ""
	default:
		return "", false
	}
}
