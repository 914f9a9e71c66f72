package state

import (
	"fmt"
	"strings"

	"sheetflow/internal/columns"
	"sheetflow/internal/errs"
	"sheetflow/internal/formula"
	"sheetflow/internal/frame"
	"sheetflow/internal/imports"
	"sheetflow/internal/values"
)

// Source records how a sheet entered the session.
type Source string

const (
	SourcePassed     Source = "passed"
	SourceImported   Source = "imported"
	SourcePivoted    Source = "pivoted"
	SourceMerged     Source = "merged"
	SourceConcated   Source = "concated"
	SourceDuplicated Source = "duplicated"
	SourceTransposed Source = "transposed"
	SourceMelted     Source = "melted"
	SourceAI         Source = "ai"
)

// FilterClause is a single column filter condition.
type FilterClause struct {
	Condition string       `json:"condition"`
	Value     values.Value `json:"value"`
}

// FilterGroup joins clauses on one column with And/Or.
type FilterGroup struct {
	Operator string         `json:"operator"`
	Filters  []FilterClause `json:"filters"`
}

// ColumnFormat is the display format applied to one column.
type ColumnFormat struct {
	Type      string `json:"type"`
	Precision *int   `json:"precision,omitempty"`
}

// Column format types.
const (
	FormatDefault    = "default"
	FormatPlain      = "plain text"
	FormatCurrency   = "currency"
	FormatAccounting = "accounting"
	FormatPercent    = "percent"
	FormatScientific = "scientific notation"
	FormatAbbrev     = "k_m_b"
)

// RegionStyle colors one region of a rendered dataframe.
type RegionStyle struct {
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

// DataframeFormat styles a whole sheet: header band, row stripes, border.
type DataframeFormat struct {
	Headers     RegionStyle `json:"headers"`
	RowsEven    RegionStyle `json:"rows_even"`
	RowsOdd     RegionStyle `json:"rows_odd"`
	BorderStyle string      `json:"border_style,omitempty"`
	BorderColor string      `json:"border_color,omitempty"`
}

// SheetMeta carries everything about a sheet that is not cell data.
type SheetMeta struct {
	DFName  string
	Source  Source
	Columns *columns.Registry

	// Formula text per column ID, and the dependency graph over headers.
	Formulas map[string]string
	Deps     *formula.DepGraph

	// Declared dtype overrides from change-column-dtype, by column ID.
	DTypes map[string]values.DType

	// Display state.
	Formats  map[string]ColumnFormat
	DFFormat DataframeFormat
	Filters  map[string]FilterGroup
}

// NewSheetMeta builds metadata for a freshly imported or created sheet,
// minting column IDs for every header in order. Headers must already be
// unique, which frame.New guarantees.
func NewSheetMeta(dfName string, source Source, headers []string) (*SheetMeta, error) {
	reg, err := columns.NewRegistry(headers)
	if err != nil {
		return nil, err
	}
	return &SheetMeta{
		DFName:   dfName,
		Source:   source,
		Columns:  reg,
		Formulas: make(map[string]string),
		Deps:     formula.NewDepGraph(),
		DTypes:   make(map[string]values.DType),
		Formats:  make(map[string]ColumnFormat),
		Filters:  make(map[string]FilterGroup),
	}, nil
}

// Clone deep-copies the metadata so a successor state can mutate it.
func (m *SheetMeta) Clone() *SheetMeta {
	c := &SheetMeta{
		DFName:   m.DFName,
		Source:   m.Source,
		Columns:  m.Columns.Clone(),
		Formulas: make(map[string]string, len(m.Formulas)),
		Deps:     m.Deps.Clone(),
		DTypes:   make(map[string]values.DType, len(m.DTypes)),
		Formats:  make(map[string]ColumnFormat, len(m.Formats)),
		DFFormat: m.DFFormat,
		Filters:  make(map[string]FilterGroup, len(m.Filters)),
	}
	for k, v := range m.Formulas {
		c.Formulas[k] = v
	}
	for k, v := range m.DTypes {
		c.DTypes[k] = v
	}
	for k, v := range m.Formats {
		c.Formats[k] = v
	}
	for k, v := range m.Filters {
		g := FilterGroup{Operator: v.Operator, Filters: append([]FilterClause(nil), v.Filters...)}
		c.Filters[k] = g
	}
	return c
}

// GraphData is one saved figure: identity plus the params the graph step
// declared, kept opaque here so transpilation owns their shape.
type GraphData struct {
	ID      string         `json:"graph_id"`
	TabName string         `json:"graph_tab_name"`
	Params  map[string]any `json:"graph_params"`
}

// Clone copies the graph record with a fresh params map.
func (g *GraphData) Clone() *GraphData {
	c := &GraphData{ID: g.ID, TabName: g.TabName, Params: make(map[string]any, len(g.Params))}
	for k, v := range g.Params {
		c.Params[k] = v
	}
	return c
}

// State is a snapshot of every sheet plus aligned metadata and graphs.
// Successor states are built with Copy; a predecessor is never mutated.
type State struct {
	DFs    []*frame.DataFrame
	Metas  []*SheetMeta
	Graphs []*GraphData

	// Env is the pipeline's host environment, installed on the initial
	// state and inherited by every successor through Copy.
	Env *imports.Env
}

// New builds the initial state from preprocessed dataframes. Names must
// align with dfs; empty entries get allocator defaults.
func New(dfs []*frame.DataFrame, names []string, source Source) (*State, error) {
	if len(names) != len(dfs) {
		return nil, errs.Invariant("state_name_mismatch",
			"%d dataframes but %d names", len(dfs), len(names))
	}
	s := &State{}
	for i, df := range dfs {
		if _, err := s.AddDF(df, source, names[i]); err != nil {
			return nil, fmt.Errorf("sheet %d: %w", i, err)
		}
	}
	return s, nil
}

// Empty returns a state with no sheets.
func Empty() *State { return &State{} }

// Copy returns a shallow successor: slice headers are fresh, sheet and
// graph pointers are shared. Callers clone the sheets they touch.
func (s *State) Copy() *State {
	return &State{
		DFs:    append([]*frame.DataFrame(nil), s.DFs...),
		Metas:  append([]*SheetMeta(nil), s.Metas...),
		Graphs: append([]*GraphData(nil), s.Graphs...),
		Env:    s.Env,
	}
}

// MutableSheet replaces sheet i with deep copies and returns them.
// Call on a successor built with Copy, never on a committed state.
func (s *State) MutableSheet(i int) (*frame.DataFrame, *SheetMeta, error) {
	if i < 0 || i >= len(s.DFs) {
		return nil, nil, errs.DataShape("sheet_index_out_of_range",
			"sheet index %d out of range (have %d sheets)", i, len(s.DFs))
	}
	df := s.DFs[i].Copy()
	meta := s.Metas[i].Clone()
	s.DFs[i] = df
	s.Metas[i] = meta
	return df, meta, nil
}

// AddDF appends a sheet, choosing a free df name from base, and returns
// the new sheet index.
func (s *State) AddDF(df *frame.DataFrame, source Source, base string) (int, error) {
	name := s.NewDFName(base)
	meta, err := NewSheetMeta(name, source, df.Headers)
	if err != nil {
		return -1, err
	}
	s.DFs = append(s.DFs, df)
	s.Metas = append(s.Metas, meta)
	return len(s.DFs) - 1, nil
}

// RemoveSheet drops sheet i.
func (s *State) RemoveSheet(i int) error {
	if i < 0 || i >= len(s.DFs) {
		return errs.DataShape("sheet_index_out_of_range",
			"sheet index %d out of range (have %d sheets)", i, len(s.DFs))
	}
	s.DFs = append(s.DFs[:i], s.DFs[i+1:]...)
	s.Metas = append(s.Metas[:i], s.Metas[i+1:]...)
	return nil
}

// SheetIndex finds a sheet by df name, or -1.
func (s *State) SheetIndex(dfName string) int {
	for i, m := range s.Metas {
		if m.DFName == dfName {
			return i
		}
	}
	return -1
}

// GraphIndex finds a graph by ID, or -1.
func (s *State) GraphIndex(id string) int {
	for i, g := range s.Graphs {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// NewDFName returns base if unused, otherwise the first free base_N.
// The result is always a valid python identifier.
func (s *State) NewDFName(base string) string {
	base = sanitizeDFName(base)
	used := make(map[string]bool, len(s.Metas))
	for _, m := range s.Metas {
		used[m.DFName] = true
	}
	if !used[base] {
		return base
	}
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s_%d", base, n)
		if !used[cand] {
			return cand
		}
	}
}

// NumSheets reports the sheet count.
func (s *State) NumSheets() int { return len(s.DFs) }

// Validate checks sheet/metadata alignment and per-sheet registry
// bijections. Violations are implementation bugs.
func (s *State) Validate() error {
	if len(s.DFs) != len(s.Metas) {
		return errs.Invariant("state_meta_mismatch",
			"%d dataframes but %d sheet metadata entries", len(s.DFs), len(s.Metas))
	}
	for i, m := range s.Metas {
		if err := m.Columns.Validate(s.DFs[i].Headers); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeDFName turns an arbitrary base (often a file stem) into a
// python identifier the emitted script can bind.
func sanitizeDFName(base string) string {
	if base == "" {
		return "df"
	}
	var b strings.Builder
	for _, r := range base {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "df_" + out
	}
	return out
}
