// Package saved serializes analyses to the user's saved_analyses
// folder and replays them. On disk, column-ID params are substituted by
// their header text so a file stays replayable after ID mint rules
// change; the replay path resolves headers back to IDs against the
// live state, step by step.
package saved

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"sheetflow/internal/config"
	"sheetflow/internal/errs"
	"sheetflow/internal/logging"
	"sheetflow/internal/manager"
	"sheetflow/internal/state"
	"sheetflow/internal/steps"
)

// SchemaVersion is the saved-analysis file schema version.
const SchemaVersion = 1

// Analysis is the on-disk form of one saved analysis.
type Analysis struct {
	Version                int                 `json:"version"`
	PublicInterfaceVersion int                 `json:"public_interface_version"`
	Name                   string              `json:"analysis_name"`
	CodeOptions            manager.CodeOptions `json:"code_options"`
	StepsData              []steps.StepRecord  `json:"steps_data"`
}

// FromManager snapshots the applied steps of a manager. Skipped steps
// are omitted; column-ID params are written as headers, resolved
// against each step's prev-state. Caches released by a history clear
// are rebuilt first, so the substitution always has a state to resolve
// against.
func FromManager(m *manager.Manager) (*Analysis, error) {
	if err := m.Rehydrate(); err != nil {
		return nil, err
	}
	a := &Analysis{
		Version:                SchemaVersion,
		PublicInterfaceVersion: manager.PublicInterfaceVersion,
		Name:                   m.AnalysisName(),
		CodeOptions:            m.CodeOptions(),
	}
	for _, st := range m.AppliedSteps() {
		a.StepsData = append(a.StepsData, steps.StepRecord{
			ID:      st.ID,
			Type:    st.Type,
			Version: st.Version,
			Params:  substituteColumns(st.Prev, st.Type, st.Params, true),
		})
	}
	return a, nil
}

func analysisPath(name string) string {
	return filepath.Join(config.SavedAnalysesDir(), name+".json")
}

// Save writes the analysis under its name.
func (a *Analysis) Save() error {
	logging.Get(logging.CategorySaved).Debugw("saving analysis",
		"name", a.Name, "steps", len(a.StepsData))
	return config.WriteJSONFile(analysisPath(a.Name), a)
}

// Load reads a saved analysis by name.
func Load(name string) (*Analysis, error) {
	var a Analysis
	if err := config.ReadJSONFile(analysisPath(name), &a); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.UserConfig("analysis_not_found",
				"no saved analysis named %q", name)
		}
		return nil, err
	}
	if a.PublicInterfaceVersion > manager.PublicInterfaceVersion {
		return nil, errs.UserConfig("analysis_too_new",
			"analysis %q was saved by a newer version", name)
	}
	return &a, nil
}

// List names every saved analysis, sorted.
func List() ([]string, error) {
	entries, err := os.ReadDir(config.SavedAnalysesDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes a saved analysis.
func Delete(name string) error {
	if err := os.Remove(analysisPath(name)); err != nil {
		if os.IsNotExist(err) {
			return errs.UserConfig("analysis_not_found",
				"no saved analysis named %q", name)
		}
		return err
	}
	return nil
}

// Replay runs the analysis on top of the manager's current state.
// Records are upgraded to current step versions first. Overrides
// retarget import steps positionally: the i-th non-nil entry replaces
// the params of the i-th import step, so a saved pipeline can run
// against new files, sheets, or dataframes. Execution stops at the
// first error, leaving earlier steps committed.
func Replay(m *manager.Manager, a *Analysis, overrides []steps.Params) error {
	upgraded, err := steps.UpgradeRecords(a.StepsData)
	if err != nil {
		return err
	}
	importIdx := 0
	for _, rec := range upgraded {
		params := steps.Params(rec.Params)
		if manager.IsImportStep(rec.Type) {
			if importIdx < len(overrides) && overrides[importIdx] != nil {
				params = overrides[importIdx]
			}
			importIdx++
		}
		params = substituteColumns(m.CurrState(), rec.Type, params, false)
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		if err := m.HandleEdit(rec.Type, id, params); err != nil {
			return err
		}
	}
	m.SetReplayedFrom(a.Name)
	return nil
}

// substituteColumns rewrites the params declared as column-ID carriers
// for this step type, mapping ID to header (toHeader) or back. Strings
// with no match are kept verbatim; the performer reports unknown
// columns with a proper error at execute time.
func substituteColumns(s *state.State, stepType string, p steps.Params, toHeader bool) steps.Params {
	keys := steps.ColumnParamKeys(stepType)
	if len(keys) == 0 || s == nil {
		return p
	}
	out := make(steps.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	sheetOrder := candidateSheets(s, p)
	for _, key := range keys {
		v, ok := out[key]
		if !ok {
			continue
		}
		out[key] = mapColumnStrings(v, s, sheetOrder, toHeader)
	}
	return out
}

// candidateSheets orders sheet indexes for column resolution: the
// step's declared sheets first, then the rest.
func candidateSheets(s *state.State, p steps.Params) []int {
	var order []int
	seen := map[int]bool{}
	for _, key := range []string{"sheet_index", "sheet_index_one", "sheet_index_two"} {
		if i, err := p.Int(key); err == nil && i >= 0 && i < len(s.Metas) && !seen[i] {
			order = append(order, i)
			seen[i] = true
		}
	}
	for i := range s.Metas {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order
}

func mapColumnStrings(v any, s *state.State, sheets []int, toHeader bool) any {
	switch x := v.(type) {
	case string:
		return mapOne(x, s, sheets, toHeader)
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = mapOne(e, s, sheets, toHeader)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = mapColumnStrings(e, s, sheets, toHeader)
		}
		return out
	default:
		return v
	}
}

func mapOne(s string, st *state.State, sheets []int, toHeader bool) string {
	for _, i := range sheets {
		reg := st.Metas[i].Columns
		if toHeader {
			if h, err := reg.HeaderFor(s); err == nil {
				return h
			}
		} else {
			if id, err := reg.IDFor(s); err == nil {
				return id
			}
		}
	}
	return s
}
