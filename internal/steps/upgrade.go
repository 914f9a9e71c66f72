package steps

import (
	"fmt"

	"sheetflow/internal/errs"
)

// StepRecord is the serialized form of one step in a saved analysis.
type StepRecord struct {
	ID      string `json:"step_id"`
	Type    string `json:"step_type"`
	Version int    `json:"step_version"`
	Params  Params `json:"params"`
}

// An upgrader rewrites a step recorded at an older params version into
// one or more records at the next version. Most are one-to-one; a
// one-to-many upgrader splits work the old step bundled into separate
// steps.
type upgraderFunc func(rec StepRecord) ([]StepRecord, error)

var upgraders = map[string]map[int]upgraderFunc{}

func registerUpgrader(stepType string, fromVersion int, fn upgraderFunc) {
	if upgraders[stepType] == nil {
		upgraders[stepType] = map[int]upgraderFunc{}
	}
	if _, dup := upgraders[stepType][fromVersion]; dup {
		panic(fmt.Sprintf("steps: duplicate upgrader %s v%d", stepType, fromVersion))
	}
	upgraders[stepType][fromVersion] = fn
}

// UpgradeRecord walks a recorded step through the upgrader chain until
// every resulting record is at its performer's current version. A gap
// in the chain is a hard failure: the analysis cannot be replayed.
func UpgradeRecord(rec StepRecord) ([]StepRecord, error) {
	p, err := Lookup(rec.Type)
	if err != nil {
		return nil, err
	}
	if rec.Version == 0 {
		rec.Version = p.Version()
	}
	if rec.Version > p.Version() {
		return nil, errs.UserConfig("analysis_too_new",
			"step %q was recorded at version %d, newer than supported version %d",
			rec.Type, rec.Version, p.Version())
	}
	if rec.Version == p.Version() {
		return []StepRecord{rec}, nil
	}

	fn := upgraders[rec.Type][rec.Version]
	if fn == nil {
		return nil, errs.UserConfig("no_upgrade_path",
			"no upgrade path for step %q from version %d", rec.Type, rec.Version)
	}
	upgraded, err := fn(rec)
	if err != nil {
		return nil, err
	}
	var out []StepRecord
	for _, u := range upgraded {
		final, err := UpgradeRecord(u)
		if err != nil {
			return nil, err
		}
		out = append(out, final...)
	}
	return out, nil
}

// UpgradeRecords upgrades a whole recorded step list in order.
func UpgradeRecords(recs []StepRecord) ([]StepRecord, error) {
	var out []StepRecord
	for i, rec := range recs {
		upgraded, err := UpgradeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		out = append(out, upgraded...)
	}
	return out, nil
}

func init() {
	registerUpgrader("filter_column", 3, upgradeFilterV3)
	registerUpgrader("pivot", 8, upgradePivotV8)
	registerUpgrader("change_column_dtype", 3, upgradeDtypeV3)
	registerUpgrader("excel_range_import", 5, upgradeExcelRangeV5)
	registerUpgrader("simple_import", 1, upgradeSimpleImportV1)
}

// v3 filters kept the group operator beside the clause list; v4 nests
// both under a filters object.
func upgradeFilterV3(rec StepRecord) ([]StepRecord, error) {
	params := cloneParams(rec.Params)
	operator := "And"
	if op, ok := params["operator"].(string); ok {
		operator = op
	}
	clauses := params["filters"]
	if clauses == nil {
		clauses = []any{}
	}
	delete(params, "operator")
	params["filters"] = map[string]any{"operator": operator, "filters": clauses}
	rec.Params = params
	rec.Version = 4
	return []StepRecord{rec}, nil
}

// v9 pivots added pre-pivot filters and the flatten toggle; older
// recordings get the neutral defaults.
func upgradePivotV8(rec StepRecord) ([]StepRecord, error) {
	params := cloneParams(rec.Params)
	if _, ok := params["pivot_filters"]; !ok {
		params["pivot_filters"] = []any{}
	}
	if _, ok := params["flatten_column_headers"]; !ok {
		params["flatten_column_headers"] = true
	}
	rec.Params = params
	rec.Version = 9
	return []StepRecord{rec}, nil
}

// v4 casts multiple columns at once.
func upgradeDtypeV3(rec StepRecord) ([]StepRecord, error) {
	params := cloneParams(rec.Params)
	id, ok := params["column_id"].(string)
	if !ok {
		return nil, errs.UserConfig("bad_recorded_step",
			"change_column_dtype v3 record is missing column_id")
	}
	delete(params, "column_id")
	params["column_ids"] = []any{id}
	rec.Params = params
	rec.Version = 4
	return []StepRecord{rec}, nil
}

// v6 range objects carry an explicit type discriminator.
func upgradeExcelRangeV5(rec StepRecord) ([]StepRecord, error) {
	params := cloneParams(rec.Params)
	raw, _ := params["range_imports"].([]any)
	upgraded := make([]any, len(raw))
	for i, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, errs.UserConfig("bad_recorded_step",
				"excel_range_import v5 record has a malformed range")
		}
		out := make(map[string]any, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		if _, ok := out["type"]; !ok {
			out["type"] = "range"
		}
		upgraded[i] = out
	}
	params["range_imports"] = upgraded
	rec.Params = params
	rec.Version = 6
	return []StepRecord{rec}, nil
}

// v1 CSV imports bundled post-import column renames into the import
// itself; v2 splits each into a standalone rename-column step. Rename
// records reference columns by header, which the replay loader resolves
// to IDs the same way it does for every saved analysis.
func upgradeSimpleImportV1(rec StepRecord) ([]StepRecord, error) {
	params := cloneParams(rec.Params)
	renames, _ := params["column_renames"].([]any)
	delete(params, "column_renames")
	rec.Params = params
	rec.Version = 2

	out := []StepRecord{rec}
	for i, e := range renames {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, errs.UserConfig("bad_recorded_step",
				"simple_import v1 record has a malformed rename")
		}
		out = append(out, StepRecord{
			ID:      fmt.Sprintf("%s-rename-%d", rec.ID, i),
			Type:    "rename_column",
			Version: 2,
			Params: Params{
				"sheet_index":       m["sheet_index"],
				"column_id":         m["old_column_header"],
				"new_column_header": m["new_column_header"],
			},
		})
	}
	return out, nil
}

func cloneParams(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
