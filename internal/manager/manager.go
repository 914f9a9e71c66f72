// Package manager implements the steps manager: the canonical step
// list with its cursor and undone stack, the dispatch loop for incoming
// edit messages, undo/redo/checkout/replay, and code emission.
//
// The manager is single-threaded by contract. Hosts serialize edit
// messages before they reach HandleEdit; nothing here spawns workers
// that touch State.
package manager

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sheetflow/internal/errs"
	"sheetflow/internal/logging"
	"sheetflow/internal/state"
	"sheetflow/internal/steps"
)

// PublicInterfaceVersion is bumped whenever the shared-state shape or
// the edit message contract changes incompatibly.
const PublicInterfaceVersion = 2

// initializeStepType labels the pseudo-step holding the initial state.
const initializeStepType = "initialize"

// importStepTypes are the kinds Clear preserves: resetting an analysis
// keeps its data sources and drops every edit on top of them.
var importStepTypes = map[string]bool{
	"simple_import":       true,
	"excel_import":        true,
	"excel_range_import":  true,
	"dataframe_import":    true,
	"snowflake_import":    true,
	"user_defined_import": true,
}

// IsImportStep reports whether a step type is a data-source import.
// Import steps survive Clear and are the targets of replay retargeting.
func IsImportStep(stepType string) bool { return importStepTypes[stepType] }

// Manager owns one analysis: its step history and everything needed to
// re-render, replay, or transpile it.
type Manager struct {
	analysisName string
	replayedFrom string
	argStrings   []string

	steps  []*steps.Step
	cursor int
	undone []*steps.Step

	renderCount int
	codeOptions CodeOptions

	log *zap.SugaredLogger
}

// StepSummary is the shell-facing view of one committed step.
type StepSummary struct {
	Index  int          `json:"step_idx"`
	ID     string       `json:"step_id"`
	Type   string       `json:"step_type"`
	Params steps.Params `json:"params"`
	Skip   bool         `json:"skipped"`
}

// New builds a manager around an initial state. Args records the raw
// argument strings the analysis was constructed from, used later for
// code parameterization.
func New(initial *state.State, args []string, opts CodeOptions) *Manager {
	init := &steps.Step{
		ID:   uuid.NewString(),
		Type: initializeStepType,
		Post: initial,
	}
	return &Manager{
		analysisName: "analysis-" + uuid.NewString()[:8],
		argStrings:   append([]string(nil), args...),
		steps:        []*steps.Step{init},
		cursor:       0,
		codeOptions:  opts,
		log:          logging.Get(logging.CategoryDispatch),
	}
}

// CurrState is the post-state at the cursor.
func (m *Manager) CurrState() *state.State { return m.steps[m.cursor].Post }

// AnalysisName returns the current analysis name.
func (m *Manager) AnalysisName() string { return m.analysisName }

// SetAnalysisName renames the analysis (used when saving under a name).
func (m *Manager) SetAnalysisName(name string) { m.analysisName = name }

// ReplayedFrom reports the saved analysis this one was replayed from,
// or "".
func (m *Manager) ReplayedFrom() string { return m.replayedFrom }

// SetReplayedFrom records the replay source.
func (m *Manager) SetReplayedFrom(name string) { m.replayedFrom = name }

// ArgStrings returns the raw construction arguments.
func (m *Manager) ArgStrings() []string {
	return append([]string(nil), m.argStrings...)
}

// RenderCount returns the shell render counter.
func (m *Manager) RenderCount() int { return m.renderCount }

// BumpRenderCount increments the render counter; shells call this once
// per render so stale frontends can detect they are behind.
func (m *Manager) BumpRenderCount() { m.renderCount++ }

// CodeOptions returns the current emission options.
func (m *Manager) CodeOptions() CodeOptions { return m.codeOptions }

// SetCodeOptions replaces the emission options.
func (m *Manager) SetCodeOptions(opts CodeOptions) { m.codeOptions = opts }

// AppliedSteps returns the non-skipped steps up to the cursor, in
// execution order, excluding the initialize pseudo-step. The saved
// analysis writer serializes exactly this list.
func (m *Manager) AppliedSteps() []*steps.Step {
	var out []*steps.Step
	for i := 1; i <= m.cursor; i++ {
		if !m.steps[i].Skip {
			out = append(out, m.steps[i])
		}
	}
	return out
}

// StepSummaries lists every step in the canonical list, including
// skipped ones, for the shell's history view.
func (m *Manager) StepSummaries() []StepSummary {
	out := make([]StepSummary, 0, len(m.steps)-1)
	for i := 1; i < len(m.steps); i++ {
		st := m.steps[i]
		out = append(out, StepSummary{
			Index:  i,
			ID:     st.ID,
			Type:   st.Type,
			Params: st.Params,
			Skip:   st.Skip,
		})
	}
	return out
}

// CursorIndex returns the index of the current step in the canonical
// list. Zero means the initial state.
func (m *Manager) CursorIndex() int { return m.cursor }

// HandleEdit is the dispatch loop for one incoming edit message. The
// event type may carry the host's "_edit" suffix. A repeated message
// with the step ID of the most recent step, for an overwrite-eligible
// kind, replaces that step instead of appending; otherwise the step is
// executed against the current post-state and committed. Failures leave
// the history untouched.
func (m *Manager) HandleEdit(eventType, stepID string, params steps.Params) error {
	stepType := strings.TrimSuffix(eventType, "_edit")
	p, err := steps.Lookup(stepType)
	if err != nil {
		return err
	}
	if stepID == "" {
		stepID = uuid.NewString()
	}

	if err := m.rehydrate(m.cursor); err != nil {
		return err
	}

	last := m.steps[m.cursor]
	if m.cursor > 0 && m.cursor == len(m.steps)-1 &&
		last.ID == stepID && last.Type == stepType && p.Refinable() {
		return m.refine(p, last, params)
	}

	prev := m.CurrState()
	post, execData, err := p.Execute(prev, params)
	if err != nil {
		m.log.Debugw("edit failed", "step_type", stepType, "error", err)
		return err
	}

	// Commit: discard anything beyond the cursor, including undone
	// steps, then append.
	m.steps = append(m.steps[:m.cursor+1], &steps.Step{
		ID:       stepID,
		Type:     stepType,
		Version:  p.Version(),
		Params:   params,
		Prev:     prev,
		Post:     post,
		ExecData: execData,
	})
	m.cursor = len(m.steps) - 1
	m.undone = nil
	m.log.Debugw("edit committed", "step_type", stepType, "step_id", stepID)
	return nil
}

// refine replaces the tail step in place and re-runs it from that
// step's own prev-state.
func (m *Manager) refine(p steps.Performer, last *steps.Step, params steps.Params) error {
	post, execData, err := p.Execute(last.Prev, params)
	if err != nil {
		return err
	}
	last.Params = params
	last.Version = p.Version()
	last.Post = post
	last.ExecData = execData
	m.log.Debugw("edit refined", "step_type", last.Type, "step_id", last.ID)
	return nil
}

// Undo marks the step at the cursor skipped, parks it on the undone
// stack, and moves the cursor to the previous live step. Cached
// post-states make this O(1).
func (m *Manager) Undo() error {
	if m.cursor == 0 {
		return errs.UserConfig("nothing_to_undo", "there is no step to undo")
	}
	if err := m.rehydrate(m.cursor); err != nil {
		return err
	}
	st := m.steps[m.cursor]
	st.Skip = true
	m.undone = append(m.undone, st)
	for m.cursor > 0 && m.steps[m.cursor].Skip {
		m.cursor--
	}
	return nil
}

// Redo revives the most recently undone step. Its prev-state is still
// the post-state at the cursor, so the cached result is restored
// directly.
func (m *Manager) Redo() error {
	if len(m.undone) == 0 {
		return errs.UserConfig("nothing_to_redo", "there is no step to redo")
	}
	st := m.undone[len(m.undone)-1]
	m.undone = m.undone[:len(m.undone)-1]
	st.Skip = false
	for i, s := range m.steps {
		if s == st {
			m.cursor = i
			return nil
		}
	}
	return errs.Invariant("undone_step_missing",
		"undone step %s is not in the step list", st.ID)
}

// Checkout moves the cursor to an earlier (or later) step without
// touching history.
func (m *Manager) Checkout(idx int) error {
	if idx < 0 || idx >= len(m.steps) {
		return errs.UserConfig("bad_step_index",
			"step index %d out of range (have %d)", idx, len(m.steps))
	}
	if m.steps[idx].Skip {
		return errs.UserConfig("bad_step_index",
			"step index %d is skipped", idx)
	}
	if err := m.rehydrate(idx); err != nil {
		return err
	}
	m.cursor = idx
	return nil
}

// DeleteStepsAfter irreversibly trims the history past idx.
func (m *Manager) DeleteStepsAfter(idx int) error {
	if idx < 0 || idx >= len(m.steps) {
		return errs.UserConfig("bad_step_index",
			"step index %d out of range (have %d)", idx, len(m.steps))
	}
	m.steps = m.steps[:idx+1]
	if m.cursor > idx {
		m.cursor = idx
		for m.cursor > 0 && m.steps[m.cursor].Skip {
			m.cursor--
		}
	}
	m.undone = nil
	return nil
}

// Clear resets the analysis to its data sources: import steps are kept
// and re-executed in order from the initial state, everything else is
// dropped.
func (m *Manager) Clear() error {
	kept := []*steps.Step{m.steps[0]}
	running := m.steps[0].Post
	for _, st := range m.steps[1:] {
		if st.Skip || !importStepTypes[st.Type] {
			continue
		}
		p, err := steps.Lookup(st.Type)
		if err != nil {
			return err
		}
		post, execData, err := p.Execute(running, st.Params)
		if err != nil {
			return fmt.Errorf("re-running import %s: %w", st.Type, err)
		}
		kept = append(kept, &steps.Step{
			ID:       st.ID,
			Type:     st.Type,
			Version:  st.Version,
			Params:   st.Params,
			Prev:     running,
			Post:     post,
			ExecData: execData,
		})
		running = post
	}
	m.steps = kept
	m.cursor = len(m.steps) - 1
	m.undone = nil
	return nil
}

// ClearHistory releases every cached state except the initial state and
// the cursor's post-state, and drops anything beyond the cursor. Undo
// and code emission re-execute the surviving steps on demand.
func (m *Manager) ClearHistory() {
	m.steps = m.steps[:m.cursor+1]
	m.undone = nil
	for i := 1; i < len(m.steps); i++ {
		st := m.steps[i]
		st.Prev = nil
		if i != m.cursor {
			st.Post = nil
		}
		st.ExecData = nil
	}
}

// rehydrate re-executes steps whose cached states were released, up to
// and including idx. Steps with intact caches are left alone.
func (m *Manager) rehydrate(idx int) error {
	running := m.steps[0].Post
	for i := 1; i <= idx; i++ {
		st := m.steps[i]
		if st.Skip {
			continue
		}
		if st.Post != nil && st.Prev == running {
			running = st.Post
			continue
		}
		if st.Post != nil && st.Prev == nil && i == m.cursor {
			// The cursor's post-state survived ClearHistory; trust it.
			st.Prev = running
			running = st.Post
			continue
		}
		p, err := steps.Lookup(st.Type)
		if err != nil {
			return err
		}
		post, execData, err := p.Execute(running, st.Params)
		if err != nil {
			return fmt.Errorf("re-running step %s: %w", st.Type, err)
		}
		st.Prev = running
		st.Post = post
		st.ExecData = execData
		running = post
	}
	return nil
}

// Rehydrate restores the cached states released by ClearHistory, up to
// the cursor, re-executing released steps as needed.
func (m *Manager) Rehydrate() error { return m.rehydrate(m.cursor) }

// ExecuteStepsData replays recorded step data on top of the current
// state, upgrading old step versions first. Execution stops at the
// first error, leaving the steps committed so far in place.
func (m *Manager) ExecuteStepsData(records []steps.StepRecord) error {
	upgraded, err := steps.UpgradeRecords(records)
	if err != nil {
		return err
	}
	for i, rec := range upgraded {
		p, err := steps.Lookup(rec.Type)
		if err != nil {
			return err
		}
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		if err := m.HandleEdit(rec.Type, id, steps.Params(rec.Params)); err != nil {
			return fmt.Errorf("replaying step %d (%s): %w", i, p.Type(), err)
		}
	}
	return nil
}
