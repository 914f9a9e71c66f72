// Package sheetflow is the public surface of the edit pipeline. A host
// shell constructs an Analysis from dataframes, file paths, or named
// dataframe references, feeds it edit and update messages, reads the
// shared state back, and finally emits the equivalent pandas script.
//
// An Analysis is single-threaded by contract: the host serializes
// messages, and per-process import hooks assume one active analysis at
// a time.
package sheetflow

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"sheetflow/internal/api"
	"sheetflow/internal/config"
	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/imports"
	"sheetflow/internal/logging"
	"sheetflow/internal/manager"
	"sheetflow/internal/preprocess"
	"sheetflow/internal/saved"
	"sheetflow/internal/steps"
)

// CodeOptions re-exports the emission options for hosts.
type CodeOptions = manager.CodeOptions

// Options configures an Analysis at construction.
type Options struct {
	// Workdir is where importable files are looked for; empty means the
	// process working directory.
	Workdir string
	// CodeOptions controls emitted-script shape; zero value means the
	// defaults.
	CodeOptions *CodeOptions
	// Dataframes are host dataframes importable by name.
	Dataframes map[string]*frame.DataFrame
	// Importers and Edits are the user-defined hooks.
	Importers map[string]imports.ImporterFunc
	Edits     map[string]imports.EditFunc
	// Snowflake overrides environment warehouse credentials.
	Snowflake *imports.SnowflakeCredentials
}

// Analysis is one live pipeline.
type Analysis struct {
	mgr *manager.Manager
	api *api.API
}

// Construct canonicalizes the inputs and builds a fresh analysis.
// Inputs are *frame.DataFrame values or strings: a string is a CSV or
// Excel path, or the name of a dataframe from Options.Dataframes.
func Construct(ctx context.Context, inputs []any, opts Options) (*Analysis, error) {
	resolver := imports.NewDFResolver()
	for name, df := range opts.Dataframes {
		resolver.Register(name, df)
	}
	userDefs := imports.NewUserDefs()
	for name, fn := range opts.Importers {
		userDefs.RegisterImporter(name, fn)
	}
	for name, fn := range opts.Edits {
		userDefs.RegisterEdit(name, fn)
	}
	res, err := preprocess.Canonicalize(inputs)
	if err != nil {
		return nil, err
	}
	res.State.Env = &steps.Env{
		Resolver:  resolver,
		UserDefs:  userDefs,
		Snowflake: opts.Snowflake,
	}

	codeOpts := manager.DefaultCodeOptions()
	if opts.CodeOptions != nil {
		codeOpts = *opts.CodeOptions
	}
	mgr := manager.New(res.State, res.Args, codeOpts)
	for _, imp := range res.Imports {
		if err := mgr.HandleEdit(imp.Type, uuid.NewString(), imp.Params); err != nil {
			return nil, err
		}
	}
	logging.Get(logging.CategoryDispatch).Infow("analysis constructed",
		"name", mgr.AnalysisName(), "sheets", mgr.CurrState().NumSheets())
	return &Analysis{mgr: mgr, api: api.New(mgr, opts.Workdir)}, nil
}

// Name returns the analysis name.
func (a *Analysis) Name() string { return a.mgr.AnalysisName() }

// ReceiveEdit dispatches one edit message.
func (a *Analysis) ReceiveEdit(eventType, stepID string, params map[string]any) error {
	return a.mgr.HandleEdit(eventType, stepID, steps.Params(params))
}

// ReceiveUpdate dispatches one non-step mutation.
func (a *Analysis) ReceiveUpdate(updateType string, params map[string]any) error {
	p := steps.Params(params)
	switch updateType {
	case "undo":
		return a.mgr.Undo()
	case "redo":
		return a.mgr.Redo()
	case "clear":
		return a.mgr.Clear()
	case "clear_history":
		a.mgr.ClearHistory()
		return nil
	case "checkout_step_by_idx":
		idx, err := p.Int("step_idx")
		if err != nil {
			return err
		}
		return a.mgr.Checkout(idx)
	case "delete_steps_after_idx":
		idx, err := p.Int("step_idx")
		if err != nil {
			return err
		}
		return a.mgr.DeleteStepsAfter(idx)
	case "save_analysis":
		name, err := p.Str("analysis_name")
		if err != nil {
			return err
		}
		a.mgr.SetAnalysisName(name)
		analysis, err := saved.FromManager(a.mgr)
		if err != nil {
			return err
		}
		return analysis.Save()
	case "replay_analysis":
		return a.replayAnalysis(p)
	case "code_options_update":
		return a.updateCodeOptions(p)
	case "render_count_update":
		a.mgr.BumpRenderCount()
		return nil
	case "set_user_field":
		return updateUserProfile(func(profile *config.UserProfile) error {
			key, err := p.Str("field")
			if err != nil {
				return err
			}
			profile.SetField(key, p["value"])
			return nil
		})
	case "checklist_update":
		return updateUserProfile(func(profile *config.UserProfile) error {
			item, err := p.Str("item")
			if err != nil {
				return err
			}
			profile.MarkChecklist(item, p.BoolOr("done", true))
			return nil
		})
	default:
		return errs.UserConfig("unknown_update_type",
			"update type %q is not supported", updateType)
	}
}

func (a *Analysis) replayAnalysis(p steps.Params) error {
	name, err := p.Str("analysis_name")
	if err != nil {
		return err
	}
	analysis, err := saved.Load(name)
	if err != nil {
		return err
	}
	var overrides []steps.Params
	if raw, ok := p["import_params"].([]any); ok {
		for _, e := range raw {
			if m, ok := e.(map[string]any); ok {
				overrides = append(overrides, steps.Params(m))
			} else {
				overrides = append(overrides, nil)
			}
		}
	}
	return saved.Replay(a.mgr, analysis, overrides)
}

func (a *Analysis) updateCodeOptions(p steps.Params) error {
	opts := a.mgr.CodeOptions()
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return errs.UserConfig("bad_code_options", "cannot parse code options update").WithCause(err)
	}
	a.mgr.SetCodeOptions(opts)
	return nil
}

func updateUserProfile(mutate func(*config.UserProfile) error) error {
	profile, err := config.LoadUserProfile()
	if err != nil {
		return err
	}
	if err := mutate(profile); err != nil {
		return err
	}
	return profile.Save()
}

// Query answers one read-only api call.
func (a *Analysis) Query(ctx context.Context, apiCall string, params map[string]any) (any, error) {
	return a.api.Query(ctx, apiCall, steps.Params(params))
}

// SharedState renders the full shared-state blob as JSON.
func (a *Analysis) SharedState() ([]byte, error) {
	return json.Marshal(api.BuildSharedState(a.mgr, 0, 0))
}

// SharedStatePage renders the shared state with row pagination.
func (a *Analysis) SharedStatePage(offset, limit int) ([]byte, error) {
	return json.Marshal(api.BuildSharedState(a.mgr, offset, limit))
}

// EmitCode returns the optimized script and the wrapper parameter
// names, empty when no wrapper function is configured.
func (a *Analysis) EmitCode() (string, []string, error) {
	return a.mgr.EmitCode()
}

// ParamArgs lists the construction arguments that can become script
// parameters: the inputs that were strings.
func (a *Analysis) ParamArgs() []string {
	var out []string
	for _, s := range a.mgr.ArgStrings() {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
