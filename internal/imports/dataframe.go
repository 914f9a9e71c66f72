package imports

import (
	"sort"

	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
)

// DFResolver maps bare identifiers to dataframes the host environment
// holds. Dataframe-import steps resolve through it.
type DFResolver struct {
	byName map[string]*frame.DataFrame
}

// NewDFResolver returns an empty resolver.
func NewDFResolver() *DFResolver {
	return &DFResolver{byName: make(map[string]*frame.DataFrame)}
}

// Register binds a dataframe to an identifier, replacing any previous
// binding.
func (r *DFResolver) Register(name string, df *frame.DataFrame) {
	r.byName[name] = df
}

// Resolve looks an identifier up. The returned dataframe is copied so
// pipeline edits never leak back into the host's object.
func (r *DFResolver) Resolve(name string) (*frame.DataFrame, error) {
	df, ok := r.byName[name]
	if !ok {
		return nil, errs.UserConfig("unknown_dataframe",
			"no dataframe named %q was passed to this pipeline", name)
	}
	return df.Copy(), nil
}

// Names lists registered identifiers, sorted.
func (r *DFResolver) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
