package steps

import (
	"encoding/json"

	"sheetflow/internal/chunks"
	"sheetflow/internal/state"
)

func init() {
	register(setDataframeFormat{})
}

// set-dataframe-format stores sheet-level display styling and transpiles
// it to Styler code against the final sheet shape.
type setDataframeFormat struct{}

func (setDataframeFormat) Type() string    { return "set_dataframe_format" }
func (setDataframeFormat) Version() int    { return 2 }
func (setDataframeFormat) Refinable() bool { return true }

func (setDataframeFormat) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	format, err := dfFormatParam(p)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	_, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	meta.DFFormat = format

	if raw, ok := p["column_formats"].(map[string]any); ok {
		for colID, v := range raw {
			if _, err := meta.Columns.HeaderFor(colID); err != nil {
				return nil, nil, err
			}
			var cf state.ColumnFormat
			if err := reshapeJSON(v, &cf); err != nil {
				return nil, nil, badParam("column_formats", "column format objects")
			}
			meta.Formats[colID] = cf
		}
	}
	return ns, nil, nil
}

func (setDataframeFormat) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	format, err := dfFormatParam(step.Params)
	if err != nil {
		return nil
	}
	return []chunks.Chunk{&chunks.FormatChunk{
		Base:       chunks.Base{Prev: step.Prev, Post: step.Post},
		SheetIndex: sheet,
		DFName:     step.Post.Metas[sheet].DFName,
		Format:     format,
	}}
}

func dfFormatParam(p Params) (state.DataframeFormat, error) {
	var format state.DataframeFormat
	obj, err := p.Map("df_format")
	if err != nil {
		return format, err
	}
	if err := reshapeJSON(obj, &format); err != nil {
		return format, badParam("df_format", "a dataframe format object")
	}
	return format, nil
}

// reshapeJSON re-marshals a JSON-shaped value into a typed struct.
func reshapeJSON(v any, out any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}
