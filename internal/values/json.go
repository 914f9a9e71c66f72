package values

import (
	"encoding/json"
	"math"
	"time"
)

// MarshalJSON renders the cell as a plain JSON scalar so step params and
// saved analyses stay human-readable. Missing values and non-finite
// floats become the NaN placeholder string, matching what filters and
// fill-nan accept back.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNull() {
		return json.Marshal(NaNPlaceholder)
	}
	switch v.kind {
	case TypeInt:
		return json.Marshal(v.i)
	case TypeFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(NaNPlaceholder)
		}
		return json.Marshal(v.f)
	case TypeBool:
		return json.Marshal(v.b)
	case TypeDatetime:
		return json.Marshal(v.t.Format(time.RFC3339))
	case TypeTimedelta:
		return json.Marshal(v.d.String())
	}
	return json.Marshal(v.s)
}

// UnmarshalJSON reads a plain JSON scalar back into a cell. Dtype is
// inferred from the JSON shape; callers that know the column dtype cast
// afterwards. The NaN placeholder string unmarshals as a missing value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = NaN()
	case bool:
		*v = Bool(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			*v = Int(int64(x))
		} else {
			*v = Float(x)
		}
	case string:
		if x == NaNPlaceholder {
			*v = NaN()
		} else {
			*v = String(x)
		}
	default:
		*v = NaN()
	}
	return nil
}
