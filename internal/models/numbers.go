package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNumberRange is returned for a JSON number a float64 cannot hold
var ErrNumberRange = errors.New("number out of range")

// NormalizeNumbers replaces json.Number values throughout v. Integral numbers
// become int64 and everything else float64.
func NormalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNumberRange, val.String())
		}
		return f, nil
	case map[string]any:
		for k, e := range val {
			n, err := NormalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	case []any:
		for i, e := range val {
			n, err := NormalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	default:
		return v, nil
	}
}
