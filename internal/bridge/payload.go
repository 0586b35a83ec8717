package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// ParsePayload decodes a message body into a Reading. The body must be a
// single non-empty JSON object. Integral numbers come back as int64 and
// everything else numeric as float64; a number beyond float64 range is
// malformed.
func ParsePayload(payload []byte) (models.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// Anything after the first value is a syntax error, as in JSON.parse
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON value", ErrMalformedPayload)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: data must be a JSON object", ErrInvalidPayload)
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("%w: data object cannot be empty", ErrInvalidPayload)
	}

	reading := make(models.Reading, len(obj))
	for k, val := range obj {
		n, err := models.NormalizeNumbers(val)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		reading[k] = n
	}
	return reading, nil
}
