package adapter

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// jsonDecimal decodes a number sent either as a JSON number or a string.
// Empty strings and null decode as zero.
type jsonDecimal float64

func (d *jsonDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*d = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*d = jsonDecimal(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*d = jsonDecimal(f)
	return nil
}

// Ptr returns the value as a nullable float, nil when zero
func (d jsonDecimal) Ptr() *float64 {
	if d == 0 {
		return nil
	}
	f := float64(d)
	return &f
}
