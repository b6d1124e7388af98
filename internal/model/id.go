package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID identifies a backend record. The backend emits integer keys while
// locally created records use UUIDs, so both JSON numbers and strings
// are accepted.
type ID string

// UnmarshalJSON accepts a JSON number, string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the raw identifier.
func (id ID) String() string { return string(id) }

// Less orders ids numerically when both are integers and
// lexicographically otherwise.
func (id ID) Less(other ID) bool {
	a, errA := strconv.ParseInt(string(id), 10, 64)
	b, errB := strconv.ParseInt(string(other), 10, 64)
	if errA == nil && errB == nil {
		return a < b
	}
	return id < other
}
