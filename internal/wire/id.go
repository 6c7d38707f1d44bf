package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC id: a string or an integer. The zero value is the
// nil id used by notifications.
type RequestID struct {
	str   string
	num   int64
	isNum bool
	set   bool
}

// NewStringID returns a string-valued id.
func NewStringID(s string) *RequestID {
	return &RequestID{str: s, set: true}
}

// NewIntID returns an integer-valued id.
func NewIntID(n int64) *RequestID {
	return &RequestID{num: n, isNum: true, set: true}
}

// IsNil reports whether the id carries no value.
func (id *RequestID) IsNil() bool {
	return id == nil || !id.set
}

// String renders the id for logging and map keys. Integer and string ids
// with the same rendering never collide in practice because the client picks
// one scheme per connection.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	if id.isNum {
		return json.Marshal(id.num)
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON implements json.Unmarshaler. Fractional numeric ids are
// rejected; the protocol only ever issues integers and strings.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num != float64(int64(num)) {
			return fmt.Errorf("fractional request id: %s", string(data))
		}
		*id = RequestID{num: int64(num), isNum: true, set: true}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*id = RequestID{str: str, set: true}
		return nil
	}
	return fmt.Errorf("request id must be a string or integer, got: %s", string(data))
}
