package serializer

import (
	"encoding/json"
)

// Serializer is the (de)serialization boundary used at the repository and
// notification edges. It is injected explicitly so the wire format is a
// single swappable decision instead of a package-level default.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSON is the canonical Serializer implementation
type JSON struct{}

// NewJSON returns a JSON serializer
func NewJSON() JSON {
	return JSON{}
}

func (JSON) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
