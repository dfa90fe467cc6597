package serializer

import "encoding/json"

// JSON is the default Serializer: readable on the wire, easy to debug with a
// transporter CLI, at the cost of size relative to msgpack.
type JSON struct{}

// NewJSON creates a JSON serializer.
func NewJSON() *JSON { return &JSON{} }

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }
