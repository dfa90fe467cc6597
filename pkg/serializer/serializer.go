// Package serializer converts between structured packet payloads and the bytes a
// Transporter moves on the wire. Transit owns the command→shape mapping (pkg/packet);
// this package only owns bytes <-> struct.
package serializer

// Serializer is the collaborator contract Transit consumes for the bytes layer.
type Serializer interface {
	// Marshal encodes a payload to bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes bytes into v, a pointer to one of the packet payload types.
	Unmarshal(data []byte, v any) error
	// Name identifies the wire format ("json" or "msgpack").
	Name() string
}
