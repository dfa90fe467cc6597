package serializer

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is the binary Serializer option, mirroring the "codec: msgpack" transport
// configuration option seen elsewhere in this codebase family's message-bus configs.
// Preferred over JSON on bandwidth-constrained links between nodes.
type Msgpack struct{}

// NewMsgpack creates a msgpack serializer.
func NewMsgpack() *Msgpack { return &Msgpack{} }

func (Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (Msgpack) Name() string { return "msgpack" }
