package localbus

// Well-known notice names Transit emits on the local bus.
const (
	EventTransporterConnected    = "$transporter.connected"
	EventTransporterDisconnected = "$transporter.disconnected"
	EventNodePong                = "$node.pong"
)
