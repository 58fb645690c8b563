package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Relay sessions
	FieldClientID    = "client_id"
	FieldUserID      = "user_id"
	FieldDisplayName = "display_name"
	FieldKind        = "kind"
	FieldTarget      = "to"

	// Peer sessions
	FieldPeerID = "peer_id"
	FieldRole   = "role"
	FieldState  = "state"

	// Service
	FieldService   = "service"
	FieldComponent = "component"
)
