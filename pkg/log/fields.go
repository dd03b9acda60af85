package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Process
	FieldService  = "service"
	FieldInstance = "instance_id"

	// Live session
	FieldRoomID        = "room_id"
	FieldSocketID      = "socket_id"
	FieldSessionID     = "session_id"
	FieldBattleID      = "battle_id"
	FieldTransactionID = "transaction_id"
	FieldEvent         = "event"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
