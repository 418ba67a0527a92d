package logger

// Standard field keys for structured logging. Using these consistently
// keeps log lines greppable and lets log aggregation group by key instead
// of parsing free-form text.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Connection / session
	KeyConnectionID = "connection_id"
	KeyUserID       = "user_id"
	KeyPermission   = "permission"
	KeyRemoteAddr   = "remote_addr"

	// Document operations
	KeyDocumentID    = "document_id"
	KeyProcedure     = "procedure"   // submit, auth, presence_set, ...
	KeyVersion       = "version"
	KeyTransactionID = "transaction_id"
	KeyReason        = "reason"
	KeyShardGroup    = "shard_group"
	KeyShardNode     = "shard_node"

	// Generic
	KeyError      = "error"
	KeyDurationMs = "duration_ms"
)
