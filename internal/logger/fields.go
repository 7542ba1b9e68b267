package logger

// Standard field keys for structured logging. Use these consistently so
// saga executions can be reconstructed from aggregated logs.
const (
	KeySagaID    = "saga_id"    // Unique id of one create/delete saga
	KeyOperation = "operation"  // Saga operation: create, delete
	KeyStep      = "step"       // Saga step name
	KeyUsername  = "username"   // Subject username
	KeyUID       = "uid"        // Allocated user id
	KeyGID       = "gid"        // Allocated group id
	KeyBackend   = "backend"    // Backend service: directory, kerberos, homedir, nsscache
	KeyAttempt   = "attempt"    // Retry attempt counter
	KeyDuration  = "duration"   // Operation duration
	KeyError     = "error"      // Error detail
	KeyRequestID = "request_id" // HTTP request id
)
