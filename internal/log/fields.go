package log

// Common field names for structured logging.
const (
	FieldComponent = "component"
	FieldError     = "error"
)

// Components defines standard component names.
const (
	ComponentApp    = "app"
	ComponentWorker = "worker"
	ComponentNotify = "notify"
)
