package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig  ErrorCode = "invalid_configuration"
	ErrMissingConfig  ErrorCode = "missing_configuration"
	ErrBindFlags      ErrorCode = "bind_flags_failed"
	ErrReadConfig     ErrorCode = "read_config_failed"
	ErrUnknownSite    ErrorCode = "unknown_site"
	ErrInvalidTimeout ErrorCode = "invalid_timeout"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Browser errors
	ErrBrowserLaunch ErrorCode = "browser_launch_failed"
	ErrBrowserClosed ErrorCode = "browser_closed"

	// Site measurement errors
	ErrNavigation          ErrorCode = "navigation_failed"
	ErrStartControlMissing ErrorCode = "start_control_missing"
	ErrCompletionTimeout   ErrorCode = "completion_timeout"
	ErrExtraction          ErrorCode = "extraction_failed"
	ErrEmptyResult         ErrorCode = "empty_result"

	// Sender errors
	ErrSenderConnect  ErrorCode = "sender_connect_failed"
	ErrSenderProtocol ErrorCode = "sender_protocol_error"
	ErrSenderRejected ErrorCode = "sender_rejected"

	// Telemetry errors
	ErrInitTelemetry ErrorCode = "init_telemetry_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:            "Internal error occurred",
	ErrInvalidArgument:     "Invalid argument provided",
	ErrAlreadyRunning:      "Another instance is already running",
	ErrInvalidConfig:       "Invalid configuration",
	ErrMissingConfig:       "Missing configuration",
	ErrBindFlags:           "Failed to bind flags",
	ErrReadConfig:          "Failed to read configuration",
	ErrUnknownSite:         "Unknown site identifier",
	ErrInvalidTimeout:      "Invalid timeout value",
	ErrInvalidLogLevel:     "Invalid log level",
	ErrInitFailed:          "Initialization failed",
	ErrShutdownFailed:      "Shutdown failed",
	ErrBrowserLaunch:       "Failed to launch browser",
	ErrBrowserClosed:       "Browser session is closed",
	ErrNavigation:          "Failed to load page",
	ErrStartControlMissing: "Start control not found on page",
	ErrCompletionTimeout:   "Test did not complete within timeout",
	ErrExtraction:          "Failed to extract measurement",
	ErrEmptyResult:         "No measurements extracted",
	ErrSenderConnect:       "Failed to connect to Zabbix server",
	ErrSenderProtocol:      "Invalid Zabbix protocol response",
	ErrSenderRejected:      "Zabbix rejected some samples",
	ErrInitTelemetry:       "Failed to initialize telemetry",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
