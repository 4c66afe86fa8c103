package protocol

import "time"

// ErrorCode is the closed set of failure codes reported in errorCode.
type ErrorCode string

const (
	CodeDirNotFound    ErrorCode = "DIR_NOT_FOUND"
	CodeScriptNotFound ErrorCode = "SCRIPT_NOT_FOUND"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodePythonNotFound ErrorCode = "PYTHON_NOT_FOUND"
	CodeExecution      ErrorCode = "EXECUTION_ERROR"
	CodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"
	CodeInvalidJSON    ErrorCode = "INVALID_JSON"
	CodeFatal          ErrorCode = "FATAL_ERROR"
	CodeUnknown        ErrorCode = "UNKNOWN_ERROR"
)

// TimestampLayout is ISO-8601 with microseconds and a UTC offset.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp formats t for the timestamp field of a response.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Response is the envelope written back to the extension. Reconciliation
// results are proxied from run_all, so the body is an open mapping rather
// than a fixed struct. Every response carries success and timestamp.
type Response map[string]any

// Success reports the success field, treating anything but true as false.
func (r Response) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// ErrorCode returns the errorCode field, or "" when absent.
func (r Response) ErrorCode() ErrorCode {
	switch v := r["errorCode"].(type) {
	case ErrorCode:
		return v
	case string:
		return ErrorCode(v)
	default:
		return ""
	}
}

// Failure builds a failure envelope. An empty code becomes UNKNOWN_ERROR.
func Failure(code ErrorCode, msg string, at time.Time) Response {
	if code == "" {
		code = CodeUnknown
	}
	return Response{
		"success":   false,
		"error":     msg,
		"errorCode": string(code),
		"timestamp": Timestamp(at),
	}
}
