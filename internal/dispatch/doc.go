// Package dispatch routes one decoded request to its handler.
//
// Supported commands:
//   - ping: health snapshot from the doctor; always succeeds
//   - run_reconciliation: runs run_all for a bank and returns its extracted result
//
// Anything else, including a missing command, is answered with
// UNKNOWN_COMMAND and the list of supported commands. Dispatch never returns
// an error: every outcome, expected or not, is a Response.
//
// Error handling:
//   - Runner failures (missing paths, interpreter, timeout) → their own error code
//   - Any other runner error → EXECUTION_ERROR
//   - Non-zero exit from run_all → whatever run_all reported, or a fallback summary
package dispatch
