// Package runner launches the reconciliation engine (run_all) as a subprocess
// and classifies how the run ended.
//
// A run goes through these steps:
//   - Preconditions: the configured root directory and the run_all script
//     must exist, otherwise DIR_NOT_FOUND / SCRIPT_NOT_FOUND and nothing is spawned
//   - Optional cross-process run lock (config lock_file, on by default).
//     A lock held by another host fails the run with EXECUTION_ERROR
//     "Another reconciliation is already running"; any other lock error is
//     logged and the run goes ahead unlocked
//   - argv: <python> <script> --bank <BANK> [flags...] in a fixed order
//   - Spawn in the configured root with stdin on the null device, stdout and
//     stderr captured separately and joined as stdout + "\n" + stderr
//   - Wait for exit, bounded by the configured deadline (default 30 minutes)
//
// Timeout handling:
//   - The engine runs in its own process group
//   - Descendants are snapshotted, then SIGTERM goes to the whole group
//   - After the grace period SIGKILL goes to the group
//   - Remembered descendants still alive are killed last
//   - The run fails with TIMEOUT
//
// Outcomes that are expected in normal operation are returned as *Failure
// values carrying a protocol error code. They never panic.
package runner
