// Package supervisor spawns OS processes and relays their output to chat.
//
// Each spawned process gets an internal sequential pid, starting at 1 and
// never reused by a later process. When a channel is given, stdout and
// stderr each feed a relay.Relay (a PTY-mode process has a single "tty"
// relay) and stdin is exposed as a line-buffered writer.
//
// On exit both relays are recolored with the success or failure palette,
// which forces a final flush. A "finished" or "terminated" card follows
// when the spawn was verbose or the exit code was non-zero. Then the pid
// slot is freed and the OnExit callback runs.
//
// A Supervisor is safe for concurrent use.
package supervisor
