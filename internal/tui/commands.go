package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"

	"procrelay/internal/supervisor"
)

var errQuit = errors.New("quit")

var writeClipboard = clipboard.WriteAll

const helpText = `run <command>        spawn a command, output relayed here
tty <command>        spawn a command on a pseudo-terminal
kill [-9] <pid|name> terminate (or force-kill) a process
in [pid] <text>      send a line to stdin (default: last active process)
window <pid> <n>     show only the last n lines (0 shows everything)
ps                   list running processes
rm <message-id>      delete a message as a user would
copy <pid>           copy a process's buffered output
quit                 stop every process and exit`

// execute runs one command line and returns the notice to show.
func (m *Model) execute(ctx context.Context, input string) (string, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", nil
	}
	switch fields[0] {
	case "run", "tty":
		line := restAfter(input, 1)
		if line == "" {
			return "", fmt.Errorf("usage: %s <command>", fields[0])
		}
		pid, err := m.sup.Spawn(ctx, supervisor.SpawnSpec{
			Args:      supervisor.ShellArgs(m.opts.Shell, line),
			Name:      fields[1],
			ChannelID: m.opts.ChannelID,
			Verbose:   m.opts.Verbose,
			AutoFlush: m.opts.AutoFlush,
			Windowed:  m.opts.Windowed,
			PTY:       fields[0] == "tty",
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("started [%d] %s", pid, fields[1]), nil

	case "kill":
		args := fields[1:]
		force := len(args) > 0 && args[0] == "-9"
		if force {
			args = args[1:]
		}
		if len(args) != 1 {
			return "", errors.New("usage: kill [-9] <pid|name>")
		}
		info, ok := m.sup.Lookup(args[0])
		if !ok {
			return "", fmt.Errorf("%w: %s", supervisor.ErrUnknownProcess, args[0])
		}
		if !m.sup.Kill(info.PID, force) {
			return fmt.Sprintf("[%d] %s is not running", info.PID, info.Name), nil
		}
		return fmt.Sprintf("signalled [%d] %s", info.PID, info.Name), nil

	case "in":
		pid, text, err := m.stdinTarget(input, fields)
		if err != nil {
			return "", err
		}
		in, err := m.sup.Stdin(pid)
		if err != nil {
			return "", err
		}
		if err := in.WriteLine(text); err != nil {
			return "", fmt.Errorf("write to [%d]: %w", pid, err)
		}
		if !m.opts.AutoFlush {
			if err := in.Flush(); err != nil {
				return "", fmt.Errorf("write to [%d]: %w", pid, err)
			}
		}
		return "", nil

	case "window":
		if len(fields) != 3 {
			return "", errors.New("usage: window <pid> <lines>")
		}
		pid, err1 := strconv.Atoi(fields[1])
		lines, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || lines < 0 {
			return "", errors.New("usage: window <pid> <lines>")
		}
		out, err := m.sup.Stdout(pid)
		if err != nil {
			return "", err
		}
		out.SetWindow(lines)
		if errOut, err := m.sup.Stderr(pid); err == nil {
			errOut.SetWindow(lines)
		}
		return fmt.Sprintf("[%d] window set to %d", pid, lines), nil

	case "ps":
		return m.listProcesses(), nil

	case "rm":
		if len(fields) != 2 {
			return "", errors.New("usage: rm <message-id>")
		}
		id := strings.TrimPrefix(fields[1], "#")
		for _, msg := range m.mem.Messages(m.opts.ChannelID) {
			if strings.HasPrefix(msg.Handle.ID, id) {
				m.mem.Remove(msg.Handle.ID)
				return "removed #" + shortID(msg.Handle.ID), nil
			}
		}
		return "", fmt.Errorf("no message #%s", id)

	case "copy":
		if len(fields) != 2 {
			return "", errors.New("usage: copy <pid>")
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", errors.New("usage: copy <pid>")
		}
		out, err := m.sup.Stdout(pid)
		if err != nil {
			return "", err
		}
		text := out.Snapshot()
		if errOut, err := m.sup.Stderr(pid); err == nil {
			text += errOut.Snapshot()
		}
		if err := writeClipboard(text); err != nil {
			return "", fmt.Errorf("clipboard: %w", err)
		}
		return fmt.Sprintf("copied %s characters of [%d]", humanize.Comma(int64(len([]rune(text)))), pid), nil

	case "help", "?":
		return helpText, nil

	case "quit", "exit":
		return "", errQuit
	}
	return "", fmt.Errorf("unknown command %q; type help", fields[0])
}

// stdinTarget picks the process for "in": an explicit live pid as the
// first argument, otherwise the last active process in the channel.
func (m *Model) stdinTarget(input string, fields []string) (int, string, error) {
	if len(fields) >= 3 {
		if pid, err := strconv.Atoi(fields[1]); err == nil {
			if _, err := m.sup.Stdin(pid); err == nil {
				return pid, restAfter(input, 2), nil
			}
		}
	}
	pid, ok := m.sup.FindLastActive(m.opts.ChannelID)
	if !ok {
		return 0, "", errors.New("no running process to send input to")
	}
	return pid, restAfter(input, 1), nil
}

func (m *Model) listProcesses() string {
	procs := m.sup.List()
	if len(procs) == 0 {
		return "no running processes"
	}
	lines := make([]string, 0, len(procs))
	for _, p := range procs {
		mode := ""
		if p.PTY {
			mode = " tty"
		}
		lines = append(lines, fmt.Sprintf("[%d] %s%s  os pid %d  started %s  output %s chars",
			p.PID, p.Name, mode, p.OSPID, humanize.RelTime(p.Started, time.Now(), "ago", "from now"), humanize.Comma(int64(p.Output))))
	}
	return strings.Join(lines, "\n")
}

// restAfter drops the first n whitespace-separated words of input and
// returns the rest verbatim.
func restAfter(input string, n int) string {
	s := strings.TrimSpace(input)
	for i := 0; i < n; i++ {
		idx := strings.IndexFunc(s, unicode.IsSpace)
		if idx < 0 {
			return ""
		}
		s = strings.TrimLeftFunc(s[idx:], unicode.IsSpace)
	}
	return s
}
