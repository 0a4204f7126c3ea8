package supervisor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"procrelay/internal/chunker"
	"procrelay/internal/transport"
)

const argsSnippetLength = 50

func startedBlock(p *Process) transport.Block {
	b := transport.NewBlock()
	b.Title = fmt.Sprintf("Process [%d] started", p.PID)
	b.Color = ColorStarted
	b.Description = fields(
		"Name", p.Name,
		"Args", chunker.Snippet(quoteArgs(p.Args), argsSnippetLength),
		"System PID", strconv.Itoa(p.OSPID),
		"Internal PID", strconv.Itoa(p.PID),
	)
	b.Timestamp = p.Started
	return b
}

func exitedBlock(p *Process, code int, terminated bool, elapsed time.Duration) transport.Block {
	verb := "finished"
	if terminated {
		verb = "terminated"
	}
	b := transport.NewBlock()
	b.Title = fmt.Sprintf("Process [%d] %s", p.PID, verb)
	b.Color = exitColor(StreamStdout, code == 0)
	b.Description = fields(
		"Name", p.Name,
		"Internal PID", strconv.Itoa(p.PID),
		"Duration", elapsed.Round(time.Millisecond).String(),
		"Exit code", strconv.Itoa(code),
	)
	b.Timestamp = p.Started.Add(elapsed)
	return b
}

func fields(kv ...string) string {
	var sb strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "**%s:** %s", kv[i], kv[i+1])
	}
	return sb.String()
}

func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return strings.Join(quoted, ", ")
}
