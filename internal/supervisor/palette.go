package supervisor

// Accent colors of relay and notification cards.
const (
	ColorDefault       = 0x1747A5
	ColorStderr        = 0xB3A82B
	ColorSuccess       = 0x1CDC1C
	ColorSuccessStderr = 0x8AB327
	ColorError         = 0xB31C1C
	ColorErrorStderr   = 0xB38120
	ColorStarted       = 0xBCBCBC
)

// Stream names.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamTTY    = "tty"
)

func runningColor(stream string) int {
	if stream == StreamStderr {
		return ColorStderr
	}
	return ColorDefault
}

func exitColor(stream string, success bool) int {
	switch {
	case success && stream == StreamStderr:
		return ColorSuccessStderr
	case success:
		return ColorSuccess
	case stream == StreamStderr:
		return ColorErrorStderr
	default:
		return ColorError
	}
}
