package config

import (
	"strconv"
	"strings"
	"time"
)

// ApplyKVOverrides applies free-form -c key=value overrides. Keys are
// "section.field" as in the TOML file; malformed entries are ignored.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	if len(overrides) == 0 {
		return cfg
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "relay.quiet_period":
			setDuration(&cfg.Relay.QuietPeriod, val)
		case "relay.max_delay":
			setDuration(&cfg.Relay.MaxDelay, val)
		case "relay.window":
			setInt(&cfg.Relay.Window, val)
		case "relay.line_width":
			setInt(&cfg.Relay.LineWidth, val)
		case "relay.fence":
			setBool(&cfg.Relay.Fence, val)
		case "relay.fence_language":
			cfg.Relay.FenceLanguage = val
		case "relay.strip_ansi":
			setBool(&cfg.Relay.StripANSI, val)
		case "relay.max_history":
			setInt(&cfg.Relay.MaxHistory, val)
		case "transport.timeout":
			setDuration(&cfg.Transport.Timeout, val)
		case "transport.max_messages":
			setInt(&cfg.Transport.MaxMessages, val)
		case "supervisor.shell":
			cfg.Supervisor.Shell = val
		case "supervisor.verbose":
			setBool(&cfg.Supervisor.Verbose, val)
		case "supervisor.auto_flush":
			setBool(&cfg.Supervisor.AutoFlush, val)
		case "supervisor.drain_timeout":
			setDuration(&cfg.Supervisor.DrainTimeout, val)
		case "supervisor.kill_grace":
			setDuration(&cfg.Supervisor.KillGrace, val)
		case "log.path":
			cfg.Log.Path = val
		case "log.level":
			cfg.Log.Level = val
		case "report.repeat_period":
			setDuration(&cfg.Report.RepeatPeriod, val)
		}
	}
	return cfg
}

func setDuration(dst *Duration, val string) {
	if v, err := time.ParseDuration(val); err == nil {
		dst.Duration = v
	}
}

func setInt(dst *int, val string) {
	if v, err := strconv.Atoi(val); err == nil {
		*dst = v
	}
}

func setBool(dst *bool, val string) {
	if v, err := strconv.ParseBool(val); err == nil {
		*dst = v
	}
}
