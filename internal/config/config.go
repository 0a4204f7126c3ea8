package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the only persisted config file schema.
type Config struct {
	Relay      RelayConfig      `toml:"relay"`
	Transport  TransportConfig  `toml:"transport"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Log        LogConfig        `toml:"log"`
	Report     ReportConfig     `toml:"report"`
	Source     string           `toml:"-"`
}

type RelayConfig struct {
	QuietPeriod   Duration `toml:"quiet_period"`
	MaxDelay      Duration `toml:"max_delay"`
	Window        int      `toml:"window"`
	LineWidth     int      `toml:"line_width"`
	Fence         bool     `toml:"fence"`
	FenceLanguage string   `toml:"fence_language"`
	StripANSI     bool     `toml:"strip_ansi"`
	MaxHistory    int      `toml:"max_history"`
}

type TransportConfig struct {
	Timeout Duration `toml:"timeout"`
	// MaxMessages keeps only the last N messages of one stream, with a
	// marker for the hidden ones. 0 shows everything; trimming is otherwise
	// the window's job.
	MaxMessages int `toml:"max_messages"`
}

type SupervisorConfig struct {
	Shell        string   `toml:"shell"`
	Verbose      bool     `toml:"verbose"`
	AutoFlush    bool     `toml:"auto_flush"`
	DrainTimeout Duration `toml:"drain_timeout"`
	KillGrace    Duration `toml:"kill_grace"`
}

type LogConfig struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

type ReportConfig struct {
	RepeatPeriod Duration `toml:"repeat_period"`
}

// Duration reads and writes TOML strings such as "2s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default() Config {
	return Config{
		Relay: RelayConfig{
			QuietPeriod: Duration{2 * time.Second},
			Window:      20,
			LineWidth:   120,
			Fence:       true,
			StripANSI:   true,
			MaxHistory:  1 << 20,
		},
		Transport: TransportConfig{
			Timeout: Duration{10 * time.Second},
		},
		Supervisor: SupervisorConfig{
			Shell:        "sh",
			AutoFlush:    true,
			DrainTimeout: Duration{2 * time.Second},
			KillGrace:    Duration{5 * time.Second},
		},
		Log: LogConfig{
			Path:  "logs/procrelay.log",
			Level: "info",
		},
		Report: ReportConfig{
			RepeatPeriod: Duration{5 * time.Minute},
		},
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".procrelay", "config.toml")
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return applyEnv(cfg), nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, err
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if env := strings.TrimSpace(os.Getenv("PROCRELAY_QUIET_PERIOD")); env != "" {
		if v, err := time.ParseDuration(env); err == nil {
			cfg.Relay.QuietPeriod = Duration{v}
		}
	}
	if env := strings.TrimSpace(os.Getenv("PROCRELAY_WINDOW")); env != "" {
		if v, err := strconv.Atoi(env); err == nil {
			cfg.Relay.Window = v
		}
	}
	if env := strings.TrimSpace(os.Getenv("PROCRELAY_LOG_LEVEL")); env != "" {
		cfg.Log.Level = env
	}
	return cfg
}
