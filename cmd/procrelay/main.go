package main

import (
	"fmt"
	"io"
	"os"

	"procrelay/internal/config"
	"procrelay/internal/logger"
)

var log = logger.Named("cli")

const usage = `usage: procrelay [-config path] [-log path] [-c key=value]... [command]

commands:
  ui                      interactive channel view (default)
  run [flags] -- cmd ...  run one command headless and print its channel
  config show|init        print the effective config or write it to disk`

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	logger.Configure()
	root, rest, err := parseRootArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	cfg, err := config.Load(root.cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	cfg = config.ApplyKVOverrides(cfg, root.overrides)
	if root.logPath != "" {
		cfg.Log.Path = root.logPath
	}
	closer := setupLogging(cfg.Log)
	if closer != nil {
		defer closer.Close()
	}

	cmd := "ui"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	switch cmd {
	case "ui":
		return uiMain(cfg)
	case "run":
		return runMain(cfg, rest, os.Stdout, os.Stderr)
	case "config":
		return configMain(cfg, root.cfgPath, rest, os.Stdout, os.Stderr)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return 0
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", cmd, usage)
	return 2
}

func setupLogging(cfg config.LogConfig) io.Closer {
	if err := logger.SetLevel(cfg.Level); err != nil {
		log.Warnf("invalid log level %q: %v", cfg.Level, err)
	}
	closer, _, err := logger.SetupFile(cfg.Path)
	if err != nil {
		log.Warnf("failed to initialize log file (%s): %v", cfg.Path, err)
		return nil
	}
	return closer
}
