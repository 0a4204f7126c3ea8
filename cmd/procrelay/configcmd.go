package main

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"

	"procrelay/internal/config"
)

// configMain prints the effective config or persists it.
func configMain(cfg config.Config, path string, args []string, stdout, stderr io.Writer) int {
	action := "show"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "show":
		data, err := toml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "encode config: %v\n", err)
			return 1
		}
		if cfg.Source != "" {
			fmt.Fprintf(stdout, "# %s\n", cfg.Source)
		}
		_, _ = stdout.Write(data)
		return 0
	case "init":
		if path == "" {
			path = cfg.Source
		}
		if err := config.Save(path, cfg); err != nil {
			fmt.Fprintf(stderr, "save config: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
		return 0
	}
	fmt.Fprintf(stderr, "usage: procrelay config show|init\n")
	return 2
}
