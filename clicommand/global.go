// Package clicommand provides the shared CLI scaffolding used by the
// timeserver and timerun binaries: flag definitions, config loading, and
// logger construction, built the same way around cliconfig.Loader and
// urfave/cli that drives a large CLI surface elsewhere.
package clicommand

import (
	"fmt"
	"os"

	"github.com/oleiade/reflections"
	"github.com/sgerwk/timeserver/cliconfig"
	"github.com/sgerwk/timeserver/logger"
	"github.com/urfave/cli"
)

var (
	DebugFlag = cli.BoolFlag{
		Name:   "debug",
		Usage:  "Enable debug logging (default: false)",
		EnvVar: "TIMESERVER_DEBUG",
	}

	LogLevelFlag = cli.StringFlag{
		Name:   "log-level",
		Value:  "notice",
		Usage:  "Set the log level: debug, info, notice, warn, error, or fatal",
		EnvVar: "TIMESERVER_LOG_LEVEL",
	}

	NoColorFlag = cli.BoolFlag{
		Name:   "no-color",
		Usage:  "Don't show colors in logging (default: false)",
		EnvVar: "TIMESERVER_NO_COLOR",
	}

	SocketFlag = cli.StringFlag{
		Name:   "socket",
		Value:  defaultSocketPath(),
		Usage:  "Path of the message bus socket shared with clients",
		EnvVar: "TIMESERVER_SOCKET",
	}

	ConfigFileFlag = cli.StringFlag{
		Name:   "config",
		Usage:  "Path to a configuration file",
		EnvVar: "TIMESERVER_CONFIG",
	}
)

func defaultSocketPath() string {
	if dir := os.Getenv("TMPDIR"); dir != "" {
		return dir + "/timeserver.sock"
	}
	return "/tmp/timeserver.sock"
}

// GlobalConfig is embedded by every command's config struct.
type GlobalConfig struct {
	Debug    bool   `cli:"debug"`
	LogLevel string `cli:"log-level"`
	NoColor  bool   `cli:"no-color"`
}

var GlobalFlags = []cli.Flag{
	DebugFlag,
	LogLevelFlag,
	NoColorFlag,
}

// CreateLogger builds a text logger from whatever Debug/LogLevel/NoColor
// fields are present on cfg, read via reflection so any command's config
// struct works without implementing an interface.
func CreateLogger(cfg any) logger.Logger {
	printer := logger.NewTextPrinter(os.Stderr)
	printer.IsPrefixFn = func(field logger.Field) bool {
		return field.Key() == "client"
	}

	if noColor, err := reflections.GetField(cfg, "NoColor"); err == nil && noColor == true {
		printer.Colors = false
	}

	l := logger.NewConsoleLogger(printer, os.Exit)
	l.SetLevel(logger.NOTICE)

	if levelStr, err := reflections.GetField(cfg, "LogLevel"); err == nil {
		if s, ok := levelStr.(string); ok && s != "" {
			if level, err := logger.LevelFromString(s); err == nil {
				l.SetLevel(level)
			} else {
				l.Warn("unrecognized log level %q, leaving at notice", s)
			}
		}
	}

	if debug, err := reflections.GetField(cfg, "Debug"); err == nil && debug == true {
		l.SetLevel(logger.DEBUG)
	}

	return l
}

// Load parses CLI flags (and any config file/environment variables
// cliconfig.Loader recognizes) into cfg, builds a logger from the result,
// and reports load warnings through it.
func Load[T any](c *cli.Context) (cfg T, l logger.Logger) {
	loader := cliconfig.Loader{CLI: c, Config: &cfg}

	warnings, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	l = CreateLogger(&cfg)
	for _, warning := range warnings {
		l.Warn("%s", warning)
	}

	return cfg, l
}
