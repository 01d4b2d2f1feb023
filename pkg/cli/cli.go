// Package cli provides the command-line interface for flutter-driver.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/config"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to flutter-driver.yaml (default: ./flutter-driver.yaml if present)",
		EnvVars: []string{"FLUTTER_DRIVER_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write logs to this file instead of stderr",
		EnvVars: []string{"FLUTTER_DRIVER_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:    "log-to-home",
		Usage:   "Write logs to <home>/logs/flutter-driver.log",
		EnvVars: []string{"FLUTTER_DRIVER_LOG_TO_HOME"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		EnvVars: []string{"FLUTTER_DRIVER_LOG_LEVEL"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose logging",
		EnvVars: []string{"FLUTTER_DRIVER_VERBOSE"},
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "flutter-driver",
		Usage:   "WebDriver automation for Flutter apps on Android, iOS, Windows and macOS",
		Version: Version,
		Description: `flutter-driver serves the WebDriver protocol for Flutter apps built with the
integration server. Widget commands go to the in-app server; everything else
goes to the platform driver (UiAutomator2, XCUITest, Windows, Mac2).

Examples:
  flutter-driver serve
  flutter-driver serve --port 4723 --base-path /wd/hub
  flutter-driver caps validate caps.json
  flutter-driver methods`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			serveCommand,
			capsCommand,
			methodsCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or flutter-driver.yaml from the working
// directory or the flutter-driver home.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadFromDirs(config.SearchDirs()...)
}

// setupLogging applies the log flags over cfg.Log.
func setupLogging(c *cli.Context, cfg *config.Config) error {
	file := cfg.Log.File
	if c.IsSet("log-file") {
		file = c.String("log-file")
	} else if file == "" && c.Bool("log-to-home") {
		file = config.DefaultLogFile()
	}
	level := cfg.Log.Level
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	if c.Bool("verbose") {
		level = "debug"
	}

	if err := logger.Init(file); err != nil {
		return err
	}
	if level == "" {
		return nil
	}
	return logger.SetLevel(level)
}
