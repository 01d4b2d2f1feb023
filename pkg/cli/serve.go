package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flutter-integration-driver/pkg/config"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/driver/appium"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/logger"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/metrics"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/proxy"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/server"
	"github.com/devicelab-dev/flutter-integration-driver/pkg/session"
)

var serveFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "host",
		Usage:   "Listen address",
		EnvVars: []string{"FLUTTER_DRIVER_HOST"},
	},
	&cli.IntFlag{
		Name:    "port",
		Usage:   "Listen port",
		EnvVars: []string{"FLUTTER_DRIVER_PORT"},
	},
	&cli.StringFlag{
		Name:    "base-path",
		Usage:   "Mount WebDriver routes under this path, e.g. /wd/hub",
		EnvVars: []string{"FLUTTER_DRIVER_BASE_PATH"},
	},
	&cli.StringFlag{
		Name:    "android-url",
		Usage:   "UiAutomator2 driver endpoint",
		EnvVars: []string{"FLUTTER_DRIVER_ANDROID_URL"},
	},
	&cli.StringFlag{
		Name:    "ios-url",
		Usage:   "XCUITest driver endpoint",
		EnvVars: []string{"FLUTTER_DRIVER_IOS_URL"},
	},
	&cli.StringFlag{
		Name:    "windows-url",
		Usage:   "Windows driver endpoint",
		EnvVars: []string{"FLUTTER_DRIVER_WINDOWS_URL"},
	},
	&cli.StringFlag{
		Name:    "mac-url",
		Usage:   "Mac2 driver endpoint",
		EnvVars: []string{"FLUTTER_DRIVER_MAC_URL"},
	},
	&cli.IntFlag{
		Name:    "device-port",
		Usage:   "Port the in-app Flutter server listens on",
		EnvVars: []string{"FLUTTER_DRIVER_DEVICE_PORT"},
	},
	&cli.StringFlag{
		Name:    "ios-tunnel",
		Usage:   "iOS real device tunnel (goios, iproxy)",
		EnvVars: []string{"FLUTTER_DRIVER_IOS_TUNNEL"},
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Start the WebDriver server",
	Description: `Serve the WebDriver protocol until interrupted. Flags override the
config file, which overrides built-in defaults.

Examples:
  flutter-driver serve
  flutter-driver --config ci.yaml serve --port 4800
  flutter-driver serve --android-url http://10.0.0.5:4724`,
	Flags:  serveFlags,
	Action: runServe,
}

func runServe(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	if err := setupLogging(c, cfg); err != nil {
		return err
	}
	defer logger.Close()

	m := metrics.New()
	opts := session.OptionsFromConfig(cfg)
	opts.Platforms = appium.Platforms(cfg.Drivers, []proxy.Option{proxy.WithTimeout(cfg.Flutter.CommandTimeout)})
	opts.Metrics = m

	server.Version = Version
	srv := server.New(session.NewDriver(opts),
		server.WithBasePath(cfg.Server.BasePath),
		server.WithMetrics(m),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("flutter-driver %s starting", Version)
	return srv.ListenAndServe(ctx, cfg.Server.Addr())
}

// buildConfig loads the config file and applies serve flags over it.
func buildConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	if c.IsSet("host") {
		cfg.Server.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("base-path") {
		cfg.Server.BasePath = c.String("base-path")
	}
	if c.IsSet("android-url") {
		cfg.Drivers.Android = c.String("android-url")
	}
	if c.IsSet("ios-url") {
		cfg.Drivers.IOS = c.String("ios-url")
	}
	if c.IsSet("windows-url") {
		cfg.Drivers.Windows = c.String("windows-url")
	}
	if c.IsSet("mac-url") {
		cfg.Drivers.Mac = c.String("mac-url")
	}
	if c.IsSet("device-port") {
		cfg.Flutter.DevicePort = c.Int("device-port")
	}
	if c.IsSet("ios-tunnel") {
		cfg.IOS.Tunnel = c.String("ios-tunnel")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
