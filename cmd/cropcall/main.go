package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"cropcall/native/internal/config"
	"cropcall/native/internal/logging"
)

const description = `Obtain room access tokens and crop the local video track.

The token command prints the token to stdout, so it can be captured with
$(cropcall token ...). Logs go to stderr.

Environment Variables:
  API_BASE_URL     Token backend base URL (required by "token")
  LOG_LEVEL        debug, info, warn or error (default: info)
  LOG_DEVELOPMENT  Human-readable logs when true
  SOURCE_WIDTH     Synthetic camera width for "crop" (default: 1280)
  SOURCE_HEIGHT    Synthetic camera height for "crop" (default: 720)
  SOURCE_FPS       Synthetic camera frame rate for "crop" (default: 30)`

// runtimeEnv carries what every command needs.
type runtimeEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRuntimeEnv(c *cli.Context) (*runtimeEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.Bool("debug") {
		cfg.LogDevelopment = true
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, logger: logger}, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	app := newApp()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cropcall: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "cropcall",
		Usage:       "room token and video crop client",
		Description: description,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override LOG_LEVEL",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Development logging",
			},
		},
		Commands: []*cli.Command{
			tokenCommand(),
			cropCommand(),
		},
	}
}
