package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jaminalder/hotseat-tictactoe/internal/app"
	"github.com/jaminalder/hotseat-tictactoe/internal/config"
	"github.com/jaminalder/hotseat-tictactoe/internal/console"
	"github.com/jaminalder/hotseat-tictactoe/internal/domain"
	"github.com/jaminalder/hotseat-tictactoe/internal/logging"
	"github.com/jaminalder/hotseat-tictactoe/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to an optional yaml config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(conf, os.Stdout, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, conf, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("exited with error")
		stop()
		os.Exit(1)
	}
}

func initLogger(conf *config.Config, stdout, stderr io.Writer) zerolog.Logger {
	// console mode owns stdout for the board
	out := stdout
	if conf.Mode == config.ModeConsole {
		out = stderr
	}
	return logging.New(conf.LogLevel, conf.LogFormat, out)
}

// run blocks until the selected front end stops. Cancellation is a clean exit.
func run(ctx context.Context, conf *config.Config, logger zerolog.Logger, in io.Reader, out io.Writer) error {
	switch conf.Mode {
	case config.ModeConsole:
		err := console.New(domain.NewEngine(), in, out, logger).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	default:
		svc := app.NewService(app.WithLogger(logger))
		srv := web.New(conf.HTTPAddr, svc, conf.GameTTL,
			web.WithLogger(logger),
			web.WithHeartbeat(conf.Heartbeat),
		)
		return srv.Start(ctx)
	}
}
