package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"

	"github.com/wormsnet/wormsnet/internal/gameserver"
	"github.com/wormsnet/wormsnet/internal/simulation"
)

// Config holds environment-variable overrides for the CLI flag defaults
// below, mirroring the envconfig.Config pattern of the original lobby
// server's cmd/server/main.go.
type Config struct {
	Port         uint `envconfig:"GAME_SERVER_PORT" default:"2021"`
	TurningSpeed uint `envconfig:"GAME_SERVER_TURNING_SPEED" default:"6"`
	RoundsPerSec uint `envconfig:"GAME_SERVER_ROUNDS_PER_SEC" default:"50"`
	Width        uint `envconfig:"GAME_SERVER_WIDTH" default:"640"`
	Height       uint `envconfig:"GAME_SERVER_HEIGHT" default:"480"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("", config); err != nil {
		return nil, err
	}
	return config, nil
}

func configureLogger() *log.Logger {
	logger := log.DefaultLogger

	// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	port := fs.Uint("p", config.Port, "port to listen on")
	seed := fs.Uint("s", uint(time.Now().Unix()), "rng seed")
	turningSpeed := fs.Uint("t", config.TurningSpeed, "degrees turned per round")
	roundsPerSec := fs.Uint("v", config.RoundsPerSec, "simulation rounds per second")
	width := fs.Uint("w", config.Width, "board width in pixels")
	height := fs.Uint("h", config.Height, "board height in pixels")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *port == 0 || *seed == 0 || *turningSpeed == 0 || *roundsPerSec == 0 || *width == 0 || *height == 0 {
		fs.Usage()
		return fmt.Errorf("all numeric arguments must be non-zero")
	}

	logger := configureLogger()

	constants := simulation.GameConstants{
		TurningSpeed: uint16(*turningSpeed),
		RoundsPerSec: uint32(*roundsPerSec),
		Width:        uint32(*width),
		Height:       uint32(*height),
	}

	listenAddr := fmt.Sprintf(":%d", *port)
	srv, err := gameserver.New("udp", listenAddr, constants, uint32(*seed), logger)
	if err != nil {
		return fmt.Errorf("could not construct game server: %w", err)
	}
	logger.Info().Msgf("started game server on %s (seed=%d)", listenAddr, *seed)

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = srv.Run(ctx)
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalChan
	logger.Info().Msgf("received %+v signal", sig)

	cancel()
	wg.Wait()
	if runErr != nil {
		return fmt.Errorf("game server run failed: %w", runErr)
	}

	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
