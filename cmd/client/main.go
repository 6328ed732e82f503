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

	"github.com/wormsnet/wormsnet/internal/gameclient"
)

// Config holds environment-variable overrides for the CLI flag defaults
// below, the same role it plays in cmd/server/main.go.
type Config struct {
	ServerPort uint   `envconfig:"GAME_CLIENT_SERVER_PORT" default:"2021"`
	GUIHost    string `envconfig:"GAME_CLIENT_GUI_HOST" default:"localhost"`
	GUIPort    uint   `envconfig:"GAME_CLIENT_GUI_PORT" default:"20210"`
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

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	playerName := fs.String("n", "", "player name (empty joins as an observer)")
	serverPort := fs.Uint("p", config.ServerPort, "game server port")
	guiHost := fs.String("i", config.GUIHost, "gui interface host")
	guiPort := fs.Uint("r", config.GUIPort, "gui interface port")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("game_server argument is required")
	}
	gameServer := fs.Arg(0)

	if *serverPort == 0 || *guiPort == 0 {
		fs.Usage()
		return fmt.Errorf("all numeric arguments must be non-zero")
	}

	logger := configureLogger()

	serverAddr := fmt.Sprintf("%s:%d", gameServer, *serverPort)
	guiAddr := fmt.Sprintf("%s:%d", *guiHost, *guiPort)

	sessionID := uint64(time.Now().UnixMicro())

	c, err := gameclient.New("udp", serverAddr, "tcp", guiAddr, *playerName, sessionID, logger)
	if err != nil {
		return fmt.Errorf("could not construct game client: %w", err)
	}
	logger.Info().Msgf("connected to %s, bridging to gui at %s", serverAddr, guiAddr)

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = c.Run(ctx)
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalChan
	logger.Info().Msgf("received %+v signal", sig)

	cancel()
	wg.Wait()
	if runErr != nil {
		return fmt.Errorf("game client run failed: %w", runErr)
	}

	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
