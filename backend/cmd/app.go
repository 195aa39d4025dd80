package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/adwski/chat-relay/backend/config"
	"github.com/adwski/chat-relay/backend/registry"
	"github.com/adwski/chat-relay/backend/relay"
	httpServer "github.com/adwski/chat-relay/backend/server/http"
	websocketServer "github.com/adwski/chat-relay/backend/server/websocket"
	"github.com/adwski/chat-relay/backend/storage/chatlog"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	var store chatlog.Store
	if cfg.DatabaseURL != "" {
		store, err = chatlog.NewPGStore(context.Background(), cfg.DatabaseURL, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init postgres chat log")
		}
	} else {
		store, err = chatlog.NewFileStore(filepath.Join(cfg.DataDir, "chat"), &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init file chat log")
		}
	}
	defer store.Close()

	reg := registry.New(&logger)
	rel := relay.New(relay.Config{
		Registry: reg,
		Store:    store,
		Logger:   &logger,
	})
	apiSrv := httpServer.NewServer(httpServer.Config{
		Logger:     &logger,
		History:    store,
		Presence:   reg,
		ListenAddr: cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:     &logger,
		Handler:    rel,
		ListenAddr: cfg.WSListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go apiSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
