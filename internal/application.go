package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelgrid/tictactoe-rooms/internal/config"
	"github.com/pixelgrid/tictactoe-rooms/internal/roomstore"
	"github.com/pixelgrid/tictactoe-rooms/internal/usecase"
	"github.com/pixelgrid/tictactoe-rooms/transport/rest"
	"github.com/pixelgrid/tictactoe-rooms/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	store := roomstore.New()
	rooms := usecase.NewRoomManager(logger, store, time.Now, conf.Cleanup.AbsenceTimeout, conf.Cleanup.PreserveWindow)
	registry := usecase.NewConnectionRegistry(logger, rooms, conf.Heartbeat.Interval, conf.Heartbeat.DisconnectThreshold)
	cleanup := usecase.NewCleanupScheduler(logger, rooms, conf.Cleanup.SweepInterval, time.Now)

	go registry.Run(ctx)
	go cleanup.Run(ctx)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, conf.HTTPPort, store); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run WebSocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, rooms, registry)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err := <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
