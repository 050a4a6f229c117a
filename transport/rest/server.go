package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type roomIndex interface {
	Exists(code string) bool
}

func newMux(rooms roomIndex) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", pingHandler)
	mux.HandleFunc("GET /api/room/{code}", roomExistsHandler(rooms))

	return mux
}

// Start - starts the HTTP server for the health check and the stateless
// room-existence lookup.
func Start(ctx context.Context, port string, rooms roomIndex) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      newMux(rooms),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
