package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type httpServer struct {
	server *http.Server
}

func NewHTTPServer(port string, handler http.Handler) (*httpServer, error) {
	if port == "" {
		return nil, errors.New("port is required")
	}

	return &httpServer{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (h *httpServer) Name() string { return "http server service" }

func (h *httpServer) Run(ctx context.Context) error {
	slog.Info("starting http server service", "addr", h.server.Addr)
	defer slog.Info("stopped http server service")

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}
