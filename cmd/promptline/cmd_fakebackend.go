package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/fakebackend"
)

func init() {
	rootCmd.AddCommand(fakeBackendCmd)
	fakeBackendCmd.Flags().String("addr", ":5000", "listen address")
	fakeBackendCmd.Flags().Bool("manual", false, "do not generate prompts for new sessions")
}

var fakeBackendCmd = &cobra.Command{
	Use:   "fake-backend",
	Short: "Serve an in-memory prompt backend for local development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		manual, _ := cmd.Flags().GetBool("manual")

		opts := []fakebackend.Option{fakebackend.WithRequestLog()}
		if !manual {
			opts = append(opts, fakebackend.WithGenerator())
		}
		backend := fakebackend.New(opts...)
		defer backend.Close()

		srv := &http.Server{
			Addr:              addr,
			Handler:           backend.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("fake backend listening", "addr", addr, "generator", !manual)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve fake backend: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
