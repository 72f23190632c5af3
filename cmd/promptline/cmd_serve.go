package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/config"
	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/notify"
	"github.com/user/promptline/internal/render"
	"github.com/user/promptline/internal/scheduler"
	"github.com/user/promptline/internal/state"
	"github.com/user/promptline/internal/types"
	"github.com/user/promptline/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: scheduled sessions, Telegram control and metrics",
	RunE:  runServe,
}

func writePIDFile(cfg *config.Config) (string, error) {
	pidPath := cfg.PIDPath()
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{
		sink:     render.NewTerminal(os.Stdout, 80),
		notifier: notify.Log{},
		control:  true,
	})
	if err != nil {
		return err
	}
	defer a.shutdown()
	a.serveMetrics(ctx)

	if a.telegram != nil {
		go a.telegram.Start(ctx)
		slog.Info("telegram adapter started", "chat_id", cfg.Telegram.ChatID)
	} else {
		slog.Warn("telegram adapter disabled (no token or chat id)")
	}

	schedules := state.NewScheduleStore(cfg.SchedulesPath())
	sched := scheduler.New(schedules, func(s *state.Schedule) {
		runScheduled(ctx, a, s)
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.HTTP.Listen != "" {
		refresh := func(ctx context.Context) error {
			return configstore.Load(ctx, a.client, a.store)
		}
		httpSrv := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           webhook.NewServer(a.ctrl, schedules, refresh),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("webhook server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
	}

	slog.Info("promptline daemon started",
		"data_dir", cfg.DataDir,
		"backend", cfg.Backend.BaseURL,
		"schedules", sched.Entries(),
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)

	for {
		sig := <-sigChan
		if sig == syscall.SIGUSR1 {
			if err := sched.Reload(); err != nil {
				slog.Error("reload schedules failed", "error", err)
			} else {
				slog.Info("schedules reloaded", "entries", sched.Entries())
			}
			continue
		}
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			a.shutdown()
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

// runScheduled refreshes the records and starts a session with the
// schedule's overrides. A session already running is left alone.
func runScheduled(ctx context.Context, a *app, s *state.Schedule) {
	if err := configstore.Load(ctx, a.client, a.store); err != nil {
		slog.Warn("refresh records before scheduled session failed", "schedule", s.Name, "error", err)
	}
	err := a.ctrl.StartWith(ctx, func(settings types.Settings) types.Settings {
		return s.Apply(settings)
	})
	if err != nil {
		slog.Error("scheduled session not started", "schedule", s.Name, "error", err)
		return
	}
	slog.Info("scheduled session started", "schedule", s.Name)
}
