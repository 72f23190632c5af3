package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/config"
	"github.com/user/promptline/internal/notify"
	"github.com/user/promptline/internal/render"
	"github.com/user/promptline/internal/tui"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionRunCmd)

	sessionRunCmd.Flags().Bool("tui", false, "interactive view with start/stop keys")
	sessionRunCmd.Flags().Int("width", 80, "wrap width for streamed prompts")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run prompt sessions",
}

var sessionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a session and print prompts as they arrive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		if useTUI, _ := cmd.Flags().GetBool("tui"); useTUI {
			return runSessionTUI(cmd.Context(), cfg)
		}
		width, _ := cmd.Flags().GetInt("width")
		return runSessionStream(cmd.Context(), cfg, width)
	},
}

// runSessionStream starts one session, streams its prompts to stdout and
// returns when it completes. Ctrl-C stops the session first.
func runSessionStream(parent context.Context, cfg *config.Config, width int) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{
		sink:     render.NewTerminal(os.Stdout, width),
		notifier: notify.Log{},
	})
	if err != nil {
		return err
	}
	defer a.shutdown()
	a.serveMetrics(ctx)

	if err := a.ctrl.Start(ctx); err != nil {
		return err
	}

	select {
	case <-a.ctrl.Done():
		slog.Info("session complete", "prompts", a.ctrl.Status().Rendered)
		return nil
	case <-ctx.Done():
		// shutdown issues the stop and drain poll.
		return nil
	}
}

// runSessionTUI runs the interactive view. The user starts and stops sessions
// with keys; quitting stops any active session.
func runSessionTUI(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logFile, err := openTUILog(cfg)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	bridge := tui.NewBridge()
	a, err := newApp(ctx, cfg, appOptions{
		sink:          bridge,
		notifier:      bridge,
		onStateChange: bridge.OnState,
		hooks:         []render.Hook{render.CopyHook(nil)},
	})
	if err != nil {
		return err
	}
	defer a.shutdown()
	a.serveMetrics(ctx)

	p := tea.NewProgram(tui.NewSessionModel(a.ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// openTUILog sends slog output to a file while the alternate screen is up.
func openTUILog(cfg *config.Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := tea.LogToFile(filepath.Join(cfg.DataDir, "tui.log"), "promptline")
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
	return f, nil
}
