package main

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/forms"
	"github.com/user/promptline/internal/tui"
)

func init() {
	rootCmd.AddCommand(editCmd)
}

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the character and theme; changes are saved as you type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logFile, err := openTUILog(cfg)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()

		client := newClient(cfg)
		store := configstore.New()
		if err := configstore.Load(cmd.Context(), client, store); err != nil {
			slog.Warn("editing from empty records", "error", err)
		}

		bridge := tui.NewBridge()
		f := forms.New(forms.Options{
			Backend:   client,
			Store:     store,
			Notifier:  bridge,
			Quiet:     cfg.AutosaveQuiet(),
			Indicator: cfg.IndicatorDuration(),
		})
		model := tui.NewFormModel(f, bridge, store.Character(), store.Theme())

		p := tea.NewProgram(model, tea.WithContext(cmd.Context()))
		bridge.Attach(p)
		if _, err := p.Run(); err != nil {
			model.Close()
			return fmt.Errorf("run editor: %w", err)
		}
		return nil
	},
}
