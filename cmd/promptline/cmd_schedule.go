package main

import (
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/scheduler"
	"github.com/user/promptline/internal/state"
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd, scheduleEnableCmd, scheduleDisableCmd)

	scheduleAddCmd.Flags().String("name", "", "schedule name (required)")
	scheduleAddCmd.Flags().String("cron", "", "cron expression, e.g. \"0 9 * * 1-5\" (required)")
	scheduleAddCmd.Flags().Int("duration", 0, "session duration in minutes (default: saved settings)")
	scheduleAddCmd.Flags().Int("interval", 0, "minimum prompt interval in seconds (default: saved settings)")
	_ = scheduleAddCmd.MarkFlagRequired("name")
	_ = scheduleAddCmd.MarkFlagRequired("cron")
}

func scheduleStore() *state.ScheduleStore {
	cfg := loadConfig()
	return state.NewScheduleStore(cfg.SchedulesPath())
}

// reloadDaemon asks a running daemon to re-read the schedules file.
func reloadDaemon() {
	proc, err := findDaemon(loadConfig())
	if err != nil {
		return
	}
	if err := proc.Signal(syscall.SIGUSR1); err != nil {
		fmt.Fprintf(os.Stderr, "Could not notify daemon %d: %v\n", proc.Pid, err)
		return
	}
	fmt.Fprintf(os.Stdout, "Daemon %d reloading schedules.\n", proc.Pid)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled sessions (run by serve)",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		expr, _ := cmd.Flags().GetString("cron")
		duration, _ := cmd.Flags().GetInt("duration")
		interval, _ := cmd.Flags().GetInt("interval")

		if err := scheduler.ValidateCron(expr); err != nil {
			return err
		}

		store := scheduleStore()
		sched := &state.Schedule{
			Name:              name,
			Cron:              expr,
			Enabled:           true,
			SessionDuration:   duration,
			MinPromptInterval: interval,
		}
		if err := store.Add(sched); err != nil {
			return fmt.Errorf("add schedule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Schedule %q added.\n", name)
		reloadDaemon()
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := scheduleStore()
		schedules, err := store.List()
		if err != nil {
			return fmt.Errorf("list schedules: %w", err)
		}

		if len(schedules) == 0 {
			fmt.Println("No schedules configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCRON\tENABLED\tDURATION\tINTERVAL")
		for _, s := range schedules {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
				s.Name,
				s.Cron,
				s.Enabled,
				override(s.SessionDuration, "m"),
				override(s.MinPromptInterval, "s"),
			)
		}
		return w.Flush()
	},
}

func override(v int, unit string) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%s", v, unit)
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a scheduled session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := scheduleStore()
		if err := store.Remove(args[0]); err != nil {
			return fmt.Errorf("remove schedule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Schedule %q removed.\n", args[0])
		reloadDaemon()
		return nil
	},
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a scheduled session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := scheduleStore()
		if err := store.SetEnabled(args[0], true); err != nil {
			return fmt.Errorf("enable schedule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Schedule %q enabled.\n", args[0])
		reloadDaemon()
		return nil
	},
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a scheduled session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := scheduleStore()
		if err := store.SetEnabled(args[0], false); err != nil {
			return fmt.Errorf("disable schedule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Schedule %q disabled.\n", args[0])
		reloadDaemon()
		return nil
	},
}
