package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/config"
)

var errNoDaemon = errors.New("no running daemon")

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
	stopCmd.Flags().Duration("wait", 0, "wait up to this long for the daemon to exit")
}

// findDaemon resolves the PID file to a live process, probing it with
// signal 0.
func findDaemon(cfg *config.Config) (*os.Process, error) {
	data, err := os.ReadFile(cfg.PIDPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w (no PID file at %s)", errNoDaemon, cfg.PIDPath())
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse PID file %s: %w", cfg.PIDPath(), err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("%w (process %d is gone)", errNoDaemon, pid)
	}
	return proc, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon; an active session is stopped first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")
		cfg := loadConfig()

		proc, err := findDaemon(cfg)
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal daemon %d: %w", proc.Pid, err)
		}
		fmt.Fprintf(os.Stdout, "Asked daemon %d to stop.\n", proc.Pid)
		if wait <= 0 {
			return nil
		}

		deadline := time.Now().Add(wait)
		for time.Now().Before(deadline) {
			if proc.Signal(syscall.Signal(0)) != nil {
				fmt.Fprintln(os.Stdout, "Daemon exited.")
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return fmt.Errorf("daemon %d still running after %s", proc.Pid, wait)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Re-exec the daemon in place (SIGHUP)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := findDaemon(loadConfig())
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGHUP); err != nil {
			return fmt.Errorf("signal daemon %d: %w", proc.Pid, err)
		}
		fmt.Fprintf(os.Stdout, "Asked daemon %d to restart.\n", proc.Pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon runs and, with http.listen set, its session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		proc, err := findDaemon(cfg)
		if errors.Is(err, errNoDaemon) {
			fmt.Fprintln(os.Stdout, "Daemon: not running")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Daemon: running (PID %d)\n", proc.Pid)

		if cfg.HTTP.Listen == "" {
			return nil
		}
		st, err := fetchSessionStatus(cfg.HTTP.Listen)
		if err != nil {
			return fmt.Errorf("query daemon session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session: %s", st.State)
		if st.SessionID != "" {
			fmt.Fprintf(os.Stdout, " (%s, %d prompts)", st.SessionID, st.Rendered)
		}
		fmt.Fprintln(os.Stdout)
		return nil
	},
}

type daemonSession struct {
	State     string `json:"state"`
	SessionID string `json:"session_id"`
	Rendered  int    `json:"rendered"`
}

func fetchSessionStatus(listen string) (*daemonSession, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, fmt.Errorf("parse http.listen %q: %w", listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/api/session")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var st daemonSession
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}
