package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/config"
)

// askOneFunc is swapped out in tests.
var askOneFunc = survey.AskOne

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		fmt.Println("Promptline Setup Wizard")
		fmt.Println()

		if err := runSetupWizard(cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid answers: %w", err)
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

func runSetupWizard(cfg *config.Config) error {
	if err := askInput("Backend base URL:", &cfg.Backend.BaseURL); err != nil {
		return err
	}

	level := cfg.LogLevel
	if err := askOneFunc(&survey.Select{
		Message: "Log level:",
		Options: []string{"debug", "info", "warn", "error"},
		Default: level,
	}, &level); err != nil {
		return fmt.Errorf("ask log level: %w", err)
	}
	cfg.LogLevel = level

	var forward bool
	if err := askOneFunc(&survey.Confirm{
		Message: "Forward prompts to Telegram?",
		Default: cfg.Telegram.Token != "",
	}, &forward); err != nil {
		return fmt.Errorf("ask telegram: %w", err)
	}
	if forward {
		if err := askSecret("Telegram bot token:", &cfg.Telegram.Token); err != nil {
			return err
		}
		chatID := ""
		if cfg.Telegram.ChatID != 0 {
			chatID = strconv.FormatInt(cfg.Telegram.ChatID, 10)
		}
		if err := askInput("Telegram chat ID:", &chatID); err != nil {
			return err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
		if err != nil {
			return fmt.Errorf("parse telegram chat id %q: %w", chatID, err)
		}
		cfg.Telegram.ChatID = id
	}

	forward = false
	if err := askOneFunc(&survey.Confirm{
		Message: "Forward prompts to Slack?",
		Default: cfg.Slack.WebhookURL != "" || cfg.Slack.BotToken != "",
	}, &forward); err != nil {
		return fmt.Errorf("ask slack: %w", err)
	}
	if forward {
		if err := askSecret("Slack webhook URL (optional):", &cfg.Slack.WebhookURL); err != nil {
			return err
		}
		if cfg.Slack.WebhookURL == "" {
			if err := askSecret("Slack bot token:", &cfg.Slack.BotToken); err != nil {
				return err
			}
			if err := askInput("Slack channel:", &cfg.Slack.Channel); err != nil {
				return err
			}
		}
	}

	return askInput("Metrics listen address (empty disables):", &cfg.Metrics.Listen)
}

// askInput prompts with the current value as default.
func askInput(message string, value *string) error {
	answer := *value
	if err := askOneFunc(&survey.Input{Message: message, Default: *value}, &answer); err != nil {
		return fmt.Errorf("ask %q: %w", message, err)
	}
	*value = strings.TrimSpace(answer)
	return nil
}

// askSecret keeps the current value when the answer is empty.
func askSecret(message string, value *string) error {
	var answer string
	if err := askOneFunc(&survey.Password{Message: message}, &answer); err != nil {
		return fmt.Errorf("ask %q: %w", message, err)
	}
	if answer = strings.TrimSpace(answer); answer != "" {
		*value = answer
	}
	return nil
}
