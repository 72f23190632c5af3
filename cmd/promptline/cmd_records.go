package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/forms"
	"github.com/user/promptline/internal/notify"
	"github.com/user/promptline/internal/types"
)

func init() {
	rootCmd.AddCommand(characterCmd, themeCmd, settingsCmd)
	characterCmd.AddCommand(characterGetCmd, characterSetCmd)
	themeCmd.AddCommand(themeGetCmd, themeSetCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)

	characterSetCmd.Flags().String("name", "", "character name")
	characterSetCmd.Flags().String("description", "", "character description")
	characterSetCmd.Flags().String("personality", "", "character personality")

	themeSetCmd.Flags().String("name", "", "theme name")
	themeSetCmd.Flags().String("description", "", "theme description")
	themeSetCmd.Flags().String("example", "", "example message")

	settingsSetCmd.Flags().Int("duration", 0, "session duration in minutes")
	settingsSetCmd.Flags().Int("interval", 0, "minimum prompt interval in seconds")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// recordForms loads the current records so set commands can apply partial
// updates on top of them.
func recordForms(ctx context.Context) (*forms.Forms, *configstore.Store, error) {
	cfg := loadConfig()
	setupLogging(cfg)
	client := newClient(cfg)
	store := configstore.New()
	if err := configstore.Load(ctx, client, store); err != nil {
		return nil, nil, err
	}
	f := forms.New(forms.Options{Backend: client, Store: store, Notifier: notify.Log{}})
	return f, store, nil
}

// stringFlag returns the flag's value if it was set, otherwise current.
func stringFlag(cmd *cobra.Command, name, current string) string {
	if !cmd.Flags().Changed(name) {
		return current
	}
	v, _ := cmd.Flags().GetString(name)
	return v
}

func intFlag(cmd *cobra.Command, name string, current int) int {
	if !cmd.Flags().Changed(name) {
		return current
	}
	v, _ := cmd.Flags().GetInt(name)
	return v
}

var characterCmd = &cobra.Command{
	Use:   "character",
	Short: "Show or update the character",
}

var characterGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the saved character",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		c, err := newClient(cfg).GetCharacter(cmd.Context())
		if err != nil {
			return fmt.Errorf("get character: %w", err)
		}
		return printJSON(c)
	},
}

var characterSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update character fields and save the full record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, store, err := recordForms(cmd.Context())
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
		c := store.Character()
		c.Name = stringFlag(cmd, "name", c.Name)
		c.Description = stringFlag(cmd, "description", c.Description)
		c.Personality = stringFlag(cmd, "personality", c.Personality)
		return f.SaveCharacter(cmd.Context(), c)
	},
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Show or update the theme",
}

var themeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the saved theme",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		t, err := newClient(cfg).GetTheme(cmd.Context())
		if err != nil {
			return fmt.Errorf("get theme: %w", err)
		}
		return printJSON(t)
	},
}

var themeSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update theme fields and save the full record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, store, err := recordForms(cmd.Context())
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
		t := store.Theme()
		t.ThemeName = stringFlag(cmd, "name", t.ThemeName)
		t.ThemeDescription = stringFlag(cmd, "description", t.ThemeDescription)
		t.ExampleMessage = stringFlag(cmd, "example", t.ExampleMessage)
		return f.SaveTheme(cmd.Context(), t)
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update session settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the saved settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		s, err := newClient(cfg).GetSettings(cmd.Context())
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		return printJSON(s)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update session settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, store, err := recordForms(cmd.Context())
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
		s := store.Settings()
		s = types.Settings{
			SessionDuration:   intFlag(cmd, "duration", s.SessionDuration),
			MinPromptInterval: intFlag(cmd, "interval", s.MinPromptInterval),
		}
		return f.SaveSettings(cmd.Context(), s)
	},
}
