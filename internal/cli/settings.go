// Package cli is the urfave/cli/v3 command tree for mcphubd: three command
// groups, serve, settings, and keys.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mcphub-dev/mcphub/internal/settings"
	"github.com/urfave/cli/v3"
)

// SettingsCommand manages the on-disk settings document.
var SettingsCommand = &cli.Command{
	Name:  "settings",
	Usage: "Manage the mcphub settings document",
	Commands: []*cli.Command{
		SettingsInitCommand,
	},
}

// SettingsInitCommand writes an empty settings document if none exists yet.
var SettingsInitCommand = &cli.Command{
	Name:  "init",
	Usage: "mcphubd settings init [--path <path>]",
	Description: `Write an empty settings document to disk.

Does nothing if a document already exists at the target path, unless
--force is given.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "path",
			Usage: "Path to the settings file (default: MCPHUB_SETTING_PATH or ./mcp_settings.json)",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Overwrite an existing settings document",
		},
	},
	Action: handleSettingsInit,
}

func handleSettingsInit(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		path = settings.DefaultPath()
	}

	if !cmd.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "[MCPHUB] settings document already exists at %s (use --force to overwrite)\n", path)
			return nil
		}
	}

	doc := settings.Empty()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal empty settings document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings document: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Wrote empty settings document to %s\n", path)
	return nil
}
