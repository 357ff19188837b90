package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mcphub-dev/mcphub/internal/auth"
	"github.com/urfave/cli/v3"
)

// KeysCommand manages the legacy static API key file.
var KeysCommand = &cli.Command{
	Name:  "keys",
	Usage: "Manage static API keys for the legacy tool-invocation chain",
	Commands: []*cli.Command{
		KeysCreateCommand,
	},
}

// KeysCreateCommand generates and stores a new API key.
var KeysCreateCommand = &cli.Command{
	Name:  "create",
	Usage: "mcphubd keys create",
	Description: `Generate a new API key for the legacy tool-invocation chain.

The key is printed once to the console, then hashed with bcrypt and stored
in ~/.mcphub/api_keys.json.
`,
	Action: handleKeysCreate,
}

func handleKeysCreate(_ context.Context, _ *cli.Command) error {
	path, err := auth.DefaultAPIKeysPath()
	if err != nil {
		return fmt.Errorf("failed to resolve api key path: %w", err)
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(os.Stdout, "New API key (store this now, it won't be shown again):"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(os.Stdout, key); err != nil {
		return err
	}

	entry, err := auth.NewAPIKeyEntry(key)
	if err != nil {
		return err
	}
	if _, err := auth.AppendAPIKey(path, entry); err != nil {
		return err
	}

	_, err = fmt.Fprintf(os.Stdout, "Stored hashed key in %s\n", path)
	return err
}
