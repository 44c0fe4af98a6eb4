package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tgforge/tgforge/internal/cli/prompt"
	"github.com/tgforge/tgforge/pkg/config"
	"github.com/tgforge/tgforge/pkg/store"
)

var (
	initForce   bool
	initNoInput bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a tgforge configuration file.

By default, the command asks a few questions and writes the configuration
to $XDG_CONFIG_HOME/tgforge/config.yaml. Use --config to choose a custom
path and --no-input to write plain defaults without prompting.

Examples:
  # Interactive setup at the default location
  tgforge init

  # Write defaults without prompting
  tgforge init --no-input

  # Initialize with custom path
  tgforge init --config ./mybot/config.yaml

  # Force overwrite existing config
  tgforge init --force`,
	RunE: runInitConfig,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVar(&initNoInput, "no-input", false, "Skip prompts and write defaults")
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()

	if !initNoInput {
		if err := askConfig(cfg); err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the bot with: tgforge start")
	fmt.Printf("  3. Or specify custom config: tgforge start --config %s\n", configPath)
	if cfg.Bot.Token == "" {
		fmt.Println("\nNo bot token was set. Export it before starting:")
		fmt.Println("  export TGFORGE_BOT_TOKEN=123456:ABC...")
	}

	return nil
}

// askConfig fills the config interactively. Secrets may be left empty
// and provided via environment variables instead.
func askConfig(cfg *config.Config) error {
	name, err := prompt.Input("Bot name", cfg.Bot.Name)
	if err != nil {
		return err
	}
	cfg.Bot.Name = name

	token, err := prompt.Secret("Bot token (empty to use TGFORGE_BOT_TOKEN)")
	if err != nil {
		return err
	}
	cfg.Bot.Token = token

	dbType, err := prompt.SelectString("Database", []string{"sqlite", "postgres"})
	if err != nil {
		return err
	}
	cfg.Database.Type = store.DatabaseType(dbType)
	if cfg.Database.Type == store.DatabaseTypePostgres {
		cfg.Database.Postgres.Host, err = prompt.Input("PostgreSQL host", "localhost")
		if err != nil {
			return err
		}
		cfg.Database.Postgres.Database, err = prompt.InputRequired("PostgreSQL database")
		if err != nil {
			return err
		}
		cfg.Database.Postgres.User, err = prompt.InputRequired("PostgreSQL user")
		if err != nil {
			return err
		}
		cfg.Database.Postgres.Password, err = prompt.Secret("PostgreSQL password")
		if err != nil {
			return err
		}
	}

	wantSupport, err := prompt.Confirm("Enable support escalation channel", false)
	if err != nil {
		return err
	}
	if wantSupport {
		cfg.Support.Token, err = prompt.Secret("Support bot token")
		if err != nil {
			return err
		}
		cfg.Support.ChatID, err = prompt.InputInt64("Support chat ID")
		if err != nil {
			return err
		}
	}

	wantAI, err := prompt.Confirm("Enable AI replies (OpenRouter)", false)
	if err != nil {
		return err
	}
	if wantAI {
		cfg.AI.APIKey, err = prompt.Secret("API key (empty to use TGFORGE_AI_API_KEY)")
		if err != nil {
			return err
		}
	}

	cfg.Database.ApplyDefaults()
	return nil
}
