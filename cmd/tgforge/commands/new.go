package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgforge/tgforge/internal/cli/prompt"
	"github.com/tgforge/tgforge/pkg/scaffold"
)

var (
	newName      string
	newDatabase  string
	newLanguages []string
	newNoInput   bool
)

var newCmd = &cobra.Command{
	Use:   "new [directory]",
	Short: "Scaffold a new bot project",
	Long: `Scaffold a new bot project directory.

The generated project contains a config file, the initial schema
migration, and message catalogs for the selected languages. Run it with
'tgforge start --config <dir>/config.yaml'.

Examples:
  # Interactive scaffold into ./mybot
  tgforge new mybot

  # Non-interactive scaffold
  tgforge new mybot --name "My Bot" --database postgres --no-input`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNew,
}

func init() {
	newCmd.Flags().StringVar(&newName, "name", "", "Bot name (default: the directory name)")
	newCmd.Flags().StringVar(&newDatabase, "database", "sqlite", "Database type (sqlite|postgres)")
	newCmd.Flags().StringSliceVar(&newLanguages, "languages", []string{"en", "ru"}, "Catalog languages to generate")
	newCmd.Flags().BoolVar(&newNoInput, "no-input", false, "Skip prompts and use flag values")
}

func runNew(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	opts := scaffold.Options{
		Dir:          dir,
		Name:         newName,
		DatabaseType: newDatabase,
		Languages:    newLanguages,
	}
	if opts.Name == "" && dir != "." {
		opts.Name = dir
	}

	if !newNoInput {
		if err := askProject(&opts); err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
	}

	if err := scaffold.Generate(opts); err != nil {
		return err
	}

	fmt.Printf("Project created in %s\n", dir)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. export TGFORGE_BOT_TOKEN=123456:ABC...")
	fmt.Printf("  2. tgforge start --config %s/config.yaml\n", strings.TrimSuffix(dir, "/"))
	return nil
}

func askProject(opts *scaffold.Options) error {
	name, err := prompt.Input("Bot name", opts.Name)
	if err != nil {
		return err
	}
	opts.Name = name

	opts.Description, err = prompt.Input("Description (shown by /help)", "")
	if err != nil {
		return err
	}

	opts.DatabaseType, err = prompt.SelectString("Database", []string{"sqlite", "postgres"})
	if err != nil {
		return err
	}

	opts.EnableSupport, err = prompt.Confirm("Include a support escalation section", false)
	if err != nil {
		return err
	}

	opts.EnableAI, err = prompt.Confirm("Include an AI provider section", false)
	if err != nil {
		return err
	}

	return nil
}
