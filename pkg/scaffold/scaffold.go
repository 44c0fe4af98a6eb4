// Package scaffold generates new bot project directories from embedded
// templates. A generated project contains everything 'tgforge start'
// needs: a config file, the initial schema migration, and message
// catalogs for the selected languages.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

//go:embed templates
var templates embed.FS

// Options controls what 'tgforge new' generates.
type Options struct {
	// Dir is the target directory. It must not already contain a config file.
	Dir string

	// Name is the human-readable bot name.
	Name string

	// Description is shown by the /help command.
	Description string

	// Token is the bot token to embed in the config. Usually left empty
	// in favor of the TGFORGE_BOT_TOKEN environment variable.
	Token string

	// DatabaseType is "sqlite" or "postgres".
	DatabaseType string

	// Languages lists the catalog languages to generate. The first entry
	// becomes the default language.
	Languages []string

	// EnableSupport includes a support bot section in the config.
	EnableSupport bool

	// EnableAI includes an AI provider section in the config.
	EnableAI bool
}

var packageNamePattern = regexp.MustCompile(`[^a-z0-9_]+`)

// PackageName derives an identifier-safe name from the bot name,
// usable as a database name or directory name.
func PackageName(name string) string {
	cleaned := packageNamePattern.ReplaceAllString(strings.ToLower(name), "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "bot"
	}
	return cleaned
}

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = "my bot"
	}
	if o.DatabaseType == "" {
		o.DatabaseType = "sqlite"
	}
	if len(o.Languages) == 0 {
		o.Languages = []string{"en"}
	}
}

func (o *Options) validate() error {
	if o.Dir == "" {
		return fmt.Errorf("target directory is required")
	}
	if o.DatabaseType != "sqlite" && o.DatabaseType != "postgres" {
		return fmt.Errorf("unsupported database type: %s", o.DatabaseType)
	}
	return nil
}

// templateData is what the config and README templates render with.
type templateData struct {
	Name          string
	Description   string
	Token         string
	PackageName   string
	DatabaseType  string
	Languages     []string
	EnableSupport bool
	EnableAI      bool
}

// Generate writes a new project directory. It fails if the target
// already contains a config.yaml, so an existing project is never
// overwritten.
func Generate(opts Options) error {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return err
	}

	configPath := filepath.Join(opts.Dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite", configPath)
	}

	for _, dir := range []string{opts.Dir, filepath.Join(opts.Dir, "migrations"), filepath.Join(opts.Dir, "locales")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	data := templateData{
		Name:          opts.Name,
		Description:   opts.Description,
		Token:         opts.Token,
		PackageName:   PackageName(opts.Name),
		DatabaseType:  opts.DatabaseType,
		Languages:     opts.Languages,
		EnableSupport: opts.EnableSupport,
		EnableAI:      opts.EnableAI,
	}

	if err := renderTemplate("config.yaml.tmpl", configPath, data, 0600); err != nil {
		return err
	}
	if err := renderTemplate("README.md.tmpl", filepath.Join(opts.Dir, "README.md"), data, 0644); err != nil {
		return err
	}
	if err := renderTemplate("gitignore.tmpl", filepath.Join(opts.Dir, ".gitignore"), data, 0644); err != nil {
		return err
	}

	for _, script := range []string{"0001_create_users.up.sql", "0001_create_users.down.sql"} {
		if err := copyAsset(script, filepath.Join(opts.Dir, "migrations", script)); err != nil {
			return err
		}
	}

	for _, lang := range opts.Languages {
		if err := writeCatalog(opts.Dir, lang); err != nil {
			return err
		}
	}

	return nil
}

// writeCatalog emits the catalog for one language. Languages without a
// bundled translation start from a copy of the English catalog.
func writeCatalog(dir, lang string) error {
	asset := "locale_" + lang + ".yaml"
	if _, err := templates.ReadFile("templates/" + asset); err != nil {
		asset = "locale_en.yaml"
	}
	return copyAsset(asset, filepath.Join(dir, "locales", lang+".yaml"))
}

func renderTemplate(name, dest string, data templateData, perm os.FileMode) error {
	tmpl, err := template.ParseFS(templates, "templates/"+name)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	if err := os.WriteFile(dest, buf.Bytes(), perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func copyAsset(name, dest string) error {
	content, err := templates.ReadFile("templates/" + name)
	if err != nil {
		return fmt.Errorf("missing embedded asset %s: %w", name, err)
	}
	if err := os.WriteFile(dest, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
