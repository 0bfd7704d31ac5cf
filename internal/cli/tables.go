package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/tables"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var tablesFormat string

// tablesCmd represents the tables command
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Inspect and validate reference tables",
	Long: `Reference tables hold every era, culture and status pattern, the birth
year ranges and the biography lexicons. They are versioned documents in
YAML, JSON or TOML; the default set is embedded in the binary.`,
}

var tablesShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print a reference tables document",
	Long:  `Print the embedded default tables, or the document at path, in yaml, json or toml.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTablesArg(args)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s\n\n", t)

		switch tables.Format(tablesFormat) {
		case tables.FormatYAML:
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(t)
		case tables.FormatJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		case tables.FormatTOML:
			return toml.NewEncoder(os.Stdout).Encode(t)
		default:
			return errors.Newf("unknown format %q (use yaml, json or toml)", tablesFormat)
		}
	},
}

var tablesValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a reference tables document",
	Long: `Validate loads a tables document (structural errors are fatal) and lints its
entries: unknown or conflicting poles, empty patterns, duplicate labels and
short keywords. Entries with issues still load, but the extractor that reaches
one records a fault.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTablesArg(args)
		if err != nil {
			return err
		}

		issues := t.Lint()
		if len(issues) == 0 {
			fmt.Printf("✓ %s: no issues\n", t)
			return nil
		}

		for _, issue := range issues {
			fmt.Printf("✗ %s\n", issue)
		}
		return errors.Newf("%s: %d issue(s)", t.ID(), len(issues))
	},
}

func loadTablesArg(args []string) (*tables.Tables, error) {
	path := cfg.Tables.Path
	if len(args) == 1 {
		path = args[0]
	}
	return tables.Load(path)
}

func init() {
	rootCmd.AddCommand(tablesCmd)
	tablesCmd.AddCommand(tablesShowCmd)
	tablesCmd.AddCommand(tablesValidateCmd)

	tablesShowCmd.Flags().StringVar(&tablesFormat, "format", "yaml", "output format (yaml, json, toml)")
}
