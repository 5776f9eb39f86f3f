package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/tables"
)

func newTablesCommand(opts *rootOptions) *cobra.Command {
	var (
		path     string
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Print or validate the reference tables",
		Long: `Print the effective reference tables as YAML. With --validate, load the
tables, compile every fraud factor condition and report the result instead.

The tables file comes from --path, then tables.path in the configuration,
then the embedded defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Tables.Path
			}

			t, err := tables.Load(path)
			if err != nil {
				return err
			}

			if validate {
				engine, err := rules.NewEngineFromTables(t, 1)
				if err != nil {
					return fmt.Errorf("compile fraud factors: %w", err)
				}
				source := path
				if source == "" {
					source = "embedded defaults"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tables valid: %s (version %s, %d fraud factors, %d risk levels)\n",
					source, t.Version, engine.RulesCount(), len(t.Underwriting.RiskLevels))
				return nil
			}

			data, err := t.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "tables file to read instead of the configured one")
	cmd.Flags().BoolVar(&validate, "validate", false, "validate instead of printing")
	return cmd
}
