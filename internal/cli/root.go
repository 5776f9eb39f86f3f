// Package cli implements the kestrel command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

type rootOptions struct {
	configFile string
	debug      bool
}

// NewRootCommand builds the kestrel command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "kestrel",
		Short: "Kestrel - insurance claims, fraud and underwriting decisions",
		Long: `Kestrel evaluates insurance requests against audited reference tables.

Claims are checked for admissibility and routed to approval, review or
rejection. Fraud checks score a claim from weighted risk factors.
Underwriting assessments grade an applicant into a risk tier.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (KESTREL_*)
  3. Config file (--config)
  4. Profile defaults (KESTREL_PROFILE=standalone|cluster)`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(opts, info),
		newEvaluateCommand(opts),
		newTablesCommand(opts),
		newVersionCommand(info),
	)
	return root
}

// Execute runs the kestrel command tree.
func Execute(info BuildInfo) error {
	return NewRootCommand(info).Execute()
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kestrel %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildDate)
		},
	}
}

// loadConfig applies the persistent flags on top of LoadConfig.
func (o *rootOptions) loadConfig() (*domain.Config, error) {
	cfg, err := LoadConfig(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
