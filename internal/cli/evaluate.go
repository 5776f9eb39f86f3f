package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/tables"
)

func newEvaluateCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a single request through a pipeline and print the decision",
		Long: `Evaluate one JSON request offline. Policy facts come from the static
provider, so no database, cache or bus is needed.

  kestrel evaluate claim -f claim.json
  kestrel evaluate fraud -f - < fraud.json`,
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "-", "request JSON file, - for stdin")

	run := func(evaluate func(ctx context.Context, p *pipelines, in io.Reader) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging, cmd.ErrOrStderr())

			t, err := tables.Load(cfg.Tables.Path)
			if err != nil {
				return err
			}
			provider := policy.NewStaticProvider(decimal.NewFromFloat(cfg.Policy.CoverageCeiling))
			p, err := newPipelines(t, provider, domain.NopRecorder{})
			if err != nil {
				return err
			}

			in, closeIn, err := openInput(cmd, file)
			if err != nil {
				return err
			}
			defer closeIn()

			decision, err := evaluate(cmd.Context(), p, in)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "claim",
			Short: "Process a claim",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, p *pipelines, in io.Reader) (any, error) {
				var req domain.ClaimRequest
				if err := decodeRequest(in, &req); err != nil {
					return nil, err
				}
				return p.claims.ProcessClaim(ctx, &req), nil
			}),
		},
		&cobra.Command{
			Use:   "fraud",
			Short: "Score a claim for fraud risk",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, p *pipelines, in io.Reader) (any, error) {
				var req domain.FraudCheckRequest
				if err := decodeRequest(in, &req); err != nil {
					return nil, err
				}
				return p.fraud.DetectFraud(ctx, &req)
			}),
		},
		&cobra.Command{
			Use:   "underwriting",
			Short: "Assess underwriting risk",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, p *pipelines, in io.Reader) (any, error) {
				var req domain.UnderwritingRequest
				if err := decodeRequest(in, &req); err != nil {
					return nil, err
				}
				return p.underwriting.AssessRisk(ctx, &req)
			}),
		},
	)
	return cmd
}

func openInput(cmd *cobra.Command, file string) (io.Reader, func(), error) {
	if file == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("open request: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func decodeRequest(in io.Reader, req interface{ Validate() error }) error {
	if err := json.NewDecoder(in).Decode(req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return req.Validate()
}
