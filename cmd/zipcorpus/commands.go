package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zipcorpus/zipcorpus/internal/aggregate"
	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/internal/generate"
	"github.com/zipcorpus/zipcorpus/internal/verify"
)

// generateFlags override the generate section of the configuration.
type generateFlags struct {
	archives int
	records  int
	seed     int64
}

func (g *generateFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&g.archives, "archives", 0, "Number of archives to write")
	cmd.Flags().IntVar(&g.records, "records", 0, "Records per archive")
	cmd.Flags().Int64Var(&g.seed, "seed", 0, "Base seed for all random draws")
}

func (g *generateFlags) apply(cmd *cobra.Command, flags *globalFlags) (*session, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("archives") {
		cfg.Generate.ArchiveCount = g.archives
	}
	if cmd.Flags().Changed("records") {
		cfg.Generate.RecordsPerArchive = g.records
	}
	if cmd.Flags().Changed("seed") {
		cfg.Generate.Seed = g.seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return setup(cmd, cfg)
}

func newGenerateCmd(flags *globalFlags) *cobra.Command {
	g := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write numbered zip archives of synthetic records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.apply(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.close()
			return runGenerate(cmd, rt)
		},
	}
	g.register(cmd)
	return cmd
}

func newAggregateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Extract every archive into 1.csv and 2.csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			rt, err := setup(cmd, cfg)
			if err != nil {
				return err
			}
			defer rt.close()
			return runAggregate(cmd, rt)
		},
	}
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	g := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate archives, then aggregate them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.apply(cmd, flags)
			if err != nil {
				return err
			}
			defer rt.close()
			if err := runGenerate(cmd, rt); err != nil {
				return err
			}
			return runAggregate(cmd, rt)
		},
	}
	g.register(cmd)
	return cmd
}

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check archive layout, identifier uniqueness and the run manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			rt, err := setup(cmd, cfg)
			if err != nil {
				return err
			}
			defer rt.close()
			return runVerify(cmd, rt)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zipcorpus version %s (commit: %s)\n", version, commit)
		},
	}
}

func runGenerate(cmd *cobra.Command, rt *session) error {
	opts := []generate.Option{
		generate.WithWorkers(rt.cfg.Workers),
		generate.WithLogger(rt.logger),
	}
	if rt.catalog != nil {
		opts = append(opts, generate.WithCatalog(rt.catalog))
	}
	if rt.publisher != nil {
		opts = append(opts, generate.WithPublisher(rt.publisher))
	}

	g := rt.cfg.Generate
	report, err := generate.NewOrchestrator(g, opts...).
		Generate(cmd.Context(), rt.cfg.DataDir, g.ArchiveCount, g.RecordsPerArchive)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "generated %d archives (%d records) in %s\n",
		len(report.Archives), report.Records, rt.cfg.DataDir)
	if report.Published != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "published %d objects\n", len(report.Published.Keys))
	}
	return nil
}

func runAggregate(cmd *cobra.Command, rt *session) error {
	opts := []aggregate.Option{
		aggregate.WithWorkers(rt.cfg.Workers),
		aggregate.WithOutputDir(rt.cfg.Aggregate.OutputDir),
		aggregate.WithCompression(rt.cfg.Aggregate.CompressResults),
		aggregate.WithLogger(rt.logger),
	}
	if rt.catalog != nil {
		opts = append(opts, aggregate.WithCatalog(rt.catalog))
	}
	if rt.publisher != nil {
		opts = append(opts, aggregate.WithPublisher(rt.publisher))
	}

	report, err := aggregate.NewOrchestrator(opts...).Aggregate(cmd.Context(), rt.cfg.DataDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "aggregated %d archives into %s and %s\n",
		len(report.Archives), report.LevelTable, report.ChildTable)
	if report.Stats.SkippedEntries > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped %d malformed entries\n", report.Stats.SkippedEntries)
	}
	return nil
}

func runVerify(cmd *cobra.Command, rt *session) error {
	opts := []verify.Option{
		verify.WithWorkers(rt.cfg.Workers),
		verify.WithLogger(rt.logger),
	}
	if rt.catalog != nil {
		opts = append(opts, verify.WithCatalog(rt.catalog))
	}

	report, err := verify.NewVerifier(opts...).Verify(cmd.Context(), rt.cfg.DataDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d archives, %d entries, %d unique identifiers\n",
		report.Archives, report.Entries, report.UniqueIDs)
	if report.RunID != "" {
		fmt.Fprintf(out, "checked against run %s\n", report.RunID)
	}
	if report.OK() {
		fmt.Fprintln(out, "OK")
		return nil
	}

	lines := make([]string, len(report.Issues))
	for i, issue := range report.Issues {
		lines[i] = issue.String()
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
	return apperrors.NewValidationError(apperrors.CodeVerifyMismatch,
		fmt.Sprintf("%d verification issues", len(report.Issues)))
}
