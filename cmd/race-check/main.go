// Command race-check hammers the match detector with concurrent reciprocal
// likes against the configured database and fails if any pair ends up with
// more or fewer than one match.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/tandem/internal/adapters/repository"
	service "github.com/okian/tandem/internal/app"
	"github.com/okian/tandem/internal/config"
	"github.com/okian/tandem/internal/racecheck"
	"github.com/okian/tandem/pkg/logger"
)

const (
	defaultPairs   = 100
	defaultPerSide = 4
	defaultTimeout = 5 * time.Minute

	logFilePermission = 0600
)

type options struct {
	pairs   int
	perSide int
	prefix  string
	driver  string
	dsn     string
	output  string
	logFile string
	timeout time.Duration
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("race check failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "race-check",
		Short: "Verify that concurrent reciprocal likes form exactly one match",
		Long: `Seed pairs of profiles, fire likes from both sides of every pair at the
same time and check that each pair holds exactly one active match.

Database settings come from the usual TANDEM_ configuration and can be
overridden with --driver and --dsn.

Example:
  race-check --pairs 500 --per-side 8
  race-check --driver postgres --dsn "postgres://localhost/tandem" --output report.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.pairs, "pairs", defaultPairs, "number of profile pairs")
	cmd.Flags().IntVar(&opts.perSide, "per-side", defaultPerSide, "concurrent likes sent from each side of a pair")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "profile id prefix (default: timestamp based)")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "database driver override (sqlite|postgres)")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "database DSN override")
	cmd.Flags().StringVar(&opts.output, "output", "", "write the JSON report to this file")
	cmd.Flags().StringVar(&opts.logFile, "log", "", "also append logs to this file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall run timeout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every failed request")
	return cmd
}

func run(ctx context.Context, opts *options, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.driver != "" {
		cfg.DBDriver = opts.driver
	}
	if opts.dsn != "" {
		cfg.DBDSN = opts.dsn
	}

	out := stdout
	if opts.logFile != "" {
		file, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = file.Close() }()
		out = io.MultiWriter(stdout, file)
	}
	if err := logger.InitWithWriter(out, logger.Format(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	db, err := repository.Open(cfg.DBDriver, cfg.DBDSN,
		repository.WithMaxOpenConns(cfg.DBMaxOpenConns),
		repository.WithLogger(log.Named("db")),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = repository.Close(db) }()
	if err := repository.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	svc := service.New(db, service.WithLogger(log.Named("service")))
	_, err = racecheck.Run(ctx, svc, racecheck.Config{
		Pairs:      opts.pairs,
		PerSide:    opts.perSide,
		Prefix:     opts.prefix,
		OutputFile: opts.output,
		Verbose:    opts.verbose,
		Logger:     log.Named("racecheck"),
	})
	return err
}
