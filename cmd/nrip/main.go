// Command nrip runs the toolbox workflows from the command line.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	nrip "github.com/siorconsulting/nrip-jamaica-open-source"
	"github.com/siorconsulting/nrip-jamaica-open-source/internal/config"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("nrip: .env file not loaded", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds the state shared by every subcommand: global flags, loaded
// configuration and the lazily built toolbox.
type app struct {
	configPath string
	workDir    string
	verbose    bool
	onFailure  string

	stdout io.Writer
	stderr io.Writer

	cfg    *config.Config
	logger *slog.Logger
	ledger *sql.DB
	tb     *nrip.Toolbox

	// engine replaces WhiteboxTools when set.
	engine geoproc.Engine
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nrip",
		Short:         "Geospatial workflows over WhiteboxTools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default nrip.toml if present)")
	pf.StringVar(&a.workDir, "wd", "", "working directory for inputs and outputs")
	pf.BoolVar(&a.verbose, "verbose", false, "print WhiteboxTools progress")
	pf.StringVar(&a.onFailure, "on-failure", "", "keep or cleanup intermediates when a step fails")

	root.AddCommand(
		a.hydroCmd(),
		a.floodHazardCmd(),
		a.steepCmd(),
		a.clipCmd(),
		a.inundationCmd(),
		a.inundationBetweenCmd(),
		a.surfaceCmd("distance", "Euclidean distance surface from features or a raster"),
		a.surfaceCmd("hotspots", "Gaussian density surface from features or a raster"),
		a.zonalCmd(),
		a.intersectCmd(),
		a.interpolateCmd(),
		a.summarizeCmd(),
		a.runsCmd(),
		a.batchCmd(),
	)
	return root
}

// setup loads configuration and applies the global flags on top of it.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.workDir != "" {
		cfg.WorkingDir = a.workDir
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = a.verbose
	}
	if a.onFailure != "" {
		if _, err := api.ParseFailurePolicy(a.onFailure); err != nil {
			return err
		}
		cfg.OnFailure = a.onFailure
	}
	a.cfg = cfg
	a.logger = cfg.Logging.NewLogger(a.stderr)
	return nil
}

// toolbox builds the toolbox on first use so commands that never run a
// workflow do not need the engine binary.
func (a *app) toolbox() (*nrip.Toolbox, error) {
	if a.tb != nil {
		return a.tb, nil
	}

	opts := []nrip.Option{
		nrip.WithWorkingDir(a.cfg.WorkingDir),
		nrip.WithVerbose(a.cfg.Verbose),
		nrip.WithLogger(a.logger),
		nrip.WithObserver(nrip.NewLoggingObserver(a.logger)),
		nrip.WithFailurePolicy(a.cfg.FailurePolicy()),
		nrip.WithCellSize(a.cfg.Whitebox.CellSize),
	}
	if a.engine != nil {
		opts = append(opts, nrip.WithEngine(a.engine))
	} else if a.cfg.Whitebox.Path != "" {
		opts = append(opts, nrip.WithWhiteboxBinary(a.cfg.Whitebox.Path))
	}
	if a.cfg.Ledger.Path != "" {
		dsn := a.cfg.Ledger.Path
		if !strings.Contains(dsn, "?") {
			// batch children share the file
			dsn += "?_pragma=busy_timeout(5000)"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.ledger = db
		opts = append(opts, nrip.WithSQLiteLedger(db))
	}

	tb, err := nrip.New(opts...)
	if err != nil {
		return nil, err
	}
	a.tb = tb
	return tb, nil
}

func (a *app) close() error {
	if a.ledger == nil {
		return nil
	}
	err := a.ledger.Close()
	a.ledger = nil
	return err
}
