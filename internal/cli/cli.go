package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"d88-localizer/internal/basic"
	"d88-localizer/internal/catalog"
	"d88-localizer/internal/config"
	"d88-localizer/internal/disk"
	"d88-localizer/internal/logging"
	"d88-localizer/internal/plan"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the CLI application.
func Execute() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

// env carries the configuration and the persistent flags to the commands.
type env struct {
	cfg      *config.Config
	planFile string
	csvDir   string
	logLevel string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	e := &env{cfg: cfg}

	rootCmd := &cobra.Command{
		Use:   "d88-localizer",
		Short: "Localization tool for N88-BASIC games on D88 disk images",
		Long: `Extracts the Japanese text of an N88-BASIC program stored on a PC-88 D88
disk image into CSV catalogues, and rebuilds the disk with the translated
program installed in place of the original.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(e.logLevel)
			if !e.cfg.DotEnv {
				log.Debug().Msg("No .env file found, using environment variables")
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&e.planFile, "plan", cfg.PlanFile, "Build plan file")
	rootCmd.PersistentFlags().StringVar(&e.csvDir, "csv-dir", cfg.CSVDir, "Directory holding the translation catalogues")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")

	rootCmd.AddCommand(infoCmd(e))
	rootCmd.AddCommand(extractCmd(e))
	rootCmd.AddCommand(catalogCmd(e))
	rootCmd.AddCommand(scanCmd(e))
	rootCmd.AddCommand(buildCmd(e))
	rootCmd.AddCommand(pushCmd(e))
	rootCmd.AddCommand(planCmd(e))

	return rootCmd
}

func (e *env) loadPlan() (*plan.Plan, error) {
	p, err := plan.Load(e.planFile)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return p, nil
}

// loadImage reads an image and applies the plan's chain terminator.
func loadImage(path string, p *plan.Plan) (*disk.Image, error) {
	img, err := disk.Load(path)
	if err != nil {
		return nil, err
	}
	img.Chain.SetTerminator(byte(p.Terminator))
	return img, nil
}

// loadProgram extracts and decodes the BASIC program in entry.
func loadProgram(img *disk.Image, entry int) (*basic.Program, error) {
	raw, err := img.ExtractFile(entry)
	if err != nil {
		return nil, fmt.Errorf("extract program: %w", err)
	}
	prog, err := basic.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	log.Info().Int("entry", entry).Int("bytes", len(raw)).Int("lines", len(prog.Lines)).Msg("Decoded program")
	return prog, nil
}

var kinds = []catalog.Kind{catalog.Game, catalog.Misc}

func (e *env) catalogPath(k catalog.Kind) string {
	return filepath.Join(e.csvDir, k.FileName())
}

// loadTables reads both catalogues.
func (e *env) loadTables() (map[catalog.Kind]catalog.Table, error) {
	tables := make(map[catalog.Kind]catalog.Table, len(kinds))
	for _, k := range kinds {
		t, err := catalog.LoadTable(e.catalogPath(k))
		if err != nil {
			return nil, fmt.Errorf("load %s catalogue: %w", k, err)
		}
		tables[k] = t
	}
	return tables, nil
}

// writeCatalogs regenerates both catalogues from prog, keeping the
// translations already in them.
func (e *env) writeCatalogs(prog *basic.Program) error {
	tables, err := e.loadTables()
	if err != nil {
		return err
	}
	for _, k := range kinds {
		if err := catalog.WriteCSV(e.catalogPath(k), catalog.Entries(prog, k), tables[k]); err != nil {
			return fmt.Errorf("write %s catalogue: %w", k, err)
		}
	}
	return nil
}

// setupContext creates a cancellable context with signal handling.
func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			log.Warn().Msg("Received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
