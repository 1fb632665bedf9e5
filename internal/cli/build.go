package cli

import (
	"context"
	"fmt"

	"d88-localizer/internal/catalog"
	"d88-localizer/internal/patch"
	"d88-localizer/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	updateCSV bool
	easyMode  bool
	useDB     bool
}

func buildCmd(e *env) *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build <input-image> <output-image>",
		Short: "Write a disk image with the translated program installed",
		Long: `Decodes the BASIC program named by the build plan, applies the game edits
and the catalogue translations, wraps long strings and installs the
re-encoded program, growing its block chain into the plan's donor blocks.
The output image is only written when every step succeeds.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(e, args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.updateCSV, "update-csv", false, "Regenerate the catalogues from the input image first")
	cmd.Flags().BoolVar(&opts.easyMode, "easy-mode", false, "Apply the easy mode edits")
	cmd.Flags().BoolVar(&opts.useDB, "db", false, "Overlay translations from the translation memory")

	return cmd
}

// runBuild handles the `build` command.
func runBuild(e *env, input, output string, opts buildOptions) error {
	ctx, cancel := setupContext()
	defer cancel()

	p, err := e.loadPlan()
	if err != nil {
		return err
	}

	// 1. Load the image and decode the program.
	img, err := loadImage(input, p)
	if err != nil {
		return err
	}
	prog, err := loadProgram(img, p.Entry)
	if err != nil {
		return err
	}

	// 2. Refresh and load the catalogues.
	if opts.updateCSV {
		if err := e.writeCatalogs(prog); err != nil {
			return err
		}
	}
	tables, err := e.loadTables()
	if err != nil {
		return err
	}
	if opts.useDB {
		if err := e.overlayMemory(ctx, tables); err != nil {
			return err
		}
	}

	// 3. Edit, translate and wrap.
	stats, err := patch.Apply(prog, tables[catalog.Game], tables[catalog.Misc], p.Options(opts.easyMode))
	if err != nil {
		return fmt.Errorf("patch program: %w", err)
	}

	// 4. Re-encode and install.
	program, err := prog.Encode()
	if err != nil {
		return fmt.Errorf("encode program: %w", err)
	}
	if err := patch.Install(img, p.Target(), program); err != nil {
		return err
	}
	if err := img.Save(output); err != nil {
		return fmt.Errorf("save image: %w", err)
	}

	log.Info().
		Int("strings", stats.Strings).
		Int("fields", stats.Fields).
		Int("skipped", stats.Skipped).
		Str("output", output).
		Msg("Build complete")
	return nil
}

// overlayMemory replaces catalogue rows with the translations stored in the
// translation memory.
func (e *env) overlayMemory(ctx context.Context, tables map[catalog.Kind]catalog.Table) error {
	if e.cfg.DatabaseURL == "" {
		return errNoDatabase
	}

	s, err := store.Open(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, k := range kinds {
		stored, err := s.Load(ctx, k)
		if err != nil {
			return fmt.Errorf("load %s translations: %w", k, err)
		}
		n := tables[k].Merge(stored)
		log.Info().Str("kind", string(k)).Int("rows", n).Msg("Overlaid stored translations")
	}
	return nil
}
