package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"d88-localizer/internal/filewalker"
	"d88-localizer/internal/scanner"
	"d88-localizer/internal/store"
	"d88-localizer/internal/worker"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(12)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	programStyle = cellStyle.Foreground(lipgloss.Color("10"))
)

func infoCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Show the directory and block chains of a disk image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(e, cmd.OutOrStdout(), args[0])
		},
	}
}

func runInfo(e *env, out io.Writer, path string) error {
	p, err := e.loadPlan()
	if err != nil {
		return err
	}
	img, err := loadImage(path, p)
	if err != nil {
		return err
	}

	tracks := 0
	for _, addr := range img.Tracks {
		if addr != 0 {
			tracks++
		}
	}

	fmt.Fprintln(out, headingStyle.Render("Disk image"))
	fmt.Fprintln(out, labelStyle.Render("Path")+path)
	fmt.Fprintln(out, labelStyle.Render("Size")+strconv.Itoa(len(img.Bytes())))
	fmt.Fprintln(out, labelStyle.Render("Tracks")+strconv.Itoa(tracks))
	fmt.Fprintln(out)
	fmt.Fprintln(out, headingStyle.Render("Directory"))

	var rows [][]string
	programRow := -1
	for _, entry := range img.Dir.Entries() {
		if !entry.Used() {
			continue
		}
		blocks := "-"
		capacity := "-"
		if chain, err := img.Chain.Walk(entry.Start); err == nil {
			blocks = fmt.Sprintf("% x", chain)
			if n, err := img.Capacity(entry.Index); err == nil {
				capacity = strconv.Itoa(n)
			}
		} else {
			log.Warn().Err(err).Int("entry", entry.Index).Msg("Broken block chain")
		}
		if entry.Index == p.Entry {
			programRow = len(rows)
		}
		rows = append(rows, []string{
			strconv.Itoa(entry.Index),
			entry.Title(),
			fmt.Sprintf("%q", entry.Name()),
			fmt.Sprintf("%02x", entry.Start),
			strconv.Itoa(entry.Length),
			capacity,
			blocks,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "Title", "Name", "Start", "Length", "Capacity", "Blocks").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch row {
			case table.HeaderRow:
				return headerStyle
			case programRow:
				return programStyle
			}
			return cellStyle
		})
	fmt.Fprintln(out, t.Render())
	return nil
}

func extractCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <image> <output>",
		Short: "Copy a file out of a disk image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, _ := cmd.Flags().GetInt("entry")
			return runExtract(e, args[0], args[1], entry)
		},
	}

	cmd.Flags().Int("entry", -1, "Directory entry to extract (default: the plan's program entry)")

	return cmd
}

func runExtract(e *env, path, output string, entry int) error {
	p, err := e.loadPlan()
	if err != nil {
		return err
	}
	if entry < 0 {
		entry = p.Entry
	}
	img, err := loadImage(path, p)
	if err != nil {
		return err
	}

	data, err := img.ExtractFile(entry)
	if err != nil {
		return fmt.Errorf("extract entry %d: %w", entry, err)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	log.Info().Int("entry", entry).Int("bytes", len(data)).Str("path", output).Msg("Extracted file")
	return nil
}

func catalogCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <image>",
		Short: "Write the program's text to the CSV catalogues",
		Long: `Decodes the BASIC program and writes one row per quoted string to
gametext.csv and one row per DATA field to misctext.csv. Translations
already present in the catalogues are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(e, args[0])
		},
	}
}

func runCatalog(e *env, path string) error {
	p, err := e.loadPlan()
	if err != nil {
		return err
	}
	img, err := loadImage(path, p)
	if err != nil {
		return err
	}
	prog, err := loadProgram(img, p.Entry)
	if err != nil {
		return err
	}
	return e.writeCatalogs(prog)
}

func scanCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <image-or-dir>...",
		Short: "Find Japanese text in the program of one or more disk images",
		Long: `Scans the raw bytes of the program file for quoted text after PRINT
statements and, given a table offset, for DATA fields. Directories are
searched for .d88 images, which are scanned concurrently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, _ := cmd.Flags().GetInt("offset")
			entry, _ := cmd.Flags().GetInt("entry")
			all, _ := cmd.Flags().GetBool("all")
			return runScan(e, cmd.OutOrStdout(), args, entry, offset, all)
		},
	}

	cmd.Flags().Int("entry", -1, "Directory entry to scan (default: the plan's program entry)")
	cmd.Flags().Bool("all", false, "Also list text without kana or kanji")
	cmd.Flags().Int("offset", -1, "Offset of the DATA table in the program, 0 to skip it (default: the plan's data_offset)")

	return cmd
}

func runScan(e *env, out io.Writer, paths []string, entry, offset int, all bool) error {
	ctx, cancel := setupContext()
	defer cancel()

	p, err := e.loadPlan()
	if err != nil {
		return err
	}
	if entry < 0 {
		entry = p.Entry
	}
	if offset < 0 {
		offset = p.DataOffset
	}

	images, err := filewalker.NewWalker().Walk(paths...)
	if err != nil {
		return err
	}

	pool := worker.NewPool(e.cfg.WorkerCount, func(_ context.Context, path string) ([]scanner.Text, error) {
		img, err := loadImage(path, p)
		if err != nil {
			return nil, err
		}
		buf, err := img.ExtractFile(entry)
		if err != nil {
			return nil, fmt.Errorf("extract entry %d: %w", entry, err)
		}
		texts := scanner.Scan(buf, offset)
		if !all {
			texts = scanner.JapaneseOnly(texts)
		}
		return texts, nil
	})

	tasks := pool.Execute(ctx, images)

	found := 0
	for _, task := range tasks {
		if task.Err != nil {
			continue
		}
		for _, t := range task.Result {
			fmt.Fprintf(out, "%s\t%d\t%d\t%s\t%s\n", task.Input, t.Span.Begin, t.Span.End, t.Kind, t.Value)
		}
		found += len(task.Result)
	}

	log.Info().Int("images", len(images)).Int("texts", found).Msg("Scan complete")
	return worker.Errors(tasks)
}

func pushCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload the translated catalogue rows to the translation memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(e)
		},
	}
}

var errNoDatabase = errors.New("DATABASE_URL is not set")

func runPush(e *env) error {
	ctx, cancel := setupContext()
	defer cancel()

	if e.cfg.DatabaseURL == "" {
		return errNoDatabase
	}

	tables, err := e.loadTables()
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	total := 0
	for _, k := range kinds {
		n, err := s.Upsert(ctx, k, tables[k])
		if err != nil {
			return fmt.Errorf("push %s catalogue: %w", k, err)
		}
		total += n
	}

	log.Info().Int("written", total).Msg("Push complete")
	return nil
}

func planCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the effective build plan as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(e, cmd.OutOrStdout())
		},
	}
}

func runPlan(e *env, out io.Writer) error {
	p, err := e.loadPlan()
	if err != nil {
		return err
	}
	data, err := p.ToYAML()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
