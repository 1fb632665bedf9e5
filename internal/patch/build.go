package patch

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"d88-localizer/internal/basic"
	"d88-localizer/internal/catalog"
	"d88-localizer/internal/disk"
)

// Options selects the edits Apply performs.
type Options struct {
	// GameEdits enables the Dragon & Princess line edits and fixups.
	GameEdits bool
	EasyMode  bool
	Wrap      WrapPolicy
}

// Apply runs the edit pipeline on prog: game edits, translations, MID$
// fixups and string wrapping, in that order.
func Apply(prog *basic.Program, game, misc catalog.Table, opts Options) (Stats, error) {
	if opts.GameEdits {
		if err := DragonEdits(prog, opts.EasyMode); err != nil {
			return Stats{}, err
		}
	}

	st := ApplyTranslations(prog, game, misc)

	if opts.GameEdits {
		if err := DragonFixups(prog); err != nil {
			return st, err
		}
	}

	WrapLongStrings(prog, opts.Wrap)
	return st, nil
}

// Target says where a rebuilt program goes on the disk.
type Target struct {
	// Entry is the directory index of the program file.
	Entry int
	// Name replaces the entry's short name when set.
	Name []byte
	// RemoveStart and RemoveCount drop directory entries whose blocks are
	// free to donate.
	RemoveStart int
	RemoveCount int
	// Donors are appended to the program's block chain as needed.
	Donors []byte
}

// Install writes program into the target entry, growing its block chain with
// donor blocks when it no longer fits, and patches the directory. The image
// bytes are only written once every check has passed; on error the tables in
// memory may be modified and the image must not be saved.
func Install(img *disk.Image, t Target, program []byte) error {
	e, err := img.Dir.Entry(t.Entry)
	if err != nil {
		return fmt.Errorf("install program: %w", err)
	}
	if err := checkDonors(img, t); err != nil {
		return fmt.Errorf("install program: %w", err)
	}

	if t.RemoveCount > 0 {
		end := t.RemoveStart + t.RemoveCount
		if t.RemoveStart < 0 || end > disk.EntryCount {
			return fmt.Errorf("%w: remove %d entries at %d", disk.ErrOutOfRange, t.RemoveCount, t.RemoveStart)
		}
		if t.Entry >= t.RemoveStart && t.Entry < end {
			return fmt.Errorf("%w: entry %d is among the removed entries", disk.ErrOutOfRange, t.Entry)
		}
	}

	if err := img.Dir.SetLength(t.Entry, len(program)); err != nil {
		return fmt.Errorf("set program length: %w", err)
	}
	if len(t.Name) > 0 {
		if err := img.Dir.SetName(t.Entry, t.Name); err != nil {
			return fmt.Errorf("set program name: %w", err)
		}
	}

	used, err := img.Chain.Grow(e.Start, len(program), t.Donors)
	if err != nil {
		return fmt.Errorf("grow block chain: %w", err)
	}
	if len(used) > 0 {
		log.Info().Str("blocks", fmt.Sprintf("% x", used)).Msg("Extended program block chain")
	}

	// The entry index may shift once entries are removed, so write first.
	if err := img.WriteFile(t.Entry, program); err != nil {
		return fmt.Errorf("write program: %w", err)
	}
	if t.RemoveCount > 0 {
		if err := img.Dir.Remove(t.RemoveStart, t.RemoveCount); err != nil {
			return fmt.Errorf("remove directory entries: %w", err)
		}
	}

	img.Commit()
	log.Info().
		Int("entry", t.Entry).
		Int("bytes", len(program)).
		Int("removed", t.RemoveCount).
		Msg("Installed program")
	return nil
}

// checkDonors refuses donor blocks still used by an entry that stays in the
// directory.
func checkDonors(img *disk.Image, t Target) error {
	for _, e := range img.Dir.Entries() {
		if !e.Used() || e.Index == t.Entry {
			continue
		}
		if e.Index >= t.RemoveStart && e.Index < t.RemoveStart+t.RemoveCount {
			continue
		}
		blocks, err := img.Chain.Walk(e.Start)
		if err != nil {
			log.Debug().Err(err).Int("entry", e.Index).Msg("Skipped unreadable chain")
			continue
		}
		for _, d := range t.Donors {
			if slices.Contains(blocks, d) {
				return fmt.Errorf("%w: donor block 0x%02x belongs to entry %d", disk.ErrFormat, d, e.Index)
			}
		}
	}
	return nil
}
