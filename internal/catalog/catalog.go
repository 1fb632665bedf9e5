// Package catalog lists the translatable text of a program and reads and
// writes the CSV lookup tables translators work in.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"d88-localizer/internal/basic"
	"d88-localizer/internal/textutil"
)

// Kind names one of the two catalogues.
type Kind string

const (
	// Game holds quoted strings.
	Game Kind = "game"
	// Misc holds DATA fields.
	Misc Kind = "misc"
)

// FileName returns the CSV file name for the catalogue.
func (k Kind) FileName() string {
	return string(k) + "text.csv"
}

// Entry is one occurrence of text in the program.
type Entry struct {
	// Line is the BASIC line number.
	Line uint16
	// Index counts the text occurrences before this one on the same line,
	// including occurrences that could not be decoded.
	Index int
	// Text is the decoded original.
	Text string
}

// Table maps original text to the remaining columns of its CSV row. The
// first of those is the translation.
type Table map[string][]string

// Translation returns the translation of text, if one has been filled in.
func (t Table) Translation(text string) (string, bool) {
	row, ok := t[text]
	if !ok || len(row) == 0 || row[0] == "" {
		return "", false
	}
	return row[0], true
}

// Merge copies rows from o whose translation is filled in, replacing rows
// already in t.
func (t Table) Merge(o Table) int {
	n := 0
	for text, row := range o {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		t[text] = row
		n++
	}
	return n
}

// LoadTable reads a catalogue. Rows are [line, index, original, translation,
// extra...]; rows with fewer than three columns are ignored and a later row
// for the same original replaces an earlier one. A missing file yields an
// empty table.
func LoadTable(path string) (Table, error) {
	table := make(Table)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("No catalogue file, starting empty")
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalogue %s: %w", path, err)
		}
		if len(row) <= 2 {
			continue
		}
		table[row[2]] = append([]string{}, row[3:]...)
	}

	log.Debug().Str("path", path).Int("rows", len(table)).Msg("Loaded catalogue")
	return table, nil
}

// WriteCSV writes one row per entry, followed by whatever columns table
// already holds for that text, so regenerating keeps existing translations.
func WriteCSV(path string, entries []Entry, table Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalogue dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create catalogue: %w", err)
	}
	defer f.Close()

	if err := writeRows(f, entries, table); err != nil {
		return fmt.Errorf("write catalogue %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close catalogue: %w", err)
	}

	log.Info().Str("path", path).Int("rows", len(entries)).Msg("Wrote catalogue")
	return nil
}

func writeRows(w io.Writer, entries []Entry, table Table) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		row := []string{strconv.Itoa(int(e.Line)), strconv.Itoa(e.Index), e.Text}
		row = append(row, table[e.Text]...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Strings lists the decodable quoted strings of each line. The index counts
// every quoted token on the line.
func Strings(prog *basic.Program) []Entry {
	var entries []Entry
	for _, line := range prog.Lines {
		index := 0
		for _, tok := range line.Tokens {
			if tok.Op != basic.OpQuote {
				continue
			}
			if text, err := textutil.DecodeSJIS(tok.Content); err == nil {
				entries = append(entries, Entry{Line: line.Number, Index: index, Text: text})
			}
			index++
		}
	}
	return entries
}

// DataFields lists the non-numeric DATA fields of each line. The index counts
// those fields plus any field that could not be decoded.
func DataFields(prog *basic.Program) []Entry {
	var entries []Entry
	for _, line := range prog.Lines {
		index := 0
		for _, tok := range line.Tokens {
			if tok.Op != basic.OpData {
				continue
			}
			for _, field := range tok.Fields {
				text, err := textutil.DecodeSJIS(field)
				if err != nil {
					index++
					continue
				}
				if textutil.IsNumber(text) {
					continue
				}
				entries = append(entries, Entry{Line: line.Number, Index: index, Text: text})
				index++
			}
		}
	}
	return entries
}

// Entries lists the occurrences catalogued under kind.
func Entries(prog *basic.Program, kind Kind) []Entry {
	if kind == Misc {
		return DataFields(prog)
	}
	return Strings(prog)
}
