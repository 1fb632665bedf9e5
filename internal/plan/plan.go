// Package plan reads the build plan: which directory entry holds the program,
// how the directory and block chain are patched and how strings are wrapped.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"d88-localizer/internal/disk"
	"d88-localizer/internal/patch"
)

// Plan is the YAML build plan.
type Plan struct {
	// Entry is the directory index of the BASIC program.
	Entry int `yaml:"entry"`
	// Name replaces the entry's 2-byte short name. Empty keeps it.
	Name string `yaml:"name"`
	// Remove drops directory entries whose blocks become donors.
	Remove Range `yaml:"remove"`
	// Donors are free blocks the program's chain may grow into, in order.
	Donors []int `yaml:"donors"`
	// Terminator is the lowest block chain value that ends a chain.
	Terminator int `yaml:"terminator"`
	// GameEdits enables the Dragon & Princess line edits.
	GameEdits bool `yaml:"game_edits"`
	Wrap      Wrap `yaml:"wrap"`
	// DataOffset is where the scanner finds the DATA table in the program.
	// Zero disables the DATA table scan.
	DataOffset int `yaml:"data_offset"`
}

// Range is a run of directory entries.
type Range struct {
	Start int `yaml:"start"`
	Count int `yaml:"count"`
}

// Wrap configures string wrapping.
type Wrap struct {
	Width     int        `yaml:"width"`
	Overrides []Override `yaml:"overrides"`
	Skip      []int      `yaml:"skip"`
}

// Override narrows the wrap width of one string token.
type Override struct {
	Line  int `yaml:"line"`
	Token int `yaml:"token"`
	Width int `yaml:"width"`
}

// ErrInvalid is returned for a plan that cannot be applied.
var ErrInvalid = errors.New("invalid plan")

// Default returns the plan for the Dragon & Princess disk.
func Default() *Plan {
	p := &Plan{
		Entry:      11,
		Name:       "EN",
		Remove:     Range{Start: 17, Count: 3},
		Donors:     []int{0x83, 0x84},
		Terminator: disk.DefaultTerminator,
		GameEdits:  true,
		Wrap:       Wrap{Width: patch.DefaultWrapWidth},
	}
	for _, o := range patch.DragonWrapOverrides {
		p.Wrap.Overrides = append(p.Wrap.Overrides, Override{Line: int(o.Line), Token: o.Token, Width: o.Width})
	}
	for _, l := range patch.DragonWrapSkip {
		p.Wrap.Skip = append(p.Wrap.Skip, int(l))
	}
	return p
}

// Load reads a plan file. Fields the file leaves out keep their default; a
// missing file yields Default.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("No plan file, using defaults")
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	p, err := FromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// FromYAML parses a plan on top of the defaults and validates it.
func FromYAML(data []byte) (*Plan, error) {
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ToYAML serializes the plan.
func (p *Plan) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks ranges against the disk layout.
func (p *Plan) Validate() error {
	if p.Entry < 0 || p.Entry >= disk.EntryCount {
		return fmt.Errorf("%w: entry %d outside 0..%d", ErrInvalid, p.Entry, disk.EntryCount-1)
	}
	if p.Name != "" && len(p.Name) != disk.EntryNameSize {
		return fmt.Errorf("%w: name %q must be %d bytes", ErrInvalid, p.Name, disk.EntryNameSize)
	}
	if p.Remove.Start < 0 || p.Remove.Count < 0 || p.Remove.Start+p.Remove.Count > disk.EntryCount {
		return fmt.Errorf("%w: remove %d entries at %d", ErrInvalid, p.Remove.Count, p.Remove.Start)
	}
	if p.Terminator <= 0 || p.Terminator > 0xFF {
		return fmt.Errorf("%w: terminator 0x%x", ErrInvalid, p.Terminator)
	}
	for i, d := range p.Donors {
		if d < 0 || d >= p.Terminator {
			return fmt.Errorf("%w: donor block 0x%x is not below the terminator", ErrInvalid, d)
		}
		if slices.Contains(p.Donors[:i], d) {
			return fmt.Errorf("%w: donor block 0x%x is listed twice", ErrInvalid, d)
		}
	}
	if p.Wrap.Width < 0 {
		return fmt.Errorf("%w: wrap width %d", ErrInvalid, p.Wrap.Width)
	}
	if p.DataOffset < 0 {
		return fmt.Errorf("%w: data offset %d", ErrInvalid, p.DataOffset)
	}
	return nil
}

// Target returns where the rebuilt program is installed.
func (p *Plan) Target() patch.Target {
	t := patch.Target{
		Entry:       p.Entry,
		RemoveStart: p.Remove.Start,
		RemoveCount: p.Remove.Count,
	}
	if p.Name != "" {
		t.Name = []byte(p.Name)
	}
	for _, d := range p.Donors {
		t.Donors = append(t.Donors, byte(d))
	}
	return t
}

// Options returns the edit pipeline options.
func (p *Plan) Options(easy bool) patch.Options {
	w := patch.WrapPolicy{Width: p.Wrap.Width}
	for _, o := range p.Wrap.Overrides {
		w.Overrides = append(w.Overrides, patch.WrapOverride{Line: uint16(o.Line), Token: o.Token, Width: o.Width})
	}
	for _, l := range p.Wrap.Skip {
		w.Skip = append(w.Skip, uint16(l))
	}
	return patch.Options{GameEdits: p.GameEdits, EasyMode: easy, Wrap: w}
}
