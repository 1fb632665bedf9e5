package patch

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"d88-localizer/internal/basic"
)

// Game edits for Dragon & Princess. Line numbers and token indices refer to
// the original program on the disk.

// DragonWrapSkip lists the lines whose strings WrapLongStrings must not split.
var DragonWrapSkip = []uint16{570, 1040, 1395, 1610, 1620, 1630, 1650, 1760, 2105, 2200, 5250, 6050, 6115, 6920}

// DragonWrapOverrides narrows the name prompt on line 360.
var DragonWrapOverrides = []WrapOverride{{Line: 360, Token: 4, Width: 20}}

// DefaultNames are the party names read into DN$ at start-up.
var DefaultNames = []string{"Gombe", "Jirosaku", "Tarosaku", "Yosaku", "Goemon"}

// Credit is a title screen line added below the original credits.
type Credit struct {
	// Spacing is the number of rows below the previous credit.
	Spacing byte
	Text    string
}

// DragonCredits returns the credit lines for the title screen.
func DragonCredits(easy bool) []Credit {
	credits := []Credit{
		{Spacing: 3, Text: "EN translation patch 1.0"},
		{Spacing: 1, Text: "by Laszlo Benyi & NLeseul"},
	}
	if easy {
		credits = append(credits, Credit{Spacing: 1, Text: "EASY MODE!!"})
	}
	return credits
}

// randomString is an UpdateRandomString call.
type randomString struct {
	str, count, len1, len2 int
}

var dragonRandomStrings = map[uint16]randomString{
	570:  {4, 5, 18, 22},
	1395: {17, 2, 31, 35},
	1610: {13, 5, 27, 31},
	1620: {25, 2, 39, 43},
	1630: {13, 2, 27, 31},
	1760: {7, 2, 21, 25},
	2105: {56, 2, 70, 74},
	2200: {38, 2, 52, 56},
	5250: {4, 3, 18, 22},
}

const screenWidth = 40

// pressKeyRow is the "press any key" row constant on the title screen line.
const pressKeyRow = 80

// DragonEdits applies the line edits that must happen before translation:
// the default names array, the throne room string split, the shop prefix
// removal, the title screen credits and, in easy mode, disabled encounters
// and maxed-out stats. It then adds the names DATA line and the loop that
// reads it, and sorts the program. Lines missing from the program are
// skipped.
func DragonEdits(prog *basic.Program, easy bool) error {
	edits := map[uint16]func(*basic.Line) error{
		160:   appendTokens(ops(",DN$(MN)")),
		303:   spliceTokens(67, 80, ops("DN$(I)")...),
		2640:  splitThroneRoom,
		2641:  spliceTokens(0, 3),
		2840:  spliceTokens(7, 8),
		2841:  spliceTokens(7, 8),
		2842:  spliceTokens(7, 8),
		18020: setToken(49, basic.SmallInt(2)),
		18050: func(l *basic.Line) error { return titleCredits(l, DragonCredits(easy), easy) },
	}
	if easy {
		edits[5510] = func(l *basic.Line) error {
			l.Tokens = []basic.Token{basic.Remark([]byte("Encounters disabled!"))}
			return nil
		}
		edits[20160] = maxStats
	}

	for number, edit := range edits {
		line := prog.Line(number)
		if line == nil {
			log.Debug().Uint16("line", number).Msg("Line not in program, edit skipped")
			continue
		}
		if err := edit(line); err != nil {
			return fmt.Errorf("edit line %d: %w", number, err)
		}
	}

	names := make([][]byte, len(DefaultNames))
	for i, n := range DefaultNames {
		names[i] = []byte(n)
	}
	prog.Add(&basic.Line{Number: 20165, Tokens: []basic.Token{basic.Data(names...)}})

	// FOR I=0 TO MN:READ DN$(I):NEXT
	read := ops("\x82I\xf1\x11 \xdc MN:")
	read = append(read, ops("\x87DN$(I):")...)
	read = append(read, ops("\x83")...)
	prog.Add(&basic.Line{Number: 221, Tokens: read})

	prog.Sort()
	return nil
}

// DragonFixups recomputes the substring lengths of the packed MID$ strings
// after translation changed their length.
func DragonFixups(prog *basic.Program) error {
	for number, rs := range dragonRandomStrings {
		line := prog.Line(number)
		if line == nil {
			continue
		}
		if err := UpdateRandomString(line, rs.str, rs.count, rs.len1, rs.len2); err != nil {
			return fmt.Errorf("fix line %d: %w", number, err)
		}
	}

	// Line 1640 computes the offset into the string printed by 1650.
	l1650 := prog.Line(1650)
	if l1650 == nil {
		return nil
	}
	l1640 := prog.Line(1640)
	if l1640 == nil {
		return fmt.Errorf("fix line 1650: %w: line 1640 is missing", ErrIndex)
	}
	str, err := tokenAt(l1650, 4)
	if err != nil {
		return fmt.Errorf("fix line 1650: %w", err)
	}
	n, err := pieceLength(1650, str, 6)
	if err != nil {
		return fmt.Errorf("fix line 1650: %w", err)
	}
	if err := setByteConstants(n, []*basic.Line{l1650, l1640, l1640}, 8, 26, 47); err != nil {
		return fmt.Errorf("fix line 1650: %w", err)
	}
	return nil
}

func appendTokens(toks []basic.Token) func(*basic.Line) error {
	return func(l *basic.Line) error {
		l.Tokens = append(l.Tokens, toks...)
		return nil
	}
}

func spliceTokens(i, j int, repl ...basic.Token) func(*basic.Line) error {
	return func(l *basic.Line) error {
		out, err := Splice(l.Tokens, i, j, repl...)
		if err != nil {
			return err
		}
		l.Tokens = out
		return nil
	}
}

func setToken(i int, tok basic.Token) func(*basic.Line) error {
	return func(l *basic.Line) error {
		t, err := tokenAt(l, i)
		if err != nil {
			return err
		}
		*t = tok
		return nil
	}
}

// splitThroneRoom turns the conditionally built throne room sentence into two
// whole strings.
func splitThroneRoom(l *basic.Line) error {
	if len(l.Tokens) < 18 {
		return fmt.Errorf("%w: line %d has %d tokens", ErrIndex, l.Number, len(l.Tokens))
	}
	moved := make([]basic.Token, 0, 5)
	for _, t := range l.Tokens[12:17] {
		moved = append(moved, t.Clone())
	}

	out, err := Splice(l.Tokens, 15, 18)
	if err != nil {
		return err
	}
	if out, err = Splice(out, 30, 31); err != nil {
		return err
	}
	l.Tokens = append(out, moved...)
	return nil
}

// titleCredits joins the three-line "presented by" string into one, then
// inserts the credit lines. Each credit is
// X=<x>:Y=Y+<spacing>:M$="<text>":GOSUB 18500:
func titleCredits(l *basic.Line, credits []Credit, easy bool) error {
	if len(l.Tokens) < 54 {
		return fmt.Errorf("%w: line %d has %d tokens", ErrIndex, l.Number, len(l.Tokens))
	}
	for _, i := range []int{13, 31, 49} {
		if l.Tokens[i].Op != basic.OpQuote {
			return fmt.Errorf("%w: line %d token %d is not a string", ErrToken, l.Number, i)
		}
	}

	var combined []byte
	combined = append(combined, l.Tokens[13].Content...)
	combined = append(combined, ' ')
	combined = append(combined, l.Tokens[31].Content...)
	combined = append(combined, ' ')
	combined = append(combined, l.Tokens[49].Content...)

	l.Tokens[2] = basic.SmallInt(centered(len(combined)))
	l.Tokens[8] = basic.SmallInt(1)
	l.Tokens[13].Content = combined

	out, err := Splice(l.Tokens, 18, 54)
	if err != nil {
		return err
	}

	var insert []basic.Token
	for _, c := range credits {
		insert = append(insert, ops("X\xf1")...)
		insert = append(insert, basic.SmallInt(centered(len(c.Text))))
		insert = append(insert, ops(":Y\xf1Y\xf3")...)
		insert = append(insert, basic.SmallInt(c.Spacing))
		insert = append(insert, ops(":M$\xf1")...)
		insert = append(insert, basic.Quoted([]byte(c.Text)))
		insert = append(insert, ops(":\x8d\x0eDH:")...)
	}
	if out, err = Splice(out, 36, 36, insert...); err != nil {
		return err
	}
	l.Tokens = out

	// Without the easy mode credit, move "press any key" up a row.
	if !easy {
		return setToken(pressKeyRow-(54-18)+len(insert), basic.SmallInt(4))(l)
	}
	return nil
}

// centered returns the column that centres n characters on the screen.
func centered(n int) byte {
	if n >= screenWidth {
		return 0
	}
	return byte((screenWidth - n) / 2)
}

func maxStats(l *basic.Line) error {
	tok, err := tokenAt(l, 0)
	if err != nil {
		return err
	}
	if tok.Op != basic.OpData {
		return fmt.Errorf("%w: line %d does not start with DATA", ErrToken, l.Number)
	}
	fields := make([][]byte, 0, 25)
	for range 5 {
		for _, v := range []string{"127", "127", "100", "127", "2.0"} {
			fields = append(fields, []byte(v))
		}
	}
	tok.Fields = fields
	return nil
}
