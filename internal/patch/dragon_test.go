package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"d88-localizer/internal/basic"
)

// dragonProgram returns stand-ins for the lines the game edits touch, with
// enough tokens for every index the edits use.
func dragonProgram() *basic.Program {
	credits := seq(90)
	credits[13] = basic.Quoted([]byte("PRESENTED"))
	credits[31] = basic.Quoted([]byte("BY"))
	credits[49] = basic.Quoted([]byte("X"))

	return &basic.Program{Lines: []*basic.Line{
		{Number: 160, Tokens: seq(3)},
		{Number: 303, Tokens: seq(85)},
		{Number: 2640, Tokens: seq(40)},
		{Number: 2641, Tokens: seq(5)},
		{Number: 2840, Tokens: seq(10)},
		{Number: 2842, Tokens: seq(10)},
		{Number: 5510, Tokens: seq(4)},
		{Number: 18020, Tokens: seq(50)},
		{Number: 18050, Tokens: credits},
		{Number: 20160, Tokens: []basic.Token{basic.Data([]byte("1"), []byte("2"))}},
	}}
}

func TestDragonEdits(t *testing.T) {
	prog := dragonProgram()
	require.NoError(t, DragonEdits(prog, false))

	t.Run("names array", func(t *testing.T) {
		body, err := basic.EncodeBody(prog.Line(160).Tokens[3:])
		require.NoError(t, err)
		assert.Equal(t, ",DN$(MN)", string(body))

		l303 := prog.Line(303).Tokens
		require.Len(t, l303, 78)
		body, err = basic.EncodeBody(l303[67:73])
		require.NoError(t, err)
		assert.Equal(t, "DN$(I)", string(body))
		assert.Equal(t, 80, ids(l303)[73])
	})

	t.Run("throne room", func(t *testing.T) {
		want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
		for id := 18; id < 40; id++ {
			if id != 33 {
				want = append(want, id)
			}
		}
		want = append(want, 12, 13, 14, 15, 16)
		assert.Equal(t, want, ids(prog.Line(2640).Tokens))
		assert.Equal(t, []int{3, 4}, ids(prog.Line(2641).Tokens))
	})

	t.Run("shop prefixes", func(t *testing.T) {
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 8, 9}, ids(prog.Line(2840).Tokens))
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 8, 9}, ids(prog.Line(2842).Tokens))
	})

	t.Run("title screen", func(t *testing.T) {
		assert.Equal(t, basic.SmallInt(2), prog.Line(18020).Tokens[49])

		toks := prog.Line(18050).Tokens
		require.Len(t, toks, 90)
		// "PRESENTED BY X" is 14 characters, centred at column 13.
		assert.Equal(t, basic.SmallInt(13), toks[2])
		assert.Equal(t, basic.SmallInt(1), toks[8])
		assert.Equal(t, []byte("PRESENTED BY X"), toks[13].Content)
		assert.Equal(t, []int{14, 15, 16, 17, 54}, ids(toks[14:19]))

		first, err := basic.EncodeBody(toks[36:54])
		require.NoError(t, err)
		assert.Equal(t, "X\xf1\x19:Y\xf1Y\xf3\x14:M$\xf1\"EN translation patch 1.0\":\x8d\x0eDH:", string(first))

		second, err := basic.EncodeBody(toks[54:72])
		require.NoError(t, err)
		assert.Equal(t, "X\xf1\x18:Y\xf1Y\xf3\x12:M$\xf1\"by Laszlo Benyi & NLeseul\":\x8d\x0eDH:", string(second))

		assert.Equal(t, 72, ids(toks)[72])
		assert.Equal(t, basic.SmallInt(4), toks[80], "press any key row of original token 80")
		assert.Equal(t, []int{79, -1, 81, 82, 83, 84}, ids(toks[79:85]))
	})

	t.Run("normal mode keeps encounters and stats", func(t *testing.T) {
		assert.Equal(t, []int{0, 1, 2, 3}, ids(prog.Line(5510).Tokens))
		assert.Len(t, prog.Line(20160).Tokens[0].Fields, 2)
	})

	t.Run("added lines", func(t *testing.T) {
		names := prog.Line(20165)
		require.NotNil(t, names)
		assert.Equal(t, []basic.Token{basic.Data(
			[]byte("Gombe"), []byte("Jirosaku"), []byte("Tarosaku"), []byte("Yosaku"), []byte("Goemon"),
		)}, names.Tokens)

		read := prog.Line(221)
		require.NotNil(t, read)
		body, err := basic.EncodeBody(read.Tokens)
		require.NoError(t, err)
		assert.Equal(t, "\x82I\xf1\x11 \xdc MN:\x87DN$(I):\x83", string(body))

		var numbers []uint16
		for _, l := range prog.Lines {
			numbers = append(numbers, l.Number)
		}
		assert.IsNonDecreasing(t, numbers)
		assert.Equal(t, uint16(221), numbers[1])
	})

	t.Run("program still encodes", func(t *testing.T) {
		_, err := prog.Encode()
		assert.NoError(t, err)
	})
}

func TestDragonEditsEasyMode(t *testing.T) {
	prog := dragonProgram()
	require.NoError(t, DragonEdits(prog, true))

	assert.Equal(t, []basic.Token{basic.Remark([]byte("Encounters disabled!"))}, prog.Line(5510).Tokens)

	fields := prog.Line(20160).Tokens[0].Fields
	require.Len(t, fields, 25)
	assert.Equal(t, []byte("127"), fields[0])
	assert.Equal(t, []byte("100"), fields[2])
	assert.Equal(t, []byte("2.0"), fields[24])

	toks := prog.Line(18050).Tokens
	require.Len(t, toks, 108)
	third, err := basic.EncodeBody(toks[72:90])
	require.NoError(t, err)
	assert.Equal(t, "X\xf1\x0f\x0e:Y\xf1Y\xf3\x12:M$\xf1\"EASY MODE!!\":\x8d\x0eDH:", string(third))
	assert.Equal(t, 72, ids(toks)[90])
	assert.Equal(t, 80, ids(toks)[98], "press any key row is left alone")
}

func TestDragonEditsShortLine(t *testing.T) {
	prog := &basic.Program{Lines: []*basic.Line{{Number: 2640, Tokens: seq(10)}}}
	err := DragonEdits(prog, false)
	assert.ErrorIs(t, err, ErrIndex)
}

func TestDragonFixups(t *testing.T) {
	l570 := &basic.Line{Number: 570, Tokens: seq(23)}
	l570.Tokens[4] = basic.Quoted([]byte(strings.Repeat("a", 36)))

	l1640 := &basic.Line{Number: 1640, Tokens: seq(48)}
	l1650 := &basic.Line{Number: 1650, Tokens: seq(9)}
	l1650.Tokens[4] = basic.Quoted([]byte(strings.Repeat("b", 60)))

	prog := &basic.Program{Lines: []*basic.Line{l570, l1640, l1650}}
	require.NoError(t, DragonFixups(prog))

	assert.Equal(t, []byte{7}, l570.Tokens[18].Content)
	assert.Equal(t, []byte{7}, l570.Tokens[22].Content)
	assert.Equal(t, []byte{10}, l1650.Tokens[8].Content)
	assert.Equal(t, []byte{10}, l1640.Tokens[26].Content)
	assert.Equal(t, []byte{10}, l1640.Tokens[47].Content)
}

func TestDragonFixupsNeedsLine1640(t *testing.T) {
	l1650 := &basic.Line{Number: 1650, Tokens: seq(9)}
	l1650.Tokens[4] = basic.Quoted([]byte("abcdef"))

	err := DragonFixups(&basic.Program{Lines: []*basic.Line{l1650}})
	assert.ErrorIs(t, err, ErrIndex)
}
