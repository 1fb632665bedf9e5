package patch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"d88-localizer/internal/basic"
	"d88-localizer/internal/catalog"
	"d88-localizer/internal/disk"
	"d88-localizer/internal/disk/disktest"
)

func TestApply(t *testing.T) {
	prog := dragonProgram()
	prog.Add(&basic.Line{Number: 400, Tokens: []basic.Token{basic.Op(basic.OpPrint), basic.Quoted(dragon)}})
	prog.Sort()

	game := catalog.Table{"ドラゴン": {"A dragon appears before you and it looks very hungry"}}

	st, err := Apply(prog, game, catalog.Table{}, Options{GameEdits: true, Wrap: WrapPolicy{Width: 40}})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Strings)

	require.NotNil(t, prog.Line(221))
	assert.Len(t, prog.Line(400).Tokens, 4, "translated string is wrapped")

	_, err = prog.Encode()
	assert.NoError(t, err)
}

func TestApplyWithoutGameEdits(t *testing.T) {
	prog := dragonProgram()
	_, err := Apply(prog, catalog.Table{}, catalog.Table{}, Options{})
	require.NoError(t, err)
	assert.Nil(t, prog.Line(221))
	assert.Len(t, prog.Line(2640).Tokens, 40)
}

// installImage has the program in entry 2 on blocks 3 and 4, a doomed file
// in entries 5 and 6 on blocks 9 to 11, and a live file in entry 7 on block 12.
func installImage(t *testing.T) *disk.Image {
	t.Helper()

	data := disktest.New(8).
		Entry(2, "PROGRAM", 3, 100).Chain(3, 4).
		Entry(5, "DONKEY", 9, 10).Chain(9, 10).
		Entry(6, "DONKEY2", 11, 10).Chain(11).
		Entry(7, "LIVE", 12, 10).Chain(12).
		Bytes()

	img, err := disk.Open(data)
	require.NoError(t, err)
	return img
}

func TestInstall(t *testing.T) {
	img := installImage(t)
	program := bytes.Repeat([]byte{0x42}, 5000)

	target := Target{Entry: 2, Name: []byte("EN"), RemoveStart: 5, RemoveCount: 2, Donors: []byte{9, 10}}
	require.NoError(t, Install(img, target, program))

	reopened, err := disk.Open(img.Bytes())
	require.NoError(t, err)

	blocks, err := reopened.Chain.Walk(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 9}, blocks)

	e, err := reopened.Dir.Entry(2)
	require.NoError(t, err)
	assert.Equal(t, 5000, e.Length)
	assert.Equal(t, []byte("EN"), e.Name())

	got, err := reopened.ExtractFile(2)
	require.NoError(t, err)
	assert.Equal(t, program, got)

	live, err := reopened.Dir.Entry(5)
	require.NoError(t, err)
	assert.Equal(t, byte(12), live.Start, "entries after the removed ones move up")

	for i := 6; i < disk.EntryCount; i++ {
		e, err := reopened.Dir.Entry(i)
		require.NoError(t, err)
		assert.False(t, e.Used(), "entry %d", i)
	}
}

func TestInstallFailuresLeaveImageUntouched(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		size    int
		wantErr error
	}{
		{
			name:    "donor still in use",
			target:  Target{Entry: 2, RemoveStart: 5, RemoveCount: 2, Donors: []byte{12}},
			size:    5000,
			wantErr: disk.ErrFormat,
		},
		{
			name:    "not enough donors",
			target:  Target{Entry: 2, RemoveStart: 5, RemoveCount: 2, Donors: []byte{9}},
			size:    7000,
			wantErr: disk.ErrCapacity,
		},
		{
			name:    "removing the program itself",
			target:  Target{Entry: 2, RemoveStart: 1, RemoveCount: 2},
			size:    100,
			wantErr: disk.ErrOutOfRange,
		},
		{
			name:    "bad name",
			target:  Target{Entry: 2, Name: []byte("ENG")},
			size:    100,
			wantErr: disk.ErrFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := installImage(t)
			before := bytes.Clone(img.Bytes())

			err := Install(img, tt.target, bytes.Repeat([]byte{1}, tt.size))
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, bytes.Equal(before, img.Bytes()), "image bytes changed")
		})
	}
}
