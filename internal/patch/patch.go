// Package patch edits a decoded program: it substitutes translations, splits
// long strings and applies the game-specific line edits.
package patch

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"d88-localizer/internal/basic"
	"d88-localizer/internal/catalog"
	"d88-localizer/internal/textutil"
)

// ErrIndex is returned when an edit addresses a token the line does not have.
var ErrIndex = errors.New("token index out of range")

// ErrToken is returned when an edit finds a token of the wrong kind.
var ErrToken = errors.New("unexpected token")

// Splice replaces tokens[i:j] with repl. Indices must satisfy
// 0 <= i <= j <= len(tokens).
func Splice(tokens []basic.Token, i, j int, repl ...basic.Token) ([]basic.Token, error) {
	if i < 0 || j < i || j > len(tokens) {
		return nil, fmt.Errorf("%w: [%d:%d] of %d tokens", ErrIndex, i, j, len(tokens))
	}
	out := make([]basic.Token, 0, len(tokens)-(j-i)+len(repl))
	out = append(out, tokens[:i]...)
	out = append(out, repl...)
	return append(out, tokens[j:]...), nil
}

// tokenAt returns a pointer to token i of the line.
func tokenAt(l *basic.Line, i int) (*basic.Token, error) {
	if i < 0 || i >= len(l.Tokens) {
		return nil, fmt.Errorf("%w: line %d token %d of %d", ErrIndex, l.Number, i, len(l.Tokens))
	}
	return &l.Tokens[i], nil
}

// Stats counts what ApplyTranslations did.
type Stats struct {
	Strings int
	Fields  int
	Skipped int
}

// ApplyTranslations replaces quoted strings with their translation from game
// and non-numeric DATA fields with theirs from misc. Text without a filled-in
// translation is left alone. A translation that cannot be encoded, or that
// contains a delimiter of the token it would go into, is skipped with a
// warning.
func ApplyTranslations(prog *basic.Program, game, misc catalog.Table) Stats {
	var st Stats
	for _, line := range prog.Lines {
		for i := range line.Tokens {
			tok := &line.Tokens[i]

			switch tok.Op {
			case basic.OpQuote:
				text, err := textutil.DecodeSJIS(tok.Content)
				if err != nil {
					continue
				}
				tr, ok := game.Translation(text)
				if !ok {
					continue
				}
				enc, ok := encodeTranslation(line.Number, tr, "\"")
				if !ok {
					st.Skipped++
					continue
				}
				tok.Content = enc
				st.Strings++

			case basic.OpData:
				for f, field := range tok.Fields {
					text, err := textutil.DecodeSJIS(field)
					if err != nil || textutil.IsNumber(text) {
						continue
					}
					tr, ok := misc.Translation(text)
					if !ok {
						continue
					}
					enc, ok := encodeTranslation(line.Number, tr, ",:")
					if !ok {
						st.Skipped++
						continue
					}
					tok.Fields[f] = enc
					st.Fields++
				}
			}
		}
	}

	log.Info().
		Int("strings", st.Strings).
		Int("fields", st.Fields).
		Int("skipped", st.Skipped).
		Msg("Applied translations")
	return st
}

func encodeTranslation(line uint16, text, delims string) ([]byte, bool) {
	enc, err := textutil.EncodeSJIS(text)
	if err != nil {
		log.Warn().Err(err).Uint16("line", line).Str("text", textutil.Truncate(text, 60)).Msg("Translated text could not be encoded")
		return nil, false
	}
	if bytes.ContainsAny(enc, delims+"\x00") {
		log.Warn().Uint16("line", line).Str("text", textutil.Truncate(text, 60)).Msg("Translated text contains a delimiter")
		return nil, false
	}
	return enc, true
}

// UpdateRandomString fixes the substring length of a MID$ expression that
// picks one of count equal-length pieces out of the string at token
// stringIdx. The new length is written into the 1-byte constants at lenIdx1
// and lenIdx2.
func UpdateRandomString(line *basic.Line, stringIdx, count, lenIdx1, lenIdx2 int) error {
	str, err := tokenAt(line, stringIdx)
	if err != nil {
		return err
	}
	length, err := pieceLength(line.Number, str, count)
	if err != nil {
		return err
	}
	return setByteConstants(length, []*basic.Line{line, line}, lenIdx1, lenIdx2)
}

func pieceLength(line uint16, str *basic.Token, count int) (byte, error) {
	if str.Op != basic.OpQuote {
		return 0, fmt.Errorf("%w: line %d expected a string, got opcode 0x%02x", ErrToken, line, str.Op)
	}
	if count <= 0 {
		return 0, fmt.Errorf("%w: line %d piece count %d", ErrIndex, line, count)
	}
	n := len(str.Content) / count
	if n > 0xFF {
		return 0, fmt.Errorf("%w: line %d piece length %d does not fit a byte", ErrToken, line, n)
	}
	return byte(n), nil
}

// setByteConstants writes v into token idx[i] of lines[i]. All targets are
// checked before any is written.
func setByteConstants(v byte, lines []*basic.Line, idx ...int) error {
	targets := make([]*basic.Token, len(idx))
	for i, at := range idx {
		tok, err := tokenAt(lines[i], at)
		if err != nil {
			return err
		}
		if tok.Op != basic.OpByte {
			return fmt.Errorf("%w: line %d token %d is opcode 0x%02x, not a 1-byte constant", ErrToken, lines[i].Number, at, tok.Op)
		}
		targets[i] = tok
	}
	for _, tok := range targets {
		tok.Content = []byte{v}
	}
	return nil
}

// ops tokenizes a literal statement fragment.
func ops(s string) []basic.Token {
	return basic.MustTokenize([]byte(s))
}
