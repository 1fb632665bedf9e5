package patch

import (
	"slices"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"d88-localizer/internal/basic"
	"d88-localizer/internal/textutil"
)

// DefaultWrapWidth is the screen width in characters.
const DefaultWrapWidth = 40

// WrapOverride narrows the wrap width for one string token.
type WrapOverride struct {
	Line  uint16
	Token int
	Width int
}

// WrapPolicy controls WrapLongStrings.
type WrapPolicy struct {
	Width     int
	Overrides []WrapOverride
	// Skip lists lines whose strings must keep their length, such as packed
	// MID$ tables and combat text.
	Skip []uint16
}

func (p WrapPolicy) width(line uint16, token int) int {
	for _, o := range p.Overrides {
		if o.Line == line && o.Token == token {
			return o.Width
		}
	}
	if p.Width <= 0 {
		return DefaultWrapWidth
	}
	return p.Width
}

// WrapLongStrings splits every string longer than its wrap width into
// pieces joined by ';', so PRINT breaks the line before a piece that would
// not fit. It returns the number of strings split.
func WrapLongStrings(prog *basic.Program, policy WrapPolicy) int {
	split := 0
	for _, line := range prog.Lines {
		if slices.Contains(policy.Skip, line.Number) {
			continue
		}

		var out []basic.Token
		for i, tok := range line.Tokens {
			if tok.Op != basic.OpQuote {
				out = append(out, tok)
				continue
			}

			pieces, ok := wrapToken(line.Number, tok, policy.width(line.Number, i))
			if !ok {
				out = append(out, tok)
				continue
			}
			out = append(out, pieces...)
			split++
		}
		line.Tokens = out
	}

	log.Debug().Int("strings", split).Msg("Wrapped long strings")
	return split
}

func wrapToken(line uint16, tok basic.Token, width int) ([]basic.Token, bool) {
	text, err := textutil.DecodeSJIS(tok.Content)
	if err != nil || utf8.RuneCountInString(text) <= width {
		return nil, false
	}

	chunks := textutil.Wrap(text, width)
	pieces := make([]basic.Token, 0, 2*len(chunks)-1)
	for i, chunk := range chunks {
		enc, err := textutil.EncodeSJIS(chunk)
		if err != nil {
			log.Warn().Err(err).Uint16("line", line).Str("text", textutil.Truncate(text, 60)).Msg("Wrapped text could not be encoded")
			return nil, false
		}
		if i > 0 {
			pieces = append(pieces, basic.Op(basic.OpSemi))
		}
		pieces = append(pieces, basic.Quoted(enc))
	}
	// An unterminated string stays unterminated so the line ends the same way.
	pieces[len(pieces)-1].Closed = tok.Closed
	return pieces, true
}
