// Package scanner finds candidate text in a raw program file without decoding
// its token stream. It is a best-effort heuristic used for cataloguing: spans
// that turn out not to be Shift-JIS text are dropped.
package scanner

import (
	"encoding/binary"
	"strings"

	"github.com/rs/zerolog/log"

	"d88-localizer/internal/basic"
	"d88-localizer/internal/textutil"
)

// Span is a half-open byte range [Begin, End) in the scanned buffer.
type Span struct {
	Begin int
	End   int
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Begin }

// Kind tells which scan produced a span.
type Kind string

const (
	KindQuoted Kind = "quoted"
	KindData   Kind = "data"
)

// Text is a decoded span.
type Text struct {
	Span  Span
	Kind  Kind
	Value string
}

type quoteState int

const (
	outside quoteState = iota
	opening
	inside
	closing
	// statement waits for another quote before the statement ends.
	statement
)

// ScanQuoted returns the spans of string literals printed by PRINT or its
// '?' abbreviation. Strings joined to the first one within the same
// statement (by ';' or an expression) are reported as separate spans.
func ScanQuoted(buf []byte) []Span {
	var (
		spans  []Span
		state  = outside
		spaced bool
		begin  int
	)

	emit := func(end int) {
		if end > begin {
			spans = append(spans, Span{Begin: begin, End: end})
		}
	}

	for i := 0; i < len(buf); i++ {
		b := buf[i]

		switch state {
		case outside:
			if b == basic.OpPrint || b == basic.OpPrintQ {
				state, spaced = opening, false
			}

		case opening:
			switch {
			case b == basic.OpQuote:
				state, begin = inside, i+1
			case b == ' ' && !spaced:
				spaced = true
			case b == basic.OpPrint || b == basic.OpPrintQ:
				spaced = false
			default:
				state = outside
			}

		case inside:
			switch b {
			case basic.OpQuote:
				emit(i)
				state = closing
			case basic.OpEnd:
				// Strings may run to the end of the line unterminated.
				emit(i)
				state = outside
			}

		case closing:
			switch b {
			case basic.OpColon, basic.OpEnd:
				state = outside
			case basic.OpQuote:
				state, begin = inside, i+1
			default:
				state = statement
			}

		case statement:
			switch b {
			case basic.OpQuote:
				state, begin = inside, i+1
			case basic.OpColon, basic.OpEnd:
				state = outside
			}
		}
	}

	return spans
}

// ScanDataTable returns the field spans of the DATA table that starts at
// offset, which must point at the first field of a DATA statement. Fields
// are split on commas. A colon or line end leaves the table for a binary
// region that is skipped until the next DATA statement; the table ends at a
// zero link or at a line that does not start with DATA.
func ScanDataTable(buf []byte, offset int) []Span {
	if offset < 0 || offset >= len(buf) {
		return nil
	}

	var spans []Span
	emit := func(begin, end int) {
		if end > begin {
			spans = append(spans, Span{Begin: begin, End: end})
		}
	}

	inField := true
	begin := offset
	for i := offset; i < len(buf); {
		b := buf[i]

		if b == basic.OpEnd {
			if inField {
				emit(begin, i)
			}
			next, ok := nextDataLine(buf, i)
			if !ok {
				return spans
			}
			i, begin, inField = next, next, true
			continue
		}

		if !inField {
			if b == basic.OpData && i+1 < len(buf) && buf[i+1] == ' ' {
				i += 2
				begin, inField = i, true
				continue
			}
			i++
			continue
		}

		switch b {
		case basic.OpComma:
			emit(begin, i)
			begin = i + 1
		case basic.OpColon:
			emit(begin, i)
			inField = false
		}
		i++
	}

	if inField {
		emit(begin, len(buf))
	}
	return spans
}

// nextDataLine looks past the terminator at end for the next line. It returns
// the offset of that line's first field when the line is a DATA statement.
func nextDataLine(buf []byte, end int) (int, bool) {
	header := end + 1
	if header+4 >= len(buf) {
		return 0, false
	}
	if binary.LittleEndian.Uint16(buf[header:]) == 0 {
		return 0, false
	}

	body := header + 4
	if buf[body] != basic.OpData {
		return 0, false
	}
	body++
	if body < len(buf) && buf[body] == ' ' {
		body++
	}
	return body, true
}

// Decode converts spans to text. Spans that are not valid Shift-JIS are
// dropped, as are numeric DATA fields.
func Decode(buf []byte, spans []Span, kind Kind) []Text {
	var texts []Text
	for _, s := range spans {
		if s.Begin < 0 || s.End > len(buf) || s.Begin >= s.End {
			continue
		}

		value, err := textutil.DecodeSJIS(buf[s.Begin:s.End])
		if err != nil {
			log.Debug().Err(err).Int("begin", s.Begin).Int("end", s.End).Msg("Dropped undecodable span")
			continue
		}
		if kind == KindData && (textutil.IsNumber(value) || strings.TrimSpace(value) == "") {
			continue
		}

		texts = append(texts, Text{Span: s, Kind: kind, Value: value})
	}
	return texts
}

// Scan runs both scans and returns the decoded text in buffer order per kind.
// A dataOffset of zero or less disables the DATA table scan.
func Scan(buf []byte, dataOffset int) []Text {
	texts := Decode(buf, ScanQuoted(buf), KindQuoted)
	if dataOffset > 0 {
		texts = append(texts, Decode(buf, ScanDataTable(buf, dataOffset), KindData)...)
	}
	return texts
}

// JapaneseOnly keeps the texts that contain kana or kanji.
func JapaneseOnly(texts []Text) []Text {
	var out []Text
	for _, t := range texts {
		if textutil.ContainsJapanese(t.Value) {
			out = append(out, t)
		}
	}
	return out
}
