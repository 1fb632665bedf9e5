package basic

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// linkFudge is added to every computed link. The runtime addresses lines
// from 1, not 0.
const linkFudge = 1

// endMarker follows the last line.
var endMarker = []byte{0, 0, 0}

// Encode serializes the program in its current line order.
func (p *Program) Encode() ([]byte, error) {
	return Encode(p.Lines)
}

// Encode serializes lines in the order given, recomputing every forward link.
// It does not sort.
func Encode(lines []*Line) ([]byte, error) {
	var out []byte
	for _, l := range lines {
		body, err := encodeBody(l.Tokens)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.Number, err)
		}

		link := len(out) + lineHeaderSize + len(body) + 1 + linkFudge
		if link > 0xFFFF {
			return nil, fmt.Errorf("%w: line %d link 0x%x overflows 16 bits", ErrFormat, l.Number, link)
		}

		out = binary.LittleEndian.AppendUint16(out, uint16(link))
		out = binary.LittleEndian.AppendUint16(out, l.Number)
		out = append(out, body...)
		out = append(out, OpEnd)
	}

	return append(out, endMarker...), nil
}

// EncodeBody serializes tokens without line header or terminator.
func EncodeBody(tokens []Token) ([]byte, error) {
	return encodeBody(tokens)
}

func encodeBody(tokens []Token) ([]byte, error) {
	var body []byte
	for i, t := range tokens {
		var next *Token
		if i+1 < len(tokens) {
			next = &tokens[i+1]
		}

		var err error
		body, err = appendToken(body, t, next)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
	}
	return body, nil
}

// appendToken writes one token, refusing payloads that would decode
// differently from how they were built.
func appendToken(dst []byte, t Token, next *Token) ([]byte, error) {
	dst = append(dst, t.Op)

	switch t.Shape() {
	case ShapeNone:
		if len(t.Content) > 0 || t.Fields != nil {
			return nil, fmt.Errorf("%w: opcode 0x%02x takes no payload", ErrFormat, t.Op)
		}

	case ShapeFixed:
		if w := FixedWidth(t.Op); len(t.Content) != w {
			return nil, fmt.Errorf("%w: opcode 0x%02x takes %d payload bytes, got %d", ErrFormat, t.Op, w, len(t.Content))
		}
		dst = append(dst, t.Content...)

	case ShapeQuoted:
		if bytes.IndexByte(t.Content, OpQuote) >= 0 || bytes.IndexByte(t.Content, OpEnd) >= 0 {
			return nil, fmt.Errorf("%w: string %q contains a quote or zero byte", ErrFormat, t.Content)
		}
		dst = append(dst, t.Content...)
		if t.Closed {
			dst = append(dst, OpQuote)
		} else if next != nil {
			return nil, fmt.Errorf("%w: unterminated string is not the last token", ErrFormat)
		}

	case ShapeData:
		if len(t.Content) > 1 {
			return nil, fmt.Errorf("%w: DATA separator is %d bytes", ErrFormat, len(t.Content))
		}
		if len(t.Content) == 0 && (len(t.Fields) > 1 || len(t.Fields) == 1 && len(t.Fields[0]) > 0) {
			return nil, fmt.Errorf("%w: DATA fields without a separator", ErrFormat)
		}
		if next != nil && next.Op != OpColon {
			return nil, fmt.Errorf("%w: DATA must end the statement, followed by 0x%02x", ErrFormat, next.Op)
		}
		dst = append(dst, t.Content...)
		for i, f := range t.Fields {
			if bytes.ContainsAny(f, ",:\x00") {
				return nil, fmt.Errorf("%w: DATA field %q contains a delimiter", ErrFormat, f)
			}
			if i > 0 {
				dst = append(dst, OpComma)
			}
			dst = append(dst, f...)
		}

	case ShapeRemark:
		if bytes.IndexByte(t.Content, OpEnd) >= 0 {
			return nil, fmt.Errorf("%w: remark contains a zero byte", ErrFormat)
		}
		if next != nil {
			return nil, fmt.Errorf("%w: remark is not the last token", ErrFormat)
		}
		dst = append(dst, t.Content...)
	}

	return dst, nil
}
