package basic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFormat reports bytecode that does not follow the line/token layout.
var ErrFormat = errors.New("bytecode format")

const lineHeaderSize = 4

// Decode parses a program file into lines. Each line's forward link is
// trusted as the position of the next line, so padding between lines is
// skipped rather than parsed.
func Decode(buf []byte) (*Program, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a line link", ErrFormat, len(buf))
	}

	prog := &Program{}
	pos := 0
	for pos+2 <= len(buf) {
		link := binary.LittleEndian.Uint16(buf[pos:])
		if link == 0 {
			break
		}
		if pos+lineHeaderSize > len(buf) {
			return nil, fmt.Errorf("%w: line header at 0x%04x is truncated", ErrFormat, pos)
		}
		number := binary.LittleEndian.Uint16(buf[pos+2:])

		r := &reader{buf: buf, pos: pos + lineHeaderSize}
		tokens, err := r.line()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", number, err)
		}
		prog.Add(&Line{Number: number, Addr: link, Tokens: tokens})

		// Links are 1-based addresses.
		next := int(link) - 1
		if next <= pos {
			return nil, fmt.Errorf("%w: line %d links back to 0x%04x", ErrFormat, number, next)
		}
		pos = next
	}

	return prog, nil
}

// Tokenize splits a raw line body (no header, no terminator) into tokens.
func Tokenize(body []byte) ([]Token, error) {
	r := &reader{buf: body}
	tokens, err := r.line()
	if err != nil {
		return nil, err
	}
	if r.pos < len(body) {
		return nil, fmt.Errorf("%w: zero byte at offset %d inside line body", ErrFormat, r.pos-1)
	}
	return tokens, nil
}

// MustTokenize is Tokenize for literal bodies known to be valid.
func MustTokenize(body []byte) []Token {
	tokens, err := Tokenize(body)
	if err != nil {
		panic(err)
	}
	return tokens
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) peek() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	return r.buf[r.pos], true
}

func (r *reader) next() (byte, bool) {
	b, ok := r.peek()
	if ok {
		r.pos++
	}
	return b, ok
}

// atLineEnd reports whether the next byte terminates the line. The
// terminator itself is left for the line loop to consume.
func (r *reader) atLineEnd() bool {
	b, ok := r.peek()
	return !ok || b == OpEnd
}

// line reads tokens up to and including the zero terminator.
func (r *reader) line() ([]Token, error) {
	var tokens []Token
	for {
		op, ok := r.next()
		if !ok || op == OpEnd {
			return tokens, nil
		}

		tok, err := r.token(op)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func (r *reader) token(op byte) (Token, error) {
	tok := Token{Op: op}

	switch ShapeOf(op) {
	case ShapeFixed:
		// Fixed payloads may contain zero bytes; they are not terminators.
		w := FixedWidth(op)
		if r.pos+w > len(r.buf) {
			return tok, fmt.Errorf("%w: opcode 0x%02x needs %d payload bytes at 0x%04x", ErrFormat, op, w, r.pos)
		}
		tok.Content = bytes.Clone(r.buf[r.pos : r.pos+w])
		r.pos += w

	case ShapeQuoted:
		for !r.atLineEnd() {
			b, _ := r.next()
			if b == OpQuote {
				tok.Closed = true
				break
			}
			tok.Content = append(tok.Content, b)
		}

	case ShapeData:
		if !r.atLineEnd() {
			sep, _ := r.next()
			tok.Content = []byte{sep}
		}
		tok.Fields = [][]byte{nil}
		for !r.atLineEnd() {
			b, _ := r.peek()
			if b == OpColon {
				break
			}
			r.pos++
			if b == OpComma {
				tok.Fields = append(tok.Fields, nil)
				continue
			}
			last := len(tok.Fields) - 1
			tok.Fields[last] = append(tok.Fields[last], b)
		}

	case ShapeRemark:
		for !r.atLineEnd() {
			b, _ := r.next()
			tok.Content = append(tok.Content, b)
		}
	}

	return tok, nil
}
