package basic

import (
	"bytes"
	"slices"
)

// Token is one opcode plus the payload its shape calls for. Content holds the
// fixed payload, the string of a quoted token, the text of a remark or the
// separator byte after DATA. Fields is only used by DATA tokens.
type Token struct {
	Op      byte
	Content []byte
	Fields  [][]byte
	// Closed records whether a quoted token ended with a closing quote.
	Closed bool
}

// Shape returns the payload shape of the token's opcode.
func (t Token) Shape() Shape {
	return ShapeOf(t.Op)
}

// Equal compares opcode and payload.
func (t Token) Equal(o Token) bool {
	if t.Op != o.Op || !bytes.Equal(t.Content, o.Content) || t.Closed != o.Closed {
		return false
	}
	return slices.EqualFunc(t.Fields, o.Fields, bytes.Equal)
}

// Clone returns a deep copy of the token.
func (t Token) Clone() Token {
	c := Token{Op: t.Op, Closed: t.Closed, Content: bytes.Clone(t.Content)}
	if t.Fields != nil {
		c.Fields = make([][]byte, len(t.Fields))
		for i, f := range t.Fields {
			c.Fields[i] = bytes.Clone(f)
		}
	}
	return c
}

// Op returns a payload-less token.
func Op(op byte) Token {
	return Token{Op: op}
}

// Quoted returns a closed quoted-string token.
func Quoted(content []byte) Token {
	return Token{Op: OpQuote, Content: content, Closed: true}
}

// Data returns a DATA token with the usual space separator.
func Data(fields ...[]byte) Token {
	return Token{Op: OpData, Content: []byte{' '}, Fields: fields}
}

// Remark returns a REM token.
func Remark(text []byte) Token {
	return Token{Op: OpRem, Content: text}
}

// SmallInt returns the shortest constant token for n: a single opcode for
// 0..10, otherwise a 1-byte constant.
func SmallInt(n byte) Token {
	if n <= OpTen-OpZero {
		return Token{Op: OpZero + n}
	}
	return Token{Op: OpByte, Content: []byte{n}}
}

// Line is one program line.
type Line struct {
	Number uint16
	// Addr is the forward link read from disk. Encode recomputes it.
	Addr   uint16
	Tokens []Token
}

// Equal compares line numbers and tokens, ignoring link addresses.
func (l *Line) Equal(o *Line) bool {
	return l.Number == o.Number && slices.EqualFunc(l.Tokens, o.Tokens, Token.Equal)
}

// Strings returns the indices of the line's quoted-string tokens.
func (l *Line) Strings() []int {
	var idx []int
	for i, t := range l.Tokens {
		if t.Op == OpQuote {
			idx = append(idx, i)
		}
	}
	return idx
}

// Program is an ordered list of lines.
type Program struct {
	Lines []*Line
}

// Line returns the line numbered n, or nil.
func (p *Program) Line(n uint16) *Line {
	for _, l := range p.Lines {
		if l.Number == n {
			return l
		}
	}
	return nil
}

// Add appends a line. Call Sort before encoding.
func (p *Program) Add(l *Line) {
	p.Lines = append(p.Lines, l)
}

// Sort orders lines by line number, keeping the relative order of duplicates.
func (p *Program) Sort() {
	slices.SortStableFunc(p.Lines, func(a, b *Line) int {
		return int(a.Number) - int(b.Number)
	})
}

// Equal compares two programs line by line, ignoring link addresses.
func (p *Program) Equal(o *Program) bool {
	return slices.EqualFunc(p.Lines, o.Lines, (*Line).Equal)
}
