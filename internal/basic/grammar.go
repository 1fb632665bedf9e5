// Package basic reads and writes tokenized N88-BASIC program files.
//
// A program is a sequence of lines. Each line starts with a 2-byte forward
// link (the 1-based address of the next line) and a 2-byte line number, both
// little-endian, followed by tokens and a zero terminator. A zero link ends
// the program.
package basic

// Opcodes with a payload or a special role in edits.
const (
	OpEnd     = 0x00
	OpHex     = 0x0C // 2-byte hexadecimal constant
	OpLineRef = 0x0E // 2-byte line number reference
	OpByte    = 0x0F // 1-byte decimal constant
	OpZero    = 0x11 // 0x11..0x1B encode the constants 0..10
	OpTen     = 0x1B
	OpInt     = 0x1C // 2-byte decimal constant
	OpSingle  = 0x1D // 4-byte single precision float
	OpQuote   = 0x22
	OpComma   = 0x2C
	OpColon   = 0x3A
	OpSemi    = 0x3B
	OpPrintQ  = 0x3F // '?' abbreviation of PRINT
	OpFor     = 0x82
	OpNext    = 0x83
	OpData    = 0x84
	OpRead    = 0x87
	OpGosub   = 0x8D
	OpRem     = 0x8F
	OpPrint   = 0x91
	OpTo      = 0xDC
	OpEqual   = 0xF1
	OpPlus    = 0xF3
)

// Shape tells how an opcode's payload is laid out.
type Shape int

const (
	// ShapeNone tokens are a single opcode byte.
	ShapeNone Shape = iota
	// ShapeFixed tokens carry a fixed number of raw bytes.
	ShapeFixed
	// ShapeQuoted tokens carry string content up to a closing quote.
	ShapeQuoted
	// ShapeData tokens carry a separator byte and comma-separated fields.
	ShapeData
	// ShapeRemark tokens carry everything up to the end of the line.
	ShapeRemark
)

func (s Shape) String() string {
	switch s {
	case ShapeFixed:
		return "fixed"
	case ShapeQuoted:
		return "quoted"
	case ShapeData:
		return "data"
	case ShapeRemark:
		return "remark"
	default:
		return "none"
	}
}

var fixedWidths = map[byte]int{
	OpHex:     2,
	OpLineRef: 2,
	OpInt:     2,
	OpByte:    1,
	OpSingle:  4,
}

// ShapeOf returns the payload shape of op.
func ShapeOf(op byte) Shape {
	switch op {
	case OpQuote:
		return ShapeQuoted
	case OpData:
		return ShapeData
	case OpRem:
		return ShapeRemark
	}
	if _, ok := fixedWidths[op]; ok {
		return ShapeFixed
	}
	return ShapeNone
}

// FixedWidth returns the payload width of a fixed-shape opcode, or 0.
func FixedWidth(op byte) int {
	return fixedWidths[op]
}
