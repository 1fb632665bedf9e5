package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

// ErrEncoding is returned when text cannot be converted to or from Shift-JIS.
var ErrEncoding = errors.New("shift-jis encoding")

// DecodeSJIS converts Shift-JIS bytes to a UTF-8 string. Bytes that do not form
// a valid Shift-JIS sequence make the whole conversion fail.
func DecodeSJIS(b []byte) (string, error) {
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	// The decoder substitutes invalid input instead of failing.
	if !utf8.Valid(out) || strings.ContainsRune(string(out), utf8.RuneError) {
		return "", fmt.Errorf("%w: invalid byte sequence % x", ErrEncoding, b)
	}
	return string(out), nil
}

// EncodeSJIS converts a UTF-8 string to Shift-JIS bytes.
func EncodeSJIS(s string) ([]byte, error) {
	out, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrEncoding, s, err)
	}
	return out, nil
}

// ContainsJapanese checks if a string contains kana or kanji.
func ContainsJapanese(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

// IsNumber reports whether a DATA field holds a numeric literal rather than text.
func IsNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Hash computes a SHA-256 hex hash of a string for deduplication.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
