package textutil

import "unicode"

// Wrap splits s into lines of at most width runes. Whitespace is kept where it
// falls, words longer than a line are broken, and lines are filled greedily
// word by word.
func Wrap(s string, width int) []string {
	if width < 1 {
		width = 1
	}

	chunks := splitChunks([]rune(s))
	var lines []string

	for len(chunks) > 0 {
		var cur []rune

		for len(chunks) > 0 && len(cur)+len(chunks[0]) <= width {
			cur = append(cur, chunks[0]...)
			chunks = chunks[1:]
		}

		// Break a word that cannot fit on any line on its own.
		if len(chunks) > 0 && len(chunks[0]) > width {
			spaceLeft := width - len(cur)
			cur = append(cur, chunks[0][:spaceLeft]...)
			chunks[0] = chunks[0][spaceLeft:]
		}

		if len(cur) > 0 {
			lines = append(lines, string(cur))
		}
	}

	return lines
}

// splitChunks splits text into alternating runs of whitespace and
// non-whitespace, and splits words after inner hyphens such as "long-term".
func splitChunks(text []rune) [][]rune {
	var chunks [][]rune
	start := 0
	for i := 1; i <= len(text); i++ {
		if i == len(text) || unicode.IsSpace(text[i]) != unicode.IsSpace(text[start]) || hyphenBreak(text, i) {
			chunks = append(chunks, text[start:i])
			start = i
		}
	}
	return chunks
}

// hyphenBreak reports whether a word may break before text[i], right after a
// hyphen. The hyphen needs two letters (or letter, hyphen, letter) before it
// and a letter, an optional hyphen and a letter after it.
func hyphenBreak(text []rune, i int) bool {
	at := func(j int) rune {
		if j < 0 || j >= len(text) {
			return 0
		}
		return text[j]
	}
	if i < 3 || at(i-1) != '-' {
		return false
	}
	before := isLetter(at(i-2)) && (isLetter(at(i-3)) || at(i-3) == '-' && isLetter(at(i-4)))
	after := isLetter(at(i)) && (isLetter(at(i+1)) || at(i+1) == '-' && isLetter(at(i+2)))
	return before && after
}

func isLetter(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
