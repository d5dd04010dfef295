package textdoc

import (
	"unicode/utf16"
	"unicode/utf8"
)

// computeLineOffsets returns the start offset of every line in text.
func computeLineOffsets(text string) []int {
	return append([]int{0}, lineStarts(text, 1, len(text))...)
}

// lineStarts returns every offset p in [lo, hi] at which a line begins in
// text. A line begins after "\n", after "\r\n" (one boundary), and after a
// "\r" that is not followed by "\n".
func lineStarts(text string, lo, hi int) []int {
	lo = max(lo, 1)
	hi = min(hi, len(text))
	var starts []int
	for p := lo; p <= hi; p++ {
		if isLineStart(text, p) {
			starts = append(starts, p)
		}
	}
	return starts
}

// isLineStart reports whether a line begins at offset p, 0 < p <= len(text).
func isLineStart(text string, p int) bool {
	switch text[p-1] {
	case '\n':
		return true
	case '\r':
		return p == len(text) || text[p] != '\n'
	}
	return false
}

// utf16Width is the number of UTF-16 code units needed to encode r.
// Invalid runes count as a single unit.
func utf16Width(r rune) uint32 {
	if n := utf16.RuneLen(r); n > 0 {
		return uint32(n)
	}
	return 1
}

// utf16Units counts the UTF-16 code units of the characters lying entirely
// within the first n bytes of s. A character straddling n is not counted.
func utf16Units(s string, n int) uint32 {
	var units uint32
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if i+size > n {
			break
		}
		units += utf16Width(r)
		i += size
	}
	return units
}

// byteIndex returns the byte index in s of the character containing UTF-16
// unit number character, or len(s) when s is shorter than that.
func byteIndex(s string, character uint32) int {
	var units uint32
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		w := utf16Width(r)
		if units+w > character {
			return i
		}
		units += w
		i += size
	}
	return len(s)
}
