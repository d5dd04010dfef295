// Package textdoc mirrors the text documents an editor has open, applying
// the incremental changes it sends and converting between byte offsets and
// LSP positions.
//
// Positions count characters in UTF-16 code units, as required by the
// language server protocol. Offsets are byte indexes into the UTF-8 content.
package textdoc

import (
	"slices"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Change is one content change of a didChange notification. A nil Range
// replaces the whole content with Text.
type Change struct {
	Range *protocol.Range
	Text  string
}

// Document is a single text buffer with a table of line start offsets.
//
// A Document is not safe for concurrent use; Store serializes access to the
// documents it owns.
type Document struct {
	languageID string
	version    int32
	content    string

	// lineOffsets[i] is the byte offset of the first byte of line i, so
	// lineOffsets[0] is always 0.
	lineOffsets []int
}

// NewDocument returns a document holding content.
func NewDocument(languageID string, version int32, content string) *Document {
	return &Document{
		languageID:  languageID,
		version:     version,
		content:     content,
		lineOffsets: computeLineOffsets(content),
	}
}

// LanguageID returns the language identifier given when the document was opened.
func (d *Document) LanguageID() string { return d.languageID }

// Version returns the version set by the most recent open or update.
func (d *Document) Version() int32 { return d.version }

// Content returns the full text of the document.
func (d *Document) Content() string { return d.content }

// Len returns the length of the content in bytes.
func (d *Document) Len() int { return len(d.content) }

// LineCount returns the number of lines. An empty document has one line, as
// does any text without a line terminator.
func (d *Document) LineCount() int { return len(d.lineOffsets) }

// Line returns the text of line i including its terminator, or "" if the
// document has no such line.
func (d *Document) Line(i int) string {
	if i < 0 || i >= len(d.lineOffsets) {
		return ""
	}
	start, end := d.lineSpan(i)
	return d.content[start:end]
}

// Text returns the content between the two ends of rng, or the whole content
// if rng is nil.
func (d *Document) Text(rng *protocol.Range) string {
	if rng == nil {
		return d.content
	}
	end := min(d.OffsetAt(rng.End), len(d.content))
	start := min(d.OffsetAt(rng.Start), end)
	return d.content[start:end]
}

// lineSpan returns the byte span of line i, including its terminator.
func (d *Document) lineSpan(i int) (start, end int) {
	start = d.lineOffsets[i]
	end = len(d.content)
	if i+1 < len(d.lineOffsets) {
		end = d.lineOffsets[i+1]
	}
	return start, end
}

// OffsetAt converts pos to a byte offset into the content.
//
// A line past the last line resolves to the end of the content. A character
// past the end of its line resolves to the end of the line, terminator
// included, which is where the next line starts. A character that falls
// between the two code units of a surrogate pair resolves to the start of
// the pair.
func (d *Document) OffsetAt(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(d.lineOffsets) {
		return len(d.content)
	}
	start, end := d.lineSpan(line)
	return start + byteIndex(d.content[start:end], pos.Character)
}

// PositionAt converts a byte offset into a position.
//
// The offset is clamped to the content. An offset inside a multi-byte
// character rounds down to the start of that character.
func (d *Document) PositionAt(offset int) protocol.Position {
	offset = min(max(offset, 0), len(d.content))
	line, found := slices.BinarySearch(d.lineOffsets, offset)
	if !found {
		line--
	}
	start := d.lineOffsets[line]
	return protocol.Position{
		Line:      uint32(line),
		Character: utf16Units(d.content[start:], offset-start),
	}
}

// canonical resolves pos to an offset and re-expresses it in the one form
// whose line actually contains that offset. The offset just past a line
// terminator can be written as the end of the line or as the start of the
// next one; canonical always picks the start of the next line.
func (d *Document) canonical(pos protocol.Position) (protocol.Position, int) {
	offset := d.OffsetAt(pos)
	line := int(pos.Line)
	if line >= len(d.lineOffsets) {
		return d.PositionAt(offset), offset
	}
	if line+1 < len(d.lineOffsets) && d.lineOffsets[line+1] == offset {
		return protocol.Position{Line: uint32(line + 1)}, offset
	}
	start := d.lineOffsets[line]
	return protocol.Position{
		Line:      pos.Line,
		Character: utf16Units(d.content[start:offset], offset-start),
	}, offset
}

// Update applies changes in order, each against the result of the previous
// one, then sets the version.
//
// A ranged change whose start lies after its end stops the update with an
// *InvalidRangeError. Changes before it stay applied and the version is not
// changed.
func (d *Document) Update(changes []Change, version int32) error {
	for _, c := range changes {
		if c.Range == nil {
			d.content = c.Text
			d.lineOffsets = computeLineOffsets(c.Text)
			continue
		}
		if err := d.replace(*c.Range, c.Text); err != nil {
			return err
		}
	}
	d.version = version
	return nil
}

// replace substitutes text for the span denoted by rng. Only the line starts
// inside the replaced span are recomputed; those after it are shifted.
func (d *Document) replace(rng protocol.Range, text string) error {
	start, startOffset := d.canonical(rng.Start)
	end, endOffset := d.canonical(rng.End)
	if startOffset > endOffset {
		return &InvalidRangeError{
			Start:       start,
			End:         end,
			StartOffset: startOffset,
			EndOffset:   endOffset,
		}
	}

	d.content = d.content[:startOffset] + text + d.content[endOffset:]

	// Entries up to start.Line lie at or before startOffset and entries
	// after end.Line lie after endOffset. A line starting exactly at
	// startOffset is rechecked, since the inserted text may join a "\r"
	// before it with a "\n".
	lo := int(start.Line) + 1
	if lo > 1 && d.lineOffsets[lo-1] == startOffset {
		lo--
	}
	hi := int(end.Line) + 1

	if delta := len(text) - (endOffset - startOffset); delta != 0 {
		for i := hi; i < len(d.lineOffsets); i++ {
			d.lineOffsets[i] += delta
		}
	}
	added := lineStarts(d.content, startOffset, startOffset+len(text))
	d.lineOffsets = slices.Replace(d.lineOffsets, lo, hi, added...)
	return nil
}
