package textdoc

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nalgeon/be"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func pos(line, character uint32) protocol.Position {
	return protocol.Position{Line: line, Character: character}
}

func rng(startLine, startChar, endLine, endChar uint32) *protocol.Range {
	return &protocol.Range{Start: pos(startLine, startChar), End: pos(endLine, endChar)}
}

// mixedDocument uses all three line terminators.
func mixedDocument() *Document {
	return NewDocument("js", 2, "he\nllo\nworld\r\nfoo\rbar")
}

func TestLineOffsets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []int
	}{
		{name: "empty", text: "", want: []int{0}},
		{name: "no_terminator", text: "abc", want: []int{0}},
		{name: "mixed", text: "he\nllo\nworld\r\nfoo\rbar", want: []int{0, 3, 7, 14, 18}},
		{name: "trailing_lf", text: "a\n", want: []int{0, 2}},
		{name: "trailing_cr", text: "a\r", want: []int{0, 2}},
		{name: "crlf_only", text: "\r\n\r\n", want: []int{0, 2, 4}},
		{name: "lf_cr", text: "\n\r", want: []int{0, 1, 2}},
		{name: "euro", text: "€ abc\nline 2", want: []int{0, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := NewDocument("text", 0, tt.text)
			be.Equal(t, doc.lineOffsets, tt.want)
			be.Equal(t, doc.LineCount(), len(tt.want))
		})
	}
}

func TestOffsetAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want int
	}{
		{name: "second_line", text: "he\nllo\nworld\r\nfoo\rbar", pos: pos(1, 1), want: 4},
		{name: "third_line", text: "he\nllo\nworld\r\nfoo\rbar", pos: pos(2, 3), want: 10},
		{name: "after_crlf", text: "he\nllo\nworld\r\nfoo\rbar", pos: pos(3, 1), want: 15},
		{name: "after_cr", text: "he\nllo\nworld\r\nfoo\rbar", pos: pos(4, 0), want: 18},
		{name: "past_last_line", text: "he\nllo\nworld\r\nfoo\rbar", pos: pos(100, 0), want: 21},
		{name: "bmp", text: "€ euro", pos: pos(0, 2), want: 4},
		{name: "surrogate_pair", text: "\U00010437 yee", pos: pos(0, 3), want: 5},
		{name: "inside_surrogate_pair", text: "\U00010437 yee", pos: pos(0, 1), want: 0},
		{name: "after_surrogate_pair", text: "\U00010437 yee", pos: pos(0, 2), want: 4},
		{name: "beyond_end_of_line", text: "€ abc\nline 2", pos: pos(0, 100), want: 8},
		{name: "beyond_end_of_last_line", text: "€ abc\nline 2", pos: pos(1, 100), want: 14},
		{name: "empty_document", text: "", pos: pos(0, 5), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := NewDocument("text", 0, tt.text)
			be.Equal(t, doc.OffsetAt(tt.pos), tt.want)
		})
	}
}

func TestPositionAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		offset int
		want   protocol.Position
	}{
		{name: "line_start", text: "he\nllo\nworld\r\nfoo\rbar", offset: 0, want: pos(0, 0)},
		{name: "inside_world", text: "he\nllo\nworld\r\nfoo\rbar", offset: 11, want: pos(2, 4)},
		{name: "inside_foo", text: "he\nllo\nworld\r\nfoo\rbar", offset: 15, want: pos(3, 1)},
		{name: "between_cr_and_lf", text: "he\nllo\nworld\r\nfoo\rbar", offset: 13, want: pos(2, 6)},
		{name: "negative", text: "he\nllo", offset: -3, want: pos(0, 0)},
		{name: "past_end", text: "he\nllo", offset: 100, want: pos(1, 3)},
		{name: "bmp", text: "€ euro", offset: 4, want: pos(0, 2)},
		{name: "bmp_multiline", text: "\n\n€ euro\n\n", offset: 6, want: pos(2, 2)},
		{name: "surrogate_pair", text: "\U00010437 yee", offset: 5, want: pos(0, 3)},
		{name: "inside_surrogate_pair", text: "\U00010437 yee", offset: 2, want: pos(0, 0)},
		{name: "surrogate_pair_multiline", text: "\n\n\U00010437 yee\n\n", offset: 7, want: pos(2, 3)},
		{name: "trailing_newline", text: "abc\n", offset: 4, want: pos(1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := NewDocument("text", 0, tt.text)
			be.Equal(t, doc.PositionAt(tt.offset), tt.want)
		})
	}
}

func TestMultiplePositionsSameOffset(t *testing.T) {
	t.Parallel()
	doc := mixedDocument()

	startOfSecondLine := doc.OffsetAt(pos(1, 0))
	be.Equal(t, doc.OffsetAt(pos(0, 3)), startOfSecondLine)
	be.Equal(t, doc.OffsetAt(pos(0, 10_000)), startOfSecondLine)

	for _, p := range []protocol.Position{pos(0, 3), pos(0, 10_000), pos(1, 0)} {
		got, offset := doc.canonical(p)
		be.Equal(t, got, pos(1, 0))
		be.Equal(t, offset, 3)
	}
}

func TestCanonical(t *testing.T) {
	t.Parallel()
	doc := NewDocument("text", 0, "abc\ndef")

	got, offset := doc.canonical(pos(0, 2))
	be.Equal(t, got, pos(0, 2))
	be.Equal(t, offset, 2)

	// The last line has no next line to move to.
	got, offset = doc.canonical(pos(1, 100))
	be.Equal(t, got, pos(1, 3))
	be.Equal(t, offset, 7)

	got, offset = doc.canonical(pos(7, 1))
	be.Equal(t, got, pos(1, 3))
	be.Equal(t, offset, 7)
}

func TestText(t *testing.T) {
	t.Parallel()
	doc := mixedDocument()

	be.Equal(t, doc.Text(nil), "he\nllo\nworld\r\nfoo\rbar")
	be.Equal(t, doc.Text(rng(0, 0, 1, 2)), "he\nll")
	be.Equal(t, doc.Text(rng(0, 0, 100, 100)), doc.Content())
	be.Equal(t, doc.Text(rng(1, 0, 2, 3)), "llo\nwor")
	be.Equal(t, doc.Text(rng(2, 0, 1, 0)), "")

	euro := NewDocument("text", 0, "€ euro")
	be.Equal(t, euro.Text(rng(0, 0, 0, 1)), "€")
	be.Equal(t, euro.Text(rng(0, 2, 0, 3)), "e")

	yee := NewDocument("text", 0, "\U00010437 yee")
	be.Equal(t, yee.Text(rng(0, 0, 0, 2)), "\U00010437")
}

func TestLine(t *testing.T) {
	t.Parallel()
	doc := mixedDocument()
	be.Equal(t, doc.Line(0), "he\n")
	be.Equal(t, doc.Line(2), "world\r\n")
	be.Equal(t, doc.Line(4), "bar")
	be.Equal(t, doc.Line(5), "")
	be.Equal(t, doc.Line(-1), "")
}

func TestUpdateFullContent(t *testing.T) {
	t.Parallel()
	doc := mixedDocument()

	err := doc.Update([]Change{{Text: "hello\n js!"}}, 1)
	be.Err(t, err, nil)
	be.Equal(t, doc.Content(), "hello\n js!")
	be.Equal(t, doc.lineOffsets, []int{0, 6})
	be.Equal(t, doc.Version(), int32(1))
}

func TestUpdatePartialContent(t *testing.T) {
	t.Parallel()

	t.Run("mixed_terminators", func(t *testing.T) {
		t.Parallel()
		doc := mixedDocument()
		be.Equal(t, doc.Version(), int32(2))

		err := doc.Update([]Change{{Range: rng(1, 0, 1, 3), Text: "xx\ny"}}, 1)
		be.Err(t, err, nil)
		be.Equal(t, doc.Content(), "he\nxx\ny\nworld\r\nfoo\rbar")
		be.Equal(t, doc.lineOffsets, []int{0, 3, 6, 8, 15, 19})
		be.Equal(t, doc.Version(), int32(1))
	})

	t.Run("three_lines", func(t *testing.T) {
		t.Parallel()
		doc := NewDocument("text", 0, "he\nllo\nworld")

		err := doc.Update([]Change{{Range: rng(1, 0, 1, 3), Text: "xx\ny"}}, 1)
		be.Err(t, err, nil)
		be.Equal(t, doc.Content(), "he\nxx\ny\nworld")
		be.Equal(t, doc.lineOffsets, []int{0, 3, 6, 8})
		be.Equal(t, doc.Version(), int32(1))
	})

	t.Run("positions_after_newline_at_end_of_line", func(t *testing.T) {
		t.Parallel()
		doc := NewDocument("text", 0, "0:1332533\n0:1332534\n0:1332535\n0:1332536\n")

		// Both ends sit just after the "\n" ending their line.
		err := doc.Update([]Change{{
			Range: rng(1, 10, 2, 10),
			Text:  "1:6188912\n1:6188913\n1:6188914\n",
		}}, 1)
		be.Err(t, err, nil)
		be.Equal(t, doc.Content(), "0:1332533\n0:1332534\n"+
			"1:6188912\n1:6188913\n1:6188914\n"+
			"0:1332536\n")
		be.Equal(t, doc.lineOffsets, []int{0, 10, 20, 30, 40, 50, 60})
	})

	t.Run("insert_lines_mid_line", func(t *testing.T) {
		t.Parallel()
		doc := NewDocument("text", 0, "123456789\n123456789\n")
		be.Equal(t, doc.lineOffsets, []int{0, 10, 20})

		err := doc.Update([]Change{{Range: rng(1, 5, 1, 5), Text: "\nA\nB\nC\n"}}, 1)
		be.Err(t, err, nil)
		be.Equal(t, doc.Content(), "123456789\n12345\nA\nB\nC\n6789\n")
		be.Equal(t, doc.lineOffsets, []int{0, 10, 16, 18, 20, 22, 27})
	})

	t.Run("delete_across_lines", func(t *testing.T) {
		t.Parallel()
		doc := NewDocument("text", 0, "one\ntwo\nthree\nfour")

		err := doc.Update([]Change{{Range: rng(0, 1, 2, 2), Text: ""}}, 3)
		be.Err(t, err, nil)
		be.Equal(t, doc.Content(), "oree\nfour")
		be.Equal(t, doc.lineOffsets, []int{0, 5})
	})

	t.Run("sequential_changes", func(t *testing.T) {
		t.Parallel()
		doc := NewDocument("text", 0, "abc")

		err := doc.Update([]Change{
			{Range: rng(0, 3, 0, 3), Text: "\ndef"},
			{Range: rng(1, 0, 1, 0), Text: ">"},
			{Text: "x\ry"},
			{Range: rng(1, 1, 1, 1), Text: "\r\n"},
		}, 7)
		be.Err(t, err, nil)
		be.Equal(t, doc.Content(), "x\ry\r\n")
		be.Equal(t, doc.lineOffsets, []int{0, 2, 5})
		be.Equal(t, doc.Version(), int32(7))
	})

	t.Run("surrogate_pair", func(t *testing.T) {
		t.Parallel()
		doc := NewDocument("text", 0, "a\U00010437b\nc")

		err := doc.Update([]Change{{Range: rng(0, 1, 0, 3), Text: "€"}}, 1)
		be.Err(t, err, nil)
		be.Equal(t, doc.Content(), "a€b\nc")
		be.Equal(t, doc.lineOffsets, []int{0, 6})
	})
}

func TestUpdateAtTerminatorBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		change Change
		want   string
	}{
		// "\r" + "\n" become one terminator.
		{name: "join_cr_lf", text: "a\rb", change: Change{Range: rng(1, 0, 1, 0), Text: "\n"}, want: "a\r\nb"},
		{name: "join_cr_lf_by_delete", text: "a\rx\nb", change: Change{Range: rng(1, 0, 1, 1), Text: ""}, want: "a\r\nb"},
		// Inserting between "\r" and "\n" splits one terminator into two.
		{name: "split_crlf", text: "a\r\nb", change: Change{Range: rng(0, 2, 0, 2), Text: "x"}, want: "a\rx\nb"},
		{name: "insert_cr_before_lf", text: "a\nb", change: Change{Range: rng(0, 1, 0, 1), Text: "\r"}, want: "a\r\nb"},
		{name: "delete_lf_of_crlf", text: "a\r\nb", change: Change{Range: rng(0, 2, 1, 0), Text: ""}, want: "a\rb"},
		{name: "delete_cr_of_crlf", text: "a\r\nb", change: Change{Range: rng(0, 1, 0, 2), Text: ""}, want: "a\nb"},
		{name: "empty_document", text: "", change: Change{Range: rng(0, 0, 0, 0), Text: "\r\n\r"}, want: "\r\n\r"},
		{name: "replace_everything", text: "a\nb\rc", change: Change{Range: rng(0, 0, 9, 9), Text: "z"}, want: "z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := NewDocument("text", 0, tt.text)
			err := doc.Update([]Change{tt.change}, 1)
			be.Err(t, err, nil)
			be.Equal(t, doc.Content(), tt.want)
			be.Equal(t, doc.lineOffsets, computeLineOffsets(tt.want))
		})
	}
}

func TestUpdateInvalidRange(t *testing.T) {
	t.Parallel()
	doc := mixedDocument()

	err := doc.Update([]Change{{Range: rng(2, 0, 1, 0), Text: ""}}, 1)
	be.Err(t, err, ErrInvalidRange)
	be.Err(t, err, "2:0 (offset 7) is not <= 1:0 (offset 3)")

	var rangeErr *InvalidRangeError
	be.True(t, errors.As(err, &rangeErr))
	be.Equal(t, rangeErr.StartOffset, 7)
	be.Equal(t, rangeErr.EndOffset, 3)

	// The document and its version are left alone.
	be.Equal(t, doc.Content(), "he\nllo\nworld\r\nfoo\rbar")
	be.Equal(t, doc.Version(), int32(2))
}

func TestUpdateEmptyChangesSetsVersion(t *testing.T) {
	t.Parallel()
	doc := mixedDocument()
	be.Err(t, doc.Update(nil, 42), nil)
	be.Equal(t, doc.Version(), int32(42))
	be.Equal(t, doc.Content(), "he\nllo\nworld\r\nfoo\rbar")
}

var fragments = []string{"a", "bc", " ", "€", "\U00010437", "\n", "\r", "\r\n", "é"}

func randomText(r *rand.Rand, n int) string {
	var b strings.Builder
	for range n {
		b.WriteString(fragments[r.IntN(len(fragments))])
	}
	return b.String()
}

func randomPosition(r *rand.Rand, doc *Document) protocol.Position {
	line := r.IntN(doc.LineCount() + 1)
	return pos(uint32(line), uint32(r.IntN(12)))
}

// charBoundaries lists the offsets at which a character starts, plus the end.
func charBoundaries(s string) []int {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))

	for range 200 {
		doc := NewDocument("text", 0, randomText(r, r.IntN(40)))
		for _, offset := range charBoundaries(doc.Content()) {
			be.Equal(t, doc.OffsetAt(doc.PositionAt(offset)), offset)
		}
		for range 20 {
			p := randomPosition(r, doc)
			want, _ := doc.canonical(p)
			got, _ := doc.canonical(doc.PositionAt(doc.OffsetAt(p)))
			be.Equal(t, got, want)
		}
	}
}

func TestIncrementalMatchesFullRecompute(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(3, 4))

	for range 300 {
		doc := NewDocument("text", 0, randomText(r, r.IntN(30)))
		for version := range int32(15) {
			start, end := randomPosition(r, doc), randomPosition(r, doc)
			if doc.OffsetAt(start) > doc.OffsetAt(end) {
				start, end = end, start
			}
			text := randomText(r, r.IntN(4))
			before := doc.Content()
			so, eo := doc.OffsetAt(start), doc.OffsetAt(end)

			err := doc.Update([]Change{{Range: &protocol.Range{Start: start, End: end}, Text: text}}, version)
			be.Err(t, err, nil)

			want := before[:so] + text + before[eo:]
			be.Equal(t, doc.Content(), want)
			be.Equal(t, doc.lineOffsets, computeLineOffsets(want))
			be.True(t, utf8.ValidString(doc.Content()))
		}
	}
}
