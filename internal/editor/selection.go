// Package editor implements the pure text transformations behind the journal
// toolbar. Buffers are flat strings with inline markup; offsets are counted in
// runes.
package editor

// Selection is a half-open rune range [Start, End) over a buffer.
type Selection struct {
	Start int
	End   int
}

// NewSelection orders the raw offsets and clamps them into the buffer bounds.
func NewSelection(buffer string, anchor, head int) Selection {
	return clampSelection(Selection{Start: anchor, End: head}, runeCount(buffer))
}

// Collapse returns an empty selection (a cursor) at offset.
func Collapse(offset int) Selection {
	return Selection{Start: offset, End: offset}
}

// IsEmpty reports whether the selection is a bare cursor.
func (s Selection) IsEmpty() bool {
	return s.Start == s.End
}

// Len returns the number of selected runes.
func (s Selection) Len() int {
	return s.End - s.Start
}

// Clamp normalizes the selection against buffer.
func (s Selection) Clamp(buffer string) Selection {
	return clampSelection(s, runeCount(buffer))
}

func clampSelection(s Selection, length int) Selection {
	if s.Start > s.End {
		s.Start, s.End = s.End, s.Start
	}
	return Selection{
		Start: clampInt(s.Start, 0, length),
		End:   clampInt(s.End, 0, length),
	}
}

func clampInt(v, min, max int) int {
	if max < min {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func runeCount(buffer string) int {
	return len([]rune(buffer))
}
