package editor

import "strings"

// ToggleLinePrefix toggles a block marker ("# ", "- ", "1. ", "> ") on every
// line touched by sel, or on the cursor line when sel is empty.
//
// Blank lines are left alone. A line that already carries prefix loses it, a
// line carrying a different heading marker has that marker replaced, and any
// other line gains prefix. The returned selection spans the rewritten lines.
func ToggleLinePrefix(buffer string, sel Selection, prefix string) (string, Selection) {
	runes := []rune(buffer)
	sel = clampSelection(sel, len(runes))

	lastCovered := sel.End
	if !sel.IsEmpty() {
		lastCovered = sel.End - 1
	}
	blockStart := lineStart(runes, sel.Start)
	blockEnd := lineEnd(runes, lastCovered)

	lines := strings.Split(string(runes[blockStart:blockEnd]), "\n")
	for index, line := range lines {
		lines[index] = toggleLine(line, prefix)
	}
	block := strings.Join(lines, "\n")

	var out strings.Builder
	out.WriteString(string(runes[:blockStart]))
	out.WriteString(block)
	out.WriteString(string(runes[blockEnd:]))
	return out.String(), Selection{Start: blockStart, End: blockStart + runeCount(block)}
}

func toggleLine(line, prefix string) string {
	if strings.TrimSpace(line) == "" {
		return line
	}
	if strings.HasPrefix(line, prefix) {
		return line[len(prefix):]
	}
	if n := headingMarkerLen(line); n > 0 {
		return prefix + line[n:]
	}
	return prefix + line
}

// headingMarkerLen returns the byte length of a leading "#… " marker, or 0.
func headingMarkerLen(line string) int {
	hashes := 0
	for hashes < len(line) && line[hashes] == '#' {
		hashes++
	}
	if hashes == 0 || hashes >= len(line) || line[hashes] != ' ' {
		return 0
	}
	return hashes + 1
}

func lineStart(runes []rune, offset int) int {
	for i := offset; i > 0; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return 0
}

func lineEnd(runes []rune, offset int) int {
	for i := offset; i < len(runes); i++ {
		if runes[i] == '\n' {
			return i
		}
	}
	return len(runes)
}
