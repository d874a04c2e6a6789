package editor

import (
	"fmt"
	"strings"
)

// ToggleWrap adds or removes a prefix/suffix marker pair around sel.
//
// When the runes immediately outside sel already spell prefix and suffix, both
// markers are removed. Otherwise the markers are inserted around the selected
// text; the returned selection keeps covering that text, which for an empty
// selection places the cursor between the two markers.
func ToggleWrap(buffer string, sel Selection, prefix, suffix string) (string, Selection) {
	runes := []rune(buffer)
	sel = clampSelection(sel, len(runes))
	pre := []rune(prefix)
	suf := []rune(suffix)

	if markerBefore(runes, sel.Start, pre) && markerAfter(runes, sel.End, suf) {
		out := make([]rune, 0, len(runes)-len(pre)-len(suf))
		out = append(out, runes[:sel.Start-len(pre)]...)
		out = append(out, runes[sel.Start:sel.End]...)
		out = append(out, runes[sel.End+len(suf):]...)
		return string(out), Selection{Start: sel.Start - len(pre), End: sel.End - len(pre)}
	}

	out := make([]rune, 0, len(runes)+len(pre)+len(suf))
	out = append(out, runes[:sel.Start]...)
	out = append(out, pre...)
	out = append(out, runes[sel.Start:sel.End]...)
	out = append(out, suf...)
	out = append(out, runes[sel.End:]...)
	return string(out), Selection{Start: sel.Start + len(pre), End: sel.End + len(pre)}
}

func markerBefore(runes []rune, offset int, marker []rune) bool {
	if offset < len(marker) {
		return false
	}
	return string(runes[offset-len(marker):offset]) == string(marker)
}

func markerAfter(runes []rune, offset int, marker []rune) bool {
	if offset+len(marker) > len(runes) {
		return false
	}
	return string(runes[offset:offset+len(marker)]) == string(marker)
}

// ColorSpan returns the marker pair for an inline colored span. Colors are
// limited to CSS names, hex literals and rgb() notation.
func ColorSpan(color string) (string, string, error) {
	trimmed := strings.TrimSpace(color)
	if trimmed == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidColor)
	}
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '#', r == '(', r == ')', r == ',', r == '.', r == ' ', r == '%':
		default:
			return "", "", fmt.Errorf("%w: %q", ErrInvalidColor, color)
		}
	}
	return fmt.Sprintf(`<span style="color: %s">`, trimmed), "</span>", nil
}
