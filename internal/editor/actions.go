package editor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAction indicates a toolbar action name that is not recognized.
	ErrUnknownAction = errors.New("editor: unknown action")
	// ErrInvalidColor indicates a span color outside the accepted character set.
	ErrInvalidColor = errors.New("editor: invalid color")
)

// ActionKind enumerates toolbar actions.
type ActionKind string

const (
	ActionBold      ActionKind = "bold"
	ActionItalic    ActionKind = "italic"
	ActionStrike    ActionKind = "strike"
	ActionCode      ActionKind = "code"
	ActionHighlight ActionKind = "highlight"
	ActionColor     ActionKind = "color"
	ActionHeading1  ActionKind = "h1"
	ActionHeading2  ActionKind = "h2"
	ActionHeading3  ActionKind = "h3"
	ActionBullet    ActionKind = "bullet"
	ActionNumbered  ActionKind = "numbered"
	ActionQuote     ActionKind = "quote"
)

var wrapMarkers = map[ActionKind]string{
	ActionBold:      "**",
	ActionItalic:    "*",
	ActionStrike:    "~~",
	ActionCode:      "`",
	ActionHighlight: "==",
}

var linePrefixes = map[ActionKind]string{
	ActionHeading1: "# ",
	ActionHeading2: "## ",
	ActionHeading3: "### ",
	ActionBullet:   "- ",
	ActionNumbered: "1. ",
	ActionQuote:    "> ",
}

// Action is a toolbar action. Color is only meaningful for ActionColor.
type Action struct {
	Kind  ActionKind
	Color string
}

// ParseAction resolves a toolbar action by name. Color actions take their value
// after a colon, e.g. "color:#d33".
func ParseAction(raw string) (Action, error) {
	name, argument, _ := strings.Cut(strings.TrimSpace(raw), ":")
	kind := ActionKind(strings.ToLower(name))
	if kind == ActionColor {
		if _, _, err := ColorSpan(argument); err != nil {
			return Action{}, err
		}
		return Action{Kind: kind, Color: strings.TrimSpace(argument)}, nil
	}
	if _, ok := wrapMarkers[kind]; ok {
		return Action{Kind: kind}, nil
	}
	if _, ok := linePrefixes[kind]; ok {
		return Action{Kind: kind}, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

// IsLineAction reports whether the action applies per line.
func (a Action) IsLineAction() bool {
	_, ok := linePrefixes[a.Kind]
	return ok
}

// Apply runs action over buffer and sel, returning the new buffer and the
// selection to re-apply.
func Apply(buffer string, sel Selection, action Action) (string, Selection, error) {
	if prefix, ok := linePrefixes[action.Kind]; ok {
		text, next := ToggleLinePrefix(buffer, sel, prefix)
		return text, next, nil
	}
	if marker, ok := wrapMarkers[action.Kind]; ok {
		text, next := ToggleWrap(buffer, sel, marker, marker)
		return text, next, nil
	}
	if action.Kind == ActionColor {
		open, closing, err := ColorSpan(action.Color)
		if err != nil {
			return buffer, sel, err
		}
		text, next := ToggleWrap(buffer, sel, open, closing)
		return text, next, nil
	}
	return buffer, sel, fmt.Errorf("%w: %q", ErrUnknownAction, action.Kind)
}
