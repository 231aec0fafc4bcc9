// Package keyboard builds the KEYBOARD parameter of imbot messages: an
// ordered button list where rows are separated by NEWLINE items.
package keyboard

import (
	"strconv"
	"strings"
)

// Button defaults applied by the builder.
const (
	DefaultBgColor      = "#29619b"
	DefaultBgColorToken = "base"
	DefaultTextColor    = "#fff"
	DefaultDisplay      = "LINE"
	DefaultWidth        = 200
)

// Background color tokens understood by the chat client.
const (
	TokenPrimary   = "primary"
	TokenSecondary = "secondary"
	TokenAlert     = "alert"
	TokenBase      = "base"
)

// Client-side button actions, used instead of a bot command.
const (
	ActionPut    = "PUT"
	ActionSend   = "SEND"
	ActionCopy   = "COPY"
	ActionCall   = "CALL"
	ActionDialog = "DIALOG"
)

// Button is a single keyboard button.
type Button struct {
	Text          string
	Command       string
	CommandParams string
	Link          string
	Action        string
	ActionValue   string
	BgColor       string
	BgColorToken  string
	TextColor     string
	Display       string
	Block         bool
	Disabled      bool
	Width         int
}

// ButtonOption customises a Button.
type ButtonOption func(*Button)

// NewButton returns a button with the default look: blocking, LINE display,
// 200px wide, white text on the base color.
func NewButton(text string, opts ...ButtonOption) Button {
	b := Button{
		Text:         text,
		BgColor:      DefaultBgColor,
		BgColorToken: DefaultBgColorToken,
		TextColor:    DefaultTextColor,
		Display:      DefaultDisplay,
		Block:        true,
		Width:        DefaultWidth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

// Command makes the button send a bot command with params.
func Command(name, params string) ButtonOption {
	return func(b *Button) {
		b.Command = strings.TrimPrefix(strings.TrimSpace(name), "/")
		b.CommandParams = params
	}
}

// CommandInt is Command with numeric params.
func CommandInt(name string, params int64) ButtonOption {
	return Command(name, strconv.FormatInt(params, 10))
}

// Link makes the button open url.
func Link(url string) ButtonOption {
	return func(b *Button) { b.Link = url }
}

// Action binds a client-side action such as ActionPut or ActionCopy.
func Action(action, value string) ButtonOption {
	return func(b *Button) {
		b.Action = strings.ToUpper(strings.TrimSpace(action))
		b.ActionValue = value
	}
}

// Width sets the button width in pixels; zero omits it.
func Width(px int) ButtonOption {
	return func(b *Button) { b.Width = px }
}

// Colors overrides background and text colors; empty values omit the field.
func Colors(bg, text string) ButtonOption {
	return func(b *Button) {
		b.BgColor = bg
		b.TextColor = text
	}
}

// Token sets the background color token.
func Token(token string) ButtonOption {
	return func(b *Button) { b.BgColorToken = token }
}

// Display sets the display mode, LINE or BLOCK.
func Display(mode string) ButtonOption {
	return func(b *Button) { b.Display = strings.ToUpper(mode) }
}

// Block controls whether the keyboard is locked after a press.
func Block(on bool) ButtonOption {
	return func(b *Button) { b.Block = on }
}

// Disabled renders the button inactive.
func Disabled(on bool) ButtonOption {
	return func(b *Button) { b.Disabled = on }
}

// Params renders the button as REST parameters.
func (b Button) Params() any {
	out := map[string]any{"TEXT": b.Text}
	if b.Command != "" {
		out["COMMAND"] = b.Command
	}
	if b.CommandParams != "" {
		out["COMMAND_PARAMS"] = b.CommandParams
	}
	if b.Link != "" {
		out["LINK"] = b.Link
	}
	if b.Action != "" {
		out["ACTION"] = b.Action
		out["ACTION_VALUE"] = b.ActionValue
	}
	if b.BgColor != "" {
		out["BG_COLOR"] = b.BgColor
	}
	if b.BgColorToken != "" {
		out["BG_COLOR_TOKEN"] = b.BgColorToken
	}
	if b.TextColor != "" {
		out["TEXT_COLOR"] = b.TextColor
	}
	if b.Display != "" {
		out["DISPLAY"] = b.Display
	}
	out["BLOCK"] = yn(b.Block)
	if b.Width > 0 {
		out["WIDTH"] = b.Width
	}
	out["DISABLED"] = yn(b.Disabled)
	return out
}

func yn(v bool) string {
	if v {
		return "Y"
	}
	return "N"
}
