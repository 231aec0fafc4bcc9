package commands

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultLanguage is used when a command does not name its LANG entry.
const DefaultLanguage = "en"

// ErrInvalidCommand is returned by Validate for incomplete descriptors.
var ErrInvalidCommand = errors.New("invalid command")

// Command describes a chat command registered with imbot.command.register.
type Command struct {
	// Command is the name typed after the slash, without it.
	Command string
	Title   string
	// Params is the usage hint shown next to the title.
	Params string
	// EventCommandAdd is the handler URL that receives ONIMCOMMANDADD.
	EventCommandAdd string
	// Visible lists the command in the chat command menu. Hidden by default.
	Visible         bool
	ExtranetSupport bool
	Language        string
}

// Normalize trims fields, strips a leading slash and fills defaults.
// eventURL is used when EventCommandAdd is empty.
func (c Command) Normalize(eventURL string) Command {
	c.Command = strings.TrimPrefix(strings.TrimSpace(c.Command), "/")
	c.Title = strings.TrimSpace(c.Title)
	c.Params = strings.TrimSpace(c.Params)
	c.EventCommandAdd = strings.TrimSpace(c.EventCommandAdd)
	if c.EventCommandAdd == "" {
		c.EventCommandAdd = strings.TrimSpace(eventURL)
	}
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return c
}

// Validate reports the first missing required field.
func (c Command) Validate() error {
	switch {
	case strings.TrimSpace(c.Command) == "":
		return fmt.Errorf("%w: COMMAND is required", ErrInvalidCommand)
	case strings.ContainsAny(strings.TrimSpace(c.Command), " \t\n"):
		return fmt.Errorf("%w: COMMAND %q contains whitespace", ErrInvalidCommand, c.Command)
	case strings.TrimSpace(c.Title) == "":
		return fmt.Errorf("%w: TITLE is required for %q", ErrInvalidCommand, c.Command)
	case strings.TrimSpace(c.Params) == "":
		return fmt.Errorf("%w: PARAMS is required for %q", ErrInvalidCommand, c.Command)
	case strings.TrimSpace(c.EventCommandAdd) == "":
		return fmt.Errorf("%w: EVENT_COMMAND_ADD is required for %q", ErrInvalidCommand, c.Command)
	}
	return nil
}
