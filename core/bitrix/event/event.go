// Package event turns raw webhook records into typed, read-only events.
package event

import (
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Kind is the explicit discriminant of an Event.
type Kind uint8

const (
	// KindUnknown marks records with an unrecognised discriminant.
	KindUnknown Kind = iota
	// KindMessage marks a free-text message to the bot.
	KindMessage
	// KindCommand marks a command invocation.
	KindCommand
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Command field names after prefix stripping and lower-casing.
const (
	CommandKeyName      = "command"
	CommandKeyID        = "command_id"
	CommandKeyParams    = "command_params"
	CommandKeyMessageID = "message_id"
)

// Event is an immutable view over a Record tagged as a message or a command.
// The zero value is an unknown event with no fields.
type Event struct {
	kind Kind
	rec  Record
	cmd  map[string]string
	doc  *document
}

type document struct {
	once sync.Once
	raw  []byte
}

// NewMessage builds a message event from rec.
func NewMessage(rec Record) Event {
	return Event{kind: KindMessage, rec: rec, doc: &document{}}
}

// NewCommand builds a command event from rec, parsing its command block.
func NewCommand(rec Record) Event {
	return Event{kind: KindCommand, rec: rec, cmd: ParseCommandFields(rec), doc: &document{}}
}

// Parse classifies rec by its discriminant field.
func Parse(rec Record) (Event, bool) {
	switch rec.Discriminant() {
	case EventMessageAdd:
		return NewMessage(rec), true
	case EventCommandAdd:
		return NewCommand(rec), true
	default:
		return Event{}, false
	}
}

// ParseCommandFields extracts data[COMMAND][i][KEY] entries into a flat
// mapping keyed by lower-cased KEY. When several command blocks are present
// the lowest index wins.
func ParseCommandFields(rec Record) map[string]string {
	out := make(map[string]string)
	from := make(map[string]string)
	for key, value := range rec {
		if !strings.HasPrefix(key, commandPrefix) {
			continue
		}
		segs := SplitKey(key)
		if len(segs) < 4 {
			continue
		}
		idx, name := segs[2], strings.ToLower(segs[3])
		if prev, seen := from[name]; seen && !indexLess(idx, prev) {
			continue
		}
		from[name] = idx
		out[name] = value
	}
	return out
}

func indexLess(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}

// Kind returns the event discriminant.
func (e Event) Kind() Kind { return e.kind }

// IsMessage reports whether e is a message event.
func (e Event) IsMessage() bool { return e.kind == KindMessage }

// IsCommand reports whether e is a command event.
func (e Event) IsCommand() bool { return e.kind == KindCommand }

// Text returns the message text; commands carry no free text.
func (e Event) Text() string {
	if e.kind != KindMessage {
		return ""
	}
	return e.rec.Get(FieldMessage)
}

// MessageID returns the id of the message the event refers to.
func (e Event) MessageID() int64 {
	if id := parseInt(e.rec.Get(FieldMessageID)); id != 0 {
		return id
	}
	if e.kind == KindCommand {
		return parseInt(e.cmd[CommandKeyMessageID])
	}
	return 0
}

// DialogID returns the raw dialog identifier as sent by the portal.
func (e Event) DialogID() string {
	return strings.TrimSpace(e.rec.Get(FieldDialogID))
}

// ChatID returns the numeric conversation id, zero when absent.
func (e Event) ChatID() int64 {
	return ParseDialogID(e.rec.Get(FieldDialogID))
}

// UserID returns the id of the author.
func (e Event) UserID() int64 {
	return parseInt(e.rec.Get(FieldUserID))
}

// CommandName returns the parsed command name.
func (e Event) CommandName() string { return e.cmd[CommandKeyName] }

// CommandID returns the parsed command id.
func (e Event) CommandID() string { return e.cmd[CommandKeyID] }

// CommandParams returns the free-text parameters of the command.
func (e Event) CommandParams() string { return e.cmd[CommandKeyParams] }

// CommandFields returns a copy of every parsed command field.
func (e Event) CommandFields() map[string]string {
	out := make(map[string]string, len(e.cmd))
	for k, v := range e.cmd {
		out[k] = v
	}
	return out
}

// Raw returns a copy of the underlying record.
func (e Event) Raw() Record {
	if e.rec == nil {
		return Record{}
	}
	return e.rec.Clone()
}

// Field projects a value out of the record. The path is tried as an exact
// record key first ("event", "data[PARAMS][MESSAGE]") and then as a dotted
// path over the nested form of the record ("data.PARAMS.MESSAGE").
// Unresolved paths yield an absent Value.
func (e Event) Field(path string) Value {
	if path == "" || e.rec == nil {
		return Absent()
	}
	if v, ok := e.rec.Lookup(path); ok {
		return Present(v)
	}
	res := gjson.GetBytes(e.json(), path)
	if !res.Exists() {
		return Absent()
	}
	if res.Type == gjson.String {
		return Present(res.Str)
	}
	return Present(res.Raw)
}

func (e Event) json() []byte {
	if e.doc == nil {
		return e.rec.JSON()
	}
	e.doc.once.Do(func() {
		e.doc.raw = e.rec.JSON()
	})
	return e.doc.raw
}
