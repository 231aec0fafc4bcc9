package event

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Field keys and discriminant values of inbound imbot webhook posts.
const (
	FieldEvent     = "event"
	FieldMessage   = "data[PARAMS][MESSAGE]"
	FieldMessageID = "data[PARAMS][MESSAGE_ID]"
	FieldDialogID  = "data[PARAMS][DIALOG_ID]"
	FieldUserID    = "data[USER][ID]"

	// EventMessageAdd tags a new message addressed to the bot.
	EventMessageAdd = "ONIMBOTMESSAGEADD"
	// EventCommandAdd tags a bot command invocation (keyboard button or slash command).
	EventCommandAdd = "ONIMCOMMANDADD"

	commandPrefix = "data[COMMAND]"
	groupPrefix   = "chat"
)

// Record is the flat form-field mapping received from the webhook transport.
type Record map[string]string

// FromForm converts parsed form values into a Record keeping the first value per key.
func FromForm(form url.Values) Record {
	rec := make(Record, len(form))
	for k, vs := range form {
		if len(vs) == 0 {
			rec[k] = ""
			continue
		}
		rec[k] = vs[0]
	}
	return rec
}

// Get returns the value stored under key or an empty string.
func (r Record) Get(key string) string {
	return r[key]
}

// Lookup reports the value under key and whether it exists.
func (r Record) Lookup(key string) (string, bool) {
	v, ok := r[key]
	return v, ok
}

// Discriminant returns the event tag that selects the event shape.
func (r Record) Discriminant() string {
	return strings.TrimSpace(r[FieldEvent])
}

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SplitKey breaks a bracketed form key into its path segments:
// "data[PARAMS][MESSAGE]" becomes ["data", "PARAMS", "MESSAGE"].
// Keys without brackets yield a single segment.
func SplitKey(key string) []string {
	head, rest, found := strings.Cut(key, "[")
	if !found {
		return []string{key}
	}
	segs := []string{head}
	for rest != "" {
		seg, tail, ok := strings.Cut(rest, "]")
		if !ok {
			// unterminated bracket, keep the remainder verbatim
			segs = append(segs, seg)
			break
		}
		segs = append(segs, seg)
		rest = strings.TrimPrefix(tail, "[")
	}
	return segs
}

// nest rebuilds the nested object implied by bracketed keys. When a scalar
// and an object collide on the same path, the first key in sorted order wins.
func (r Record) nest() map[string]any {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := make(map[string]any)
	for _, key := range keys {
		segs := SplitKey(key)
		node := root
		for i, seg := range segs {
			if i == len(segs)-1 {
				if _, taken := node[seg]; !taken {
					node[seg] = r[key]
				}
				break
			}
			child, ok := node[seg].(map[string]any)
			if !ok {
				if _, taken := node[seg]; taken {
					break
				}
				child = make(map[string]any)
				node[seg] = child
			}
			node = child
		}
	}
	return root
}

// JSON renders the nested representation of the record.
func (r Record) JSON() []byte {
	data, err := json.Marshal(r.nest())
	if err != nil {
		return []byte("{}")
	}
	return data
}

// ParseDialogID maps a dialog identifier to a numeric conversation id.
// Private dialogs carry the user id, group chats look like "chat42" and are
// mapped to negative ids so both kinds share one key space. Unparseable
// input yields zero.
func ParseDialogID(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(raw), groupPrefix); ok {
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || n <= 0 {
			return 0
		}
		return -n
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// FormatDialogID is the inverse of ParseDialogID.
func FormatDialogID(chatID int64) string {
	if chatID < 0 {
		return groupPrefix + strconv.FormatInt(-chatID, 10)
	}
	return strconv.FormatInt(chatID, 10)
}

func parseInt(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
