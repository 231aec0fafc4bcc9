package attach

// Field sets an optional key on a block. Zero values are skipped.
type Field func(map[string]any)

// Desc sets DESC.
func Desc(text string) Field {
	return func(m map[string]any) { setString(m, "DESC", text) }
}

// Preview sets PREVIEW.
func Preview(url string) Field {
	return func(m map[string]any) { setString(m, "PREVIEW", url) }
}

// Name sets NAME.
func Name(name string) Field {
	return func(m map[string]any) { setString(m, "NAME", name) }
}

// Size sets WIDTH and HEIGHT.
func Size(width, height int) Field {
	return func(m map[string]any) {
		setInt(m, "WIDTH", width)
		setInt(m, "HEIGHT", height)
	}
}

// ChatID links a block to a chat.
func ChatID(id int64) Field {
	return func(m map[string]any) {
		if id != 0 {
			m["CHAT_ID"] = id
		}
	}
}

// UserID links a block to a user.
func UserID(id int64) Field {
	return func(m map[string]any) {
		if id != 0 {
			m["USER_ID"] = id
		}
	}
}

// Color sets COLOR.
func Color(color string) Field {
	return func(m map[string]any) { setString(m, "COLOR", color) }
}

// Grid is a set of items sharing one display mode.
type Grid struct {
	display string
	items   []map[string]any
}

// ColumnLayout returns a grid with name and value side by side.
func ColumnLayout() *Grid { return &Grid{display: DisplayColumn} }

// BlockLayout returns a grid of fixed-width tiles.
func BlockLayout() *Grid { return &Grid{display: DisplayBlock} }

// LineLayout returns a grid laid out on one line.
func LineLayout() *Grid { return &Grid{display: DisplayLine} }

// AddItem appends an item; link, width, color and ids go through extra.
func (g *Grid) AddItem(name, value string, extra ...Field) *Grid {
	item := map[string]any{"DISPLAY": g.display}
	setString(item, "NAME", name)
	setString(item, "VALUE", value)
	applyFields(item, extra)
	g.items = append(g.items, item)
	return g
}

// Link sets LINK on a grid item.
func Link(url string) Field {
	return func(m map[string]any) { setString(m, "LINK", url) }
}

// Width sets WIDTH on a grid item.
func Width(px int) Field {
	return func(m map[string]any) { setInt(m, "WIDTH", px) }
}

// Len returns the number of items.
func (g *Grid) Len() int { return len(g.items) }

func applyFields(m map[string]any, fields []Field) {
	for _, f := range fields {
		if f != nil {
			f(m)
		}
	}
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func setInt(m map[string]any, key string, value int) {
	if value != 0 {
		m[key] = value
	}
}
