package keyboard

// item is either a button or a row break.
type item struct {
	button  Button
	newline bool
}

// Builder accumulates buttons row by row. It is not safe for concurrent use.
type Builder struct {
	items   []item
	current []item
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Button appends a button to the current row.
func (b *Builder) Button(text string, opts ...ButtonOption) *Builder {
	return b.Add(NewButton(text, opts...))
}

// Add appends prepared buttons to the current row.
func (b *Builder) Add(buttons ...Button) *Builder {
	for _, btn := range buttons {
		b.current = append(b.current, item{button: btn})
	}
	return b
}

// Newline closes the current row. Empty rows are ignored.
func (b *Builder) Newline() *Builder {
	if len(b.current) == 0 {
		return b
	}
	b.items = append(b.items, b.current...)
	b.items = append(b.items, item{newline: true})
	b.current = nil
	return b
}

// Adjust re-flows the keyboard so no row holds more than perRow buttons.
// Existing row breaks are kept.
func (b *Builder) Adjust(perRow int) *Builder {
	b.flush()
	if perRow <= 0 {
		return b
	}
	adjusted := make([]item, 0, len(b.items)+len(b.items)/perRow)
	count := 0
	for _, it := range b.items {
		if it.newline {
			adjusted = append(adjusted, it)
			count = 0
			continue
		}
		if count >= perRow {
			adjusted = append(adjusted, item{newline: true})
			count = 0
		}
		adjusted = append(adjusted, it)
		count++
	}
	b.items = adjusted
	return b
}

func (b *Builder) flush() {
	if len(b.current) == 0 {
		return
	}
	b.items = append(b.items, b.current...)
	b.current = nil
}

// Markup finalises the keyboard. The pending row is appended button by button.
func (b *Builder) Markup() Markup {
	b.flush()
	out := make(Markup, len(b.items))
	copy(out, b.items)
	return out
}

// Markup is a finished keyboard ready to be passed as KEYBOARD.
type Markup []item

// Len returns the number of items including row breaks.
func (m Markup) Len() int { return len(m) }

// Buttons returns the buttons without row breaks.
func (m Markup) Buttons() []Button {
	out := make([]Button, 0, len(m))
	for _, it := range m {
		if !it.newline {
			out = append(out, it.button)
		}
	}
	return out
}

// Rows groups the buttons by row.
func (m Markup) Rows() [][]Button {
	var (
		rows [][]Button
		row  []Button
	)
	for _, it := range m {
		if it.newline {
			if len(row) > 0 {
				rows = append(rows, row)
			}
			row = nil
			continue
		}
		row = append(row, it.button)
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

// Params renders the keyboard as REST parameters.
func (m Markup) Params() any {
	out := make([]any, 0, len(m))
	for _, it := range m {
		if it.newline {
			out = append(out, map[string]any{"TYPE": "NEWLINE"})
			continue
		}
		out = append(out, it.button.Params())
	}
	return out
}
