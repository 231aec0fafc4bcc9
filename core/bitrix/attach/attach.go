// Package attach builds the ATTACH parameter of imbot messages: a list of
// rich blocks such as user cards, links, grids, images and files.
package attach

// Grid display modes.
const (
	DisplayColumn = "COLUMN"
	DisplayBlock  = "BLOCK"
	DisplayLine   = "LINE"
)

// Block is one attachment block rendered as REST parameters.
type Block map[string]any

// Builder accumulates attachment blocks in order. It is not safe for concurrent use.
type Builder struct {
	blocks []Block
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// User adds a user card. ChatID or UserID fields link the card to a dialog.
func (b *Builder) User(name, avatar, link string, extra ...Field) *Builder {
	user := map[string]any{"NAME": name}
	setString(user, "AVATAR", avatar)
	setString(user, "LINK", link)
	applyFields(user, extra)
	return b.add(Block{"USER": user})
}

// Link adds a link block with optional description and preview picture.
func (b *Builder) Link(name, link string, extra ...Field) *Builder {
	block := map[string]any{"NAME": name, "LINK": link}
	applyFields(block, extra)
	return b.add(Block{"LINK": block})
}

// Message adds a text block.
func (b *Builder) Message(text string) *Builder {
	return b.add(Block{"MESSAGE": text})
}

// Delimiter adds a horizontal rule. Zero size and empty color use client defaults.
func (b *Builder) Delimiter(size int, color string) *Builder {
	block := map[string]any{}
	setInt(block, "SIZE", size)
	setString(block, "COLOR", color)
	return b.add(Block{"DELIMITER": block})
}

// Grid adds a grid of name/value items.
func (b *Builder) Grid(g *Grid) *Builder {
	if g == nil {
		return b
	}
	items := make([]any, 0, len(g.items))
	for _, it := range g.items {
		items = append(items, it)
	}
	return b.add(Block{"GRID": items})
}

// Image adds an image block.
func (b *Builder) Image(link string, extra ...Field) *Builder {
	block := map[string]any{"LINK": link}
	applyFields(block, extra)
	return b.add(Block{"IMAGE": block})
}

// File adds a file block. Zero size omits SIZE.
func (b *Builder) File(link, name string, size int64) *Builder {
	block := map[string]any{"LINK": link}
	setString(block, "NAME", name)
	if size > 0 {
		block["SIZE"] = size
	}
	return b.add(Block{"FILE": block})
}

func (b *Builder) add(block Block) *Builder {
	b.blocks = append(b.blocks, block)
	return b
}

// Build returns the finished attachment.
func (b *Builder) Build() Attach {
	out := make(Attach, len(b.blocks))
	copy(out, b.blocks)
	return out
}

// Attach is a finished attachment ready to be passed as ATTACH.
type Attach []Block

// Params renders the attachment as REST parameters.
func (a Attach) Params() any {
	out := make([]any, 0, len(a))
	for _, block := range a {
		out = append(out, map[string]any(block))
	}
	return out
}

// Len returns the number of blocks.
func (a Attach) Len() int { return len(a) }
