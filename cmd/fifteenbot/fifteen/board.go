package fifteen

import (
	"math/rand/v2"
	"strconv"

	"github.com/m3rciful/bitrixbot/core/bitrix/keyboard"
)

const (
	side  = 4
	cells = side * side
	// empty marks the hole.
	empty = 0
	// MoveCommand is the command every tile button sends.
	MoveCommand = "move"
	tileWidth   = 30
)

// Board is a 4x4 fifteen puzzle in row-major order.
type Board [cells]int

// NewBoard returns a shuffled, solvable board.
func NewBoard(rng *rand.Rand) Board {
	var b Board
	for i := 0; i < cells-1; i++ {
		b[i] = i + 1
	}
	b[cells-1] = empty
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(cells, func(i, j int) { b[i], b[j] = b[j], b[i] })
	if !b.Solvable() {
		b.swapFirstTiles()
	}
	if b.Solved() {
		b.Move(b[cells-2])
	}
	return b
}

// swapFirstTiles swaps the first two non-empty tiles, flipping parity.
func (b *Board) swapFirstTiles() {
	first := -1
	for i, v := range b {
		if v == empty {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		b[first], b[i] = b[i], b[first]
		return
	}
}

func (b Board) index(num int) int {
	for i, v := range b {
		if v == num {
			return i
		}
	}
	return -1
}

// Move slides tile num into the hole when they are neighbours on the
// same row or the same column.
func (b *Board) Move(num int) bool {
	if num == empty {
		return false
	}
	hole, tile := b.index(empty), b.index(num)
	if hole < 0 || tile < 0 {
		return false
	}
	diff := hole - tile
	sameRow := hole/side == tile/side
	if !((diff == 1 || diff == -1) && sameRow) && diff != side && diff != -side {
		return false
	}
	b[hole], b[tile] = b[tile], b[hole]
	return true
}

// Solved reports whether tiles are in order with the hole last.
func (b Board) Solved() bool {
	for i := 0; i < cells-1; i++ {
		if b[i] != i+1 {
			return false
		}
	}
	return b[cells-1] == empty
}

// Solvable reports whether the position can reach the solved one.
func (b Board) Solvable() bool {
	inversions := 0
	for i := 0; i < cells; i++ {
		if b[i] == empty {
			continue
		}
		for j := i + 1; j < cells; j++ {
			if b[j] != empty && b[j] < b[i] {
				inversions++
			}
		}
	}
	holeRowFromBottom := side - b.index(empty)/side
	return (inversions+holeRowFromBottom)%2 == 1
}

// Keyboard renders the board as one button per cell, four per row.
func (b Board) Keyboard() keyboard.Markup {
	kb := keyboard.NewBuilder()
	for row := 0; row < side; row++ {
		for col := 0; col < side; col++ {
			num := b[row*side+col]
			text := "_"
			if num != empty {
				text = strconv.Itoa(num)
			}
			kb.Button(text, keyboard.CommandInt(MoveCommand, int64(num)), keyboard.Width(tileWidth))
		}
		kb.Newline()
	}
	return kb.Adjust(side).Markup()
}
