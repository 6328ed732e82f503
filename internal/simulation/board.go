package simulation

// Pixel is an integer board coordinate. It may be negative or otherwise
// off-board; Contains is what decides legality.
type Pixel struct {
	X, Y int64
}

// Board is the 2D eaten-pixel grid. Monotonic: once a pixel is eaten it is
// never cleared until the game ends (and the Game, with its Board, is
// discarded).
type Board struct {
	width, height uint32
	eaten         []bool
}

// NewBoard constructs an empty width x height board.
func NewBoard(width, height uint32) *Board {
	return &Board{
		width:  width,
		height: height,
		eaten:  make([]bool, uint64(width)*uint64(height)),
	}
}

// Contains reports whether p is on the board: width/height are exclusive
// upper bounds, so (width-1, height-1) is valid and (width, _) is off-board,
// as is any negative coordinate.
func (b *Board) Contains(p Pixel) bool {
	return p.X >= 0 && p.Y >= 0 && uint64(p.X) < uint64(b.width) && uint64(p.Y) < uint64(b.height)
}

func (b *Board) index(p Pixel) int {
	return int(p.Y)*int(b.width) + int(p.X)
}

// IsEaten reports whether p has ever been occupied in this game. p must be
// on the board.
func (b *Board) IsEaten(p Pixel) bool {
	return b.eaten[b.index(p)]
}

// Eat marks p as occupied. p must be on the board and not already eaten.
func (b *Board) Eat(p Pixel) {
	b.eaten[b.index(p)] = true
}
