package bf

// cells added each time the tape grows; also the initial size
const tapeChunk = 10

// Tape is the byte memory of a run with its cursor. The cursor is always a
// valid index.
type Tape struct {
	cells  []uint8
	cursor int
}

func NewTape() *Tape {
	return &Tape{cells: make([]uint8, tapeChunk)}
}

func (t *Tape) Len() int {
	return len(t.cells)
}

func (t *Tape) Cursor() int {
	return t.cursor
}

// At returns cell i, or 0 for cells the tape has not grown to yet.
func (t *Tape) At(i int) uint8 {
	if i < 0 || i >= len(t.cells) {
		return 0
	}
	return t.cells[i]
}

func (t *Tape) Get() uint8 {
	return t.cells[t.cursor]
}

func (t *Tape) Set(v uint8) {
	t.cells[t.cursor] = v
}

// Right moves the cursor n cells right, growing the tape in chunks.
func (t *Tape) Right(n int) {
	t.cursor += n
	for t.cursor >= len(t.cells) {
		t.cells = append(t.cells, make([]uint8, tapeChunk)...)
	}
}

// Left moves the cursor n cells left. The cursor does not move if that
// would take it past cell zero.
func (t *Tape) Left(n int) error {
	if n > t.cursor {
		return ErrTapeUnderflow
	}
	t.cursor -= n
	return nil
}

// Add adds n to the current cell, modulo 256.
func (t *Tape) Add(n int) {
	t.cells[t.cursor] = uint8((int(t.cells[t.cursor]) + n%256) % 256)
}

// Sub subtracts n from the current cell, modulo 256.
func (t *Tape) Sub(n int) {
	t.cells[t.cursor] = uint8((int(t.cells[t.cursor]) + 256 - n%256) % 256)
}

// Reset zeroes the tape and returns it to its initial size.
func (t *Tape) Reset() {
	t.cells = make([]uint8, tapeChunk)
	t.cursor = 0
}
