package domain

import "fmt"

// Mark is the content of a board cell.
type Mark uint8

const (
	Empty Mark = iota
	X
	O
)

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// Other returns the opposing mark. Empty has no opponent.
func (m Mark) Other() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

func (m Mark) valid() bool { return m <= O }

// Board is a fixed 3x3 board stored row-major (index = row*3 + col).
type Board [9]Mark

// Full reports whether no cell is empty.
func (b Board) Full() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// Status is the coarse state of a game.
type Status uint8

const (
	InProgress Status = iota
	Won
	Draw
)

func (s Status) String() string {
	switch s {
	case Won:
		return "won"
	case Draw:
		return "draw"
	default:
		return "in_progress"
	}
}

// Terminal reports whether no further moves are accepted.
func (s Status) Terminal() bool { return s != InProgress }

// Line is an index triple on the board.
type Line [3]int

// Contains reports whether idx is one of the line's cells.
func (l Line) Contains(idx int) bool {
	return l[0] == idx || l[1] == idx || l[2] == idx
}

// WinLines lists every winning triple. Order matters: the first completed
// line is the one reported.
var WinLines = [8]Line{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// Evaluate scans the board for a terminal condition. When the result is Won,
// winner and line identify the first completed line in WinLines order and ok
// is true.
func Evaluate(b Board) (status Status, winner Mark, line Line, ok bool) {
	for _, ln := range WinLines {
		m := b[ln[0]]
		if m != Empty && m == b[ln[1]] && m == b[ln[2]] {
			return Won, m, ln, true
		}
	}
	if b.Full() {
		return Draw, Empty, Line{}, false
	}
	return InProgress, Empty, Line{}, false
}

// Snapshot is a value copy of an engine's state.
type Snapshot struct {
	Board   Board
	Turn    Mark
	Status  Status
	Winner  Mark
	Line    Line
	HasLine bool
	Moves   int
}

// Engine holds the state of one Tic-Tac-Toe match. It is not safe for
// concurrent use; callers serialize their own calls.
type Engine struct {
	board  Board
	turn   Mark
	status Status
	winner Mark
	line   Line
	won    bool
	moves  int

	listeners map[int]func(Snapshot)
	nextID    int
}

// NewEngine returns a new game with X to move.
func NewEngine() *Engine {
	return &Engine{turn: X}
}

// Restore builds an engine from a pre-seeded board. The status is evaluated
// from the board, so a finished board yields a finished engine.
func Restore(b Board, turn Mark) (*Engine, error) {
	if turn != X && turn != O {
		return nil, fmt.Errorf("restore: invalid turn %d", turn)
	}
	e := &Engine{board: b, turn: turn}
	for i, c := range b {
		if !c.valid() {
			return nil, fmt.Errorf("restore: invalid mark %d at cell %d", c, i)
		}
		if c != Empty {
			e.moves++
		}
	}
	e.status, e.winner, e.line, e.won = Evaluate(b)
	return e, nil
}

// Play places the current turn's mark at index (0..8). A rejected move leaves
// the engine untouched and returns an *IllegalMoveError.
func (e *Engine) Play(index int) (Snapshot, error) {
	if e.status.Terminal() {
		return e.State(), illegal(index, GameOver)
	}
	if index < 0 || index >= len(e.board) {
		return e.State(), illegal(index, OutOfRange)
	}
	if e.board[index] != Empty {
		return e.State(), illegal(index, CellOccupied)
	}

	e.board[index] = e.turn
	e.moves++

	e.status, e.winner, e.line, e.won = Evaluate(e.board)
	if e.status == InProgress {
		e.turn = e.turn.Other()
	}

	s := e.State()
	e.notify(s)
	return s, nil
}

// Reset starts a fresh game on the same engine.
func (e *Engine) Reset() Snapshot {
	e.board = Board{}
	e.turn = X
	e.status = InProgress
	e.winner = Empty
	e.line = Line{}
	e.won = false
	e.moves = 0

	s := e.State()
	e.notify(s)
	return s
}

// State returns a snapshot of the current game.
func (e *Engine) State() Snapshot {
	return Snapshot{
		Board:   e.board,
		Turn:    e.turn,
		Status:  e.status,
		Winner:  e.winner,
		Line:    e.line,
		HasLine: e.won,
		Moves:   e.moves,
	}
}

// OnChange registers fn to be called after every applied move and every
// reset. The returned func removes the listener.
func (e *Engine) OnChange(fn func(Snapshot)) (cancel func()) {
	if e.listeners == nil {
		e.listeners = make(map[int]func(Snapshot))
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() { delete(e.listeners, id) }
}

func (e *Engine) notify(s Snapshot) {
	for _, fn := range e.listeners {
		fn(s)
	}
}

// StatusMessage is the status line shown to players.
func StatusMessage(s Snapshot) string {
	switch s.Status {
	case Won:
		return fmt.Sprintf("Player %s has won!", s.Winner)
	case Draw:
		return "Game ended in a draw!"
	default:
		return fmt.Sprintf("Player %s's turn", s.Turn)
	}
}
