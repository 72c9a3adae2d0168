// Package console is a line-oriented terminal front end for one game.
// Cells are numbered 1-9 row by row; "r" restarts and "q" quits.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jaminalder/hotseat-tictactoe/internal/domain"
)

const help = "enter a cell 1-9, r to restart, q to quit"

// Console translates input lines into engine calls and redraws the board on
// every state change.
type Console struct {
	engine *domain.Engine
	in     io.Reader
	out    io.Writer
	log    zerolog.Logger
}

// New returns a Console driving e.
func New(e *domain.Engine, in io.Reader, out io.Writer, log zerolog.Logger) *Console {
	return &Console{engine: e, in: in, out: out, log: log.With().Str("component", "console").Logger()}
}

// Run reads commands until q, end of input or ctx is done. Cancelling ctx
// returns immediately even while a read is pending.
func (c *Console) Run(ctx context.Context) error {
	stop := c.engine.OnChange(func(s domain.Snapshot) { c.draw(s) })
	defer stop()

	c.draw(c.engine.State())

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	readErr := make(chan error, 1)
	go c.scan(lines, readErr, done)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if c.handle(strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// scan feeds input lines to Run until EOF, a read error or done. It may
// outlive Run while blocked in a read.
func (c *Console) scan(lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	defer close(lines)
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-done:
			readErr <- nil
			return
		}
	}
	if err := sc.Err(); err != nil {
		readErr <- fmt.Errorf("read input: %w", err)
		return
	}
	readErr <- nil
}

func (c *Console) handle(line string) (quit bool) {
	switch strings.ToLower(line) {
	case "":
		return false
	case "q", "quit", "exit":
		return true
	case "r", "restart":
		c.engine.Reset()
		return false
	}

	n, err := strconv.Atoi(line)
	if err != nil {
		fmt.Fprintln(c.out, help)
		return false
	}
	if _, err = c.engine.Play(n - 1); err != nil {
		c.log.Debug().Err(err).Int("cell", n).Msg("move rejected")
		fmt.Fprintln(c.out, rejection(err))
	}
	return false
}

func rejection(err error) string {
	var ime *domain.IllegalMoveError
	if !errors.As(err, &ime) {
		return err.Error()
	}
	switch ime.Reason {
	case domain.CellOccupied:
		return fmt.Sprintf("cell %d is taken", ime.Index+1)
	case domain.GameOver:
		return "game is over, r to restart"
	default:
		return help
	}
}

func (c *Console) draw(s domain.Snapshot) {
	fmt.Fprint(c.out, Render(s))
}

// Render draws the board and the status line. Empty cells show their number
// and cells of the winning line are bracketed.
func Render(s domain.Snapshot) string {
	var b strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			b.WriteString("---+---+---\n")
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				b.WriteByte('|')
			}
			i := row*3 + col
			sym := s.Board[i].String()
			if sym == "" {
				sym = strconv.Itoa(i + 1)
			}
			if s.HasLine && s.Line.Contains(i) {
				b.WriteString("[" + sym + "]")
			} else {
				b.WriteString(" " + sym + " ")
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString(domain.StatusMessage(s))
	b.WriteByte('\n')
	return b.String()
}
