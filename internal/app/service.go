package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaminalder/hotseat-tictactoe/internal/domain"
)

// Errors exposed by the service layer.
var (
	ErrNotFound = errors.New("game not found")
)

// GameState is a copy of one game as seen by callers.
type GameState struct {
	ID      string
	State   domain.Snapshot
	Created time.Time
	Updated time.Time
}

type game struct {
	id      string
	engine  *domain.Engine
	created time.Time
	updated time.Time
	seq     uint64
}

func (g *game) snapshot() GameState {
	return GameState{ID: g.id, State: g.engine.State(), Created: g.created, Updated: g.updated}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
	last   uint64
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send reports false when the buffer is full. A closed subscriber and a
// payload older than the last one sent both count as delivered.
func (s *subscriber) send(seq uint64, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq <= s.last {
		return true
	}
	select {
	case s.ch <- payload:
		s.last = seq
		return true
	default:
		return false
	}
}

type delivery struct {
	id      string
	seq     uint64
	payload []byte
	subs    []*subscriber
}

// Service owns independent game engines and fans out their changes to
// subscribers. All engine calls are serialized by the service mutex.
type Service struct {
	mu      sync.Mutex
	games   map[string]*game
	subs    map[string]map[*subscriber]struct{}
	pending []delivery

	render func(GameState) []byte
	log    zerolog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRenderer sets the function that encodes broadcast payloads.
func WithRenderer(renderer func(GameState) []byte) Option {
	return func(s *Service) {
		if renderer != nil {
			s.render = renderer
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l.With().Str("component", "games").Logger() }
}

// NewService creates a service. Without WithRenderer broadcasts carry no
// payload.
func NewService(opts ...Option) *Service {
	s := &Service{
		games:  make(map[string]*game),
		subs:   make(map[string]map[*subscriber]struct{}),
		render: func(GameState) []byte { return nil },
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(GameState) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = func(GameState) []byte { return nil }
		return
	}
	s.render = renderer
}

// CreateGame creates and registers a new game.
func (s *Service) CreateGame() (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := newGameID()
	if _, dup := s.games[id]; dup {
		return nil, errors.New("game id collision")
	}
	now := s.now()
	g := &game{id: id, engine: domain.NewEngine(), created: now, updated: now}
	g.engine.OnChange(func(domain.Snapshot) {
		// runs with s.mu held, from inside Play or Reset
		g.updated = s.now()
		s.enqueueLocked(g)
	})
	s.games[id] = g
	s.log.Info().Str("game", id).Msg("game created")
	cp := g.snapshot()
	return &cp, nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (*GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, false
	}
	cp := g.snapshot()
	return &cp, true
}

// Play applies a move for whichever mark is on turn. Engine errors are
// returned unchanged alongside the current state.
func (s *Service) Play(id string, index int) (*GameState, error) {
	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	snap, err := g.engine.Play(index)
	cp := g.snapshot()
	out := s.takePendingLocked()
	s.mu.Unlock()

	if err != nil {
		s.log.Debug().Str("game", id).Int("cell", index).Err(err).Msg("move rejected")
		return &cp, err
	}
	s.log.Debug().Str("game", id).Int("cell", index).Stringer("status", snap.Status).Msg("move applied")
	s.deliver(out)
	return &cp, nil
}

// Reset restarts a game in place.
func (s *Service) Reset(id string) (*GameState, error) {
	s.mu.Lock()
	g, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	g.engine.Reset()
	cp := g.snapshot()
	out := s.takePendingLocked()
	s.mu.Unlock()

	s.log.Info().Str("game", id).Msg("game reset")
	s.deliver(out)
	return &cp, nil
}

// Delete removes a game and closes its subscribers.
func (s *Service) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

// Sweep removes games that have not changed within olderThan and returns how
// many were removed.
func (s *Service) Sweep(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	n := 0
	for id, g := range s.games {
		if g.updated.Before(cutoff) {
			s.removeLocked(id)
			n++
		}
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("idle games evicted")
	}
	return n
}

// Len reports the number of live games.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

func (s *Service) removeLocked(id string) {
	delete(s.games, id)
	for sub := range s.subs[id] {
		sub.close()
	}
	delete(s.subs, id)
}

// Subscribe registers a subscriber for a game. Returns a channel and an
// unsubscribe func; the subscription also ends with ctx.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return nil, func() {}, ErrNotFound
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan []byte, 1)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub, nil
}

// enqueueLocked numbers every change of g so deliveries racing outside the
// lock cannot hand a subscriber an older board after a newer one.
func (s *Service) enqueueLocked(g *game) {
	g.seq++
	set := s.subs[g.id]
	if len(set) == 0 {
		return
	}
	subs := make([]*subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	s.pending = append(s.pending, delivery{id: g.id, seq: g.seq, payload: s.render(g.snapshot()), subs: subs})
}

func (s *Service) takePendingLocked() []delivery {
	out := s.pending
	s.pending = nil
	return out
}

// deliver fans out without holding the lock; slow subscribers are dropped.
func (s *Service) deliver(out []delivery) {
	for _, d := range out {
		var toDrop []*subscriber
		for _, sub := range d.subs {
			if !sub.send(d.seq, d.payload) {
				sub.close()
				toDrop = append(toDrop, sub)
			}
		}
		if len(toDrop) == 0 {
			continue
		}
		s.log.Warn().Str("game", d.id).Int("dropped", len(toDrop)).Msg("slow subscribers dropped")
		s.mu.Lock()
		for _, sub := range toDrop {
			if set, ok := s.subs[d.id]; ok {
				delete(set, sub)
			}
		}
		s.mu.Unlock()
	}
}
