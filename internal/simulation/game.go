package simulation

import (
	"sort"

	"github.com/wormsnet/wormsnet/internal/protocol"
	"github.com/wormsnet/wormsnet/internal/rng"
)

// GameConstants are immutable for the lifetime of one server run.
type GameConstants struct {
	TurningSpeed  uint16 // degrees per tick
	RoundsPerSec  uint32
	Width, Height uint32
}

// ObserverHandle lets a Game hold a weak reference to an observing Worm: the
// session manager's generational slab implements this so a Game never has
// to know whether an observer's underlying session has since been freed.
type ObserverHandle interface {
	// Resolve returns the Worm and true, or (nil, false) if the slot this
	// handle pointed to has been freed since the handle was captured.
	Resolve() (*Worm, bool)
}

// Game is one match: an immutable game id, a board, an append-only event
// log, and the worms playing it.
type Game struct {
	Constants GameConstants
	GameID    uint32
	Board     *Board

	// Players is sorted lexicographically by name at construction and
	// indexed 0..N-1; those indices are the PlayerIndex used on the wire.
	Players []*Worm

	Observers []ObserverHandle

	Events     []protocol.Event
	aliveCount int
	Finished   bool

	// NextDisseminatedEventNo is the cursor used by per-round bulk
	// dissemination (spec §4.4); heartbeats use their own cursor instead.
	NextDisseminatedEventNo uint32
}

// NewGame constructs a game from a ready-player set and an observer set,
// following the construction algorithm in spec §4.2 exactly: draw game_id,
// emit NEW_GAME, then place each player in sorted order.
//
// Per spec §9 (resolving an ambiguity in the source), a worm eliminated at
// placement does NOT contribute to the initial alive count, but Finished is
// never set here — GAME_OVER is only ever emitted from a later Step call.
func NewGame(constants GameConstants, seed *rng.Generator, readyPlayers []*Worm, observers []ObserverHandle) *Game {
	players := make([]*Worm, len(readyPlayers))
	copy(players, readyPlayers)
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })

	g := &Game{
		Constants: constants,
		GameID:    seed.Next(),
		Board:     NewBoard(constants.Width, constants.Height),
		Players:   players,
		Observers: observers,
	}

	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}
	g.emit(protocol.NewGame{MaxX: constants.Width, MaxY: constants.Height, Names: names})

	for i, w := range players {
		x := float64(seed.NextMod(constants.Width)) + 0.5
		y := float64(seed.NextMod(constants.Height)) + 0.5
		w.Position = Position{X: x, Y: y}
		w.Angle = NewAngle(int(seed.NextMod(360)))

		pixel := w.Position.AsPixel()
		if !g.Board.Contains(pixel) || g.Board.IsEaten(pixel) {
			w.Alive = false
			g.emit(protocol.PlayerEliminated{PlayerIndex: uint8(i)})
			continue
		}

		w.Alive = true
		g.Board.Eat(pixel)
		g.aliveCount++
		g.emit(protocol.Pixel{PlayerIndex: uint8(i), X: uint32(pixel.X), Y: uint32(pixel.Y)})
	}

	return g
}

// AliveCount is the number of worms still alive.
func (g *Game) AliveCount() int { return g.aliveCount }

// PruneExpiredObservers drops observer handles whose underlying worm slot
// has been freed, per spec §4.4's "expired observer references
// are removed".
func (g *Game) PruneExpiredObservers() {
	live := g.Observers[:0]
	for _, o := range g.Observers {
		if _, ok := o.Resolve(); ok {
			live = append(live, o)
		}
	}
	g.Observers = live
}

func (g *Game) emit(data protocol.EventData) {
	g.Events = append(g.Events, protocol.Event{
		EventNo: uint32(len(g.Events)),
		Data:    data,
	})
}

// Step advances the simulation by one round, following spec §4.2 and
// original_source/Server/Game.cpp's play_round exactly.
func (g *Game) Step() {
	if g.Finished {
		return
	}

	// Per spec §9: a game that killed all-but-one worm during placement
	// (never emitting GAME_OVER from the constructor, per I7) transitions to
	// Finished at the first subsequent step even if this particular step
	// kills nobody.
	if g.aliveCount <= 1 {
		g.Finished = true
		g.emit(protocol.GameOver{})
		return
	}

	for i, w := range g.Players {
		if !w.Alive {
			continue
		}

		switch w.TurnDirection {
		case protocol.Right:
			w.Angle = w.Angle.Add(g.Constants.TurningSpeed)
		case protocol.Left:
			w.Angle = w.Angle.Sub(g.Constants.TurningSpeed)
		}

		before := w.Position.AsPixel()
		w.Position = w.Position.MoveWithAngle(w.Angle)
		after := w.Position.AsPixel()

		if before == after {
			continue
		}

		if !g.Board.Contains(after) || g.Board.IsEaten(after) {
			w.Alive = false
			g.aliveCount--
			g.emit(protocol.PlayerEliminated{PlayerIndex: uint8(i)})
			if g.aliveCount <= 1 {
				g.Finished = true
				break
			}
			continue
		}

		g.Board.Eat(after)
		g.emit(protocol.Pixel{PlayerIndex: uint8(i), X: uint32(after.X), Y: uint32(after.Y)})
	}

	if g.Finished {
		g.emit(protocol.GameOver{})
	}
}
