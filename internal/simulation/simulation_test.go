package simulation_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/wormsnet/wormsnet/internal/protocol"
	"github.com/wormsnet/wormsnet/internal/rng"
	"github.com/wormsnet/wormsnet/internal/simulation"
)

func twoPlayerGame(seed uint32) (*simulation.Game, []*simulation.Worm) {
	a := simulation.NewWorm("a")
	b := simulation.NewWorm("b")
	a.TurnDirection = protocol.Right
	b.TurnDirection = protocol.Left
	constants := simulation.GameConstants{TurningSpeed: 6, RoundsPerSec: 50, Width: 800, Height: 600}
	g := simulation.NewGame(constants, rng.New(seed), []*simulation.Worm{b, a}, nil)
	return g, g.Players
}

func TestNewGameEmitsNewGameFirst(t *testing.T) {
	is := is.New(t)

	g, players := twoPlayerGame(777)
	is.Equal(g.GameID, uint32(777))
	is.Equal(players[0].Name, "a")
	is.Equal(players[1].Name, "b")

	is.True(len(g.Events) >= 1)
	is.Equal(g.Events[0].EventNo, uint32(0))
	ng, ok := g.Events[0].Data.(protocol.NewGame)
	is.True(ok)
	is.Equal(ng.MaxX, uint32(800))
	is.Equal(ng.MaxY, uint32(600))
	is.Equal(ng.Names, []string{"a", "b"})
}

func TestAngleWrapsAt360(t *testing.T) {
	is := is.New(t)

	a := simulation.NewAngle(358)
	a = a.Add(6)
	is.Equal(a, simulation.NewAngle(4))

	b := simulation.NewAngle(2)
	b = b.Sub(6)
	is.Equal(b, simulation.NewAngle(356))
}

func TestBoardBoundary(t *testing.T) {
	is := is.New(t)

	b := simulation.NewBoard(800, 600)
	is.True(b.Contains(simulation.Pixel{X: 799, Y: 599}))
	is.True(!b.Contains(simulation.Pixel{X: 800, Y: 599}))
	is.True(!b.Contains(simulation.Pixel{X: 799, Y: 600}))
	is.True(!b.Contains(simulation.Pixel{X: -1, Y: 0}))
}

func TestStepNeverRePixelsAnEatenSpot(t *testing.T) {
	is := is.New(t)

	g, _ := twoPlayerGame(42)
	eaten := map[simulation.Pixel]bool{}
	for i := 0; i < 2000 && !g.Finished; i++ {
		before := len(g.Events)
		g.Step()
		for _, e := range g.Events[before:] {
			if px, ok := e.Data.(protocol.Pixel); ok {
				p := simulation.Pixel{X: int64(px.X), Y: int64(px.Y)}
				is.True(!eaten[p])
				eaten[p] = true
			}
		}
	}
}

func TestGameOverIsFinalEventAndOnlyWhenFinished(t *testing.T) {
	is := is.New(t)

	g, _ := twoPlayerGame(1)
	for i := 0; i < 5000 && !g.Finished; i++ {
		g.Step()
	}
	is.True(g.Finished)
	is.True(len(g.Events) > 0)
	_, ok := g.Events[len(g.Events)-1].Data.(protocol.GameOver)
	is.True(ok)

	for i, e := range g.Events[:len(g.Events)-1] {
		_, ok := e.Data.(protocol.GameOver)
		is.True(!ok)
		_ = i
	}
}

func TestPlayerEliminatedNeverFollowedByThatPlayersPixel(t *testing.T) {
	is := is.New(t)

	g, _ := twoPlayerGame(9001)
	eliminated := map[uint8]bool{}
	for i := 0; i < 5000 && !g.Finished; i++ {
		g.Step()
	}
	for _, e := range g.Events {
		switch d := e.Data.(type) {
		case protocol.PlayerEliminated:
			eliminated[d.PlayerIndex] = true
		case protocol.Pixel:
			is.True(!eliminated[d.PlayerIndex])
		}
	}
}
