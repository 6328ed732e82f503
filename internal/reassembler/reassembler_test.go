package reassembler_test

import (
	"bytes"
	"testing"

	"github.com/matryer/is"

	"github.com/wormsnet/wormsnet/internal/protocol"
	"github.com/wormsnet/wormsnet/internal/reassembler"
)

func ev(no uint32, data protocol.EventData) protocol.Event {
	return protocol.Event{EventNo: no, Data: data}
}

func TestInOrderDelivery(t *testing.T) {
	is := is.New(t)

	r := reassembler.New()
	buf := &bytes.Buffer{}

	dg := protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 100, MaxY: 100, Names: []string{"alice", "bob"}}),
		ev(1, protocol.Pixel{PlayerIndex: 0, X: 5, Y: 6}),
		ev(2, protocol.PlayerEliminated{PlayerIndex: 1}),
	}}

	is.NoErr(r.Feed(dg, buf))
	is.Equal(buf.String(), "NEW_GAME 100 100 alice bob\nPIXEL 5 6 alice\nPLAYER_ELIMINATED bob\n")
}

func TestOutOfOrderEventsBufferAndDrain(t *testing.T) {
	is := is.New(t)

	r := reassembler.New()
	buf := &bytes.Buffer{}

	// first datagram: event 0, then 2 arrives before 1 (S6).
	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 10, MaxY: 10, Names: []string{"a", "b"}}),
		ev(2, protocol.PlayerEliminated{PlayerIndex: 0}),
	}}, buf))
	is.Equal(buf.String(), "NEW_GAME 10 10 a b\n")

	buf.Reset()
	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(1, protocol.Pixel{PlayerIndex: 0, X: 1, Y: 1}),
	}}, buf))

	// delivering event 1 should drain the buffered event 2 right after.
	is.Equal(buf.String(), "PIXEL 1 1 a\nPLAYER_ELIMINATED a\n")
}

func TestDuplicateEventDiscarded(t *testing.T) {
	is := is.New(t)

	r := reassembler.New()
	buf := &bytes.Buffer{}

	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 10, MaxY: 10, Names: []string{"a"}}),
		ev(1, protocol.Pixel{PlayerIndex: 0, X: 1, Y: 1}),
	}}, buf))

	buf.Reset()
	// re-delivery of event 0 and 1 (server retransmit) must produce nothing.
	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 10, MaxY: 10, Names: []string{"a"}}),
		ev(1, protocol.Pixel{PlayerIndex: 0, X: 1, Y: 1}),
	}}, buf))
	is.Equal(buf.String(), "")
}

func TestGameOverEmitsNoLine(t *testing.T) {
	is := is.New(t)

	r := reassembler.New()
	buf := &bytes.Buffer{}

	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 10, MaxY: 10, Names: []string{"a", "b"}}),
		ev(1, protocol.GameOver{}),
	}}, buf))
	is.Equal(buf.String(), "NEW_GAME 10 10 a b\n")
}

func TestNewGameIDRollsOverState(t *testing.T) {
	is := is.New(t)

	r := reassembler.New()
	buf := &bytes.Buffer{}

	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 10, MaxY: 10, Names: []string{"a", "b"}}),
		ev(1, protocol.GameOver{}),
	}}, buf))

	buf.Reset()
	// a second game starts with a fresh event_no sequence from 0.
	is.NoErr(r.Feed(protocol.Datagram{GameID: 2, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 20, MaxY: 20, Names: []string{"c"}}),
	}}, buf))
	is.Equal(buf.String(), "NEW_GAME 20 20 c\n")
}

func TestLateDatagramFromSupersededGameIsIgnored(t *testing.T) {
	is := is.New(t)

	r := reassembler.New()
	buf := &bytes.Buffer{}

	// game 1 starts, then rolls over to game 2.
	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 10, MaxY: 10, Names: []string{"a", "b"}}),
		ev(1, protocol.GameOver{}),
	}}, buf))
	is.NoErr(r.Feed(protocol.Datagram{GameID: 2, Events: []protocol.Event{
		ev(0, protocol.NewGame{MaxX: 20, MaxY: 20, Names: []string{"c", "d"}}),
		ev(1, protocol.Pixel{PlayerIndex: 0, X: 1, Y: 1}),
	}}, buf))
	is.Equal(r.NextExpectedEventNo(), uint32(2))

	buf.Reset()
	// a stale, reordered datagram still tagged game 1 arrives late. It must
	// be dropped outright: no GUI line, and no corruption of game 2's
	// next_expected_event_no or future_events.
	is.NoErr(r.Feed(protocol.Datagram{GameID: 1, Events: []protocol.Event{
		ev(2, protocol.Pixel{PlayerIndex: 1, X: 9, Y: 9}),
	}}, buf))
	is.Equal(buf.String(), "")
	is.Equal(r.NextExpectedEventNo(), uint32(2))

	// game 2 continues normally afterward, proving state wasn't corrupted.
	is.NoErr(r.Feed(protocol.Datagram{GameID: 2, Events: []protocol.Event{
		ev(2, protocol.PlayerEliminated{PlayerIndex: 0}),
	}}, buf))
	is.Equal(buf.String(), "PLAYER_ELIMINATED c\n")
}
