// Package reassembler implements the client-side event stream state machine:
// in-order delivery to the GUI, duplicate suppression, game-id rollover, and
// buffering of events that arrive ahead of the next expected one (spec
// §4.5). It does no I/O of its own beyond writing already-framed GUI lines.
package reassembler

import (
	"io"

	"github.com/wormsnet/wormsnet/internal/guiline"
	"github.com/wormsnet/wormsnet/internal/protocol"
)

// Reassembler holds one client's reassembly state. The zero value is ready
// to use: current_game_id and next_expected_event_no both start at zero,
// matching the source's defaults exactly.
type Reassembler struct {
	currentGameID   uint32
	previousGameIDs map[uint32]bool

	nextExpected uint32
	future       []protocol.Event // sorted ascending by EventNo, unique

	players []string
}

// New constructs an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{previousGameIDs: make(map[uint32]bool)}
}

// NextExpectedEventNo is the value the client reports in its heartbeat.
func (r *Reassembler) NextExpectedEventNo() uint32 { return r.nextExpected }

// Feed processes one decoded datagram, writing every deliverable event as a
// GUI line to w in order. It stops and returns the first write error.
func (r *Reassembler) Feed(dg protocol.Datagram, w io.Writer) error {
	// spec §4.5 step 3: a datagram tagged with an already-superseded
	// game_id is ignored entirely, before it can touch next_expected_event_no
	// or future_events for the current game.
	if dg.GameID != r.currentGameID && r.previousGameIDs[dg.GameID] {
		return nil
	}

	r.rolloverGameID(dg.GameID)
	for _, e := range dg.Events {
		if err := r.ingest(e, w); err != nil {
			return err
		}
	}
	return nil
}

// rolloverGameID implements spec §4.5 step 2: a game id that's neither the
// current one nor a previously seen one starts a fresh reassembly window.
func (r *Reassembler) rolloverGameID(gameID uint32) {
	if gameID == r.currentGameID {
		return
	}
	if r.nextExpected > 0 {
		if r.previousGameIDs == nil {
			r.previousGameIDs = make(map[uint32]bool)
		}
		r.previousGameIDs[r.currentGameID] = true
	}
	r.currentGameID = gameID
	r.future = r.future[:0]
	r.nextExpected = 0
}

func (r *Reassembler) ingest(e protocol.Event, w io.Writer) error {
	switch {
	case e.EventNo == r.nextExpected:
		r.nextExpected++
		if err := r.deliver(e, w); err != nil {
			return err
		}
		return r.drainFuture(w)
	case e.EventNo > r.nextExpected:
		r.insertFuture(e)
		return nil
	default:
		// duplicate of an already-delivered event_no: discard.
		return nil
	}
}

// drainFuture delivers buffered events that have become the next expected
// one, advancing next_expected_event_no as it goes (spec §4.5 step 5).
func (r *Reassembler) drainFuture(w io.Writer) error {
	for len(r.future) > 0 && r.future[0].EventNo == r.nextExpected {
		e := r.future[0]
		r.future = r.future[1:]
		r.nextExpected++
		if err := r.deliver(e, w); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reassembler) insertFuture(e protocol.Event) {
	i := 0
	for ; i < len(r.future); i++ {
		if r.future[i].EventNo == e.EventNo {
			return // duplicate, discard
		}
		if r.future[i].EventNo > e.EventNo {
			break
		}
	}
	r.future = append(r.future, protocol.Event{})
	copy(r.future[i+1:], r.future[i:])
	r.future[i] = e
}

func (r *Reassembler) playerName(idx uint8) string {
	if int(idx) < len(r.players) {
		return r.players[idx]
	}
	return ""
}

// deliver writes e as a GUI line, unless it's GAME_OVER (which the GUI
// protocol has no line for — it's purely a client/server bookkeeping event).
func (r *Reassembler) deliver(e protocol.Event, w io.Writer) error {
	switch d := e.Data.(type) {
	case protocol.NewGame:
		r.players = d.Names
		return guiline.WriteNewGame(w, d.MaxX, d.MaxY, d.Names)
	case protocol.Pixel:
		return guiline.WritePixel(w, d.X, d.Y, r.playerName(d.PlayerIndex))
	case protocol.PlayerEliminated:
		return guiline.WritePlayerEliminated(w, r.playerName(d.PlayerIndex))
	case protocol.GameOver:
		return nil
	default:
		return nil
	}
}
