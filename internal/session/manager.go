// Package session implements the server's client table, name table,
// observer set, idle eviction, and game-start gating (spec §4.3).
package session

import (
	"io"
	"net"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/phuslu/log"

	"github.com/wormsnet/wormsnet/internal/protocol"
	"github.com/wormsnet/wormsnet/internal/rng"
	"github.com/wormsnet/wormsnet/internal/simulation"
)

// IdleTimeout is how long a session may go without a heartbeat before it is
// evicted (spec §4.3, §5).
const IdleTimeout = 2 * time.Second

// addrKey is the hashed lookup key for clients_by_addr, matching
// lobbyserver.go's makeAddrKey exactly: an address is keyed by the xxhash
// of addr.String(), so lookups match on equal string forms and the table
// has no ordering.
type addrKey uint64

func makeAddrKey(addr *net.UDPAddr) addrKey {
	return addrKey(xxhash.Sum64String(addr.String()))
}

type clientSession struct {
	addr                 *net.UDPAddr
	sessionID            uint64
	lastHeartbeatRoundNo uint64
	worm                 Idx
}

// WormHandle is a weak reference to a slab-owned Worm: it implements
// simulation.ObserverHandle so a Game can hold observers without pinning
// them alive past their session's lifetime.
type WormHandle struct {
	slab *Slab[*simulation.Worm]
	idx  Idx
}

func (h WormHandle) Resolve() (*simulation.Worm, bool) {
	return h.slab.Get(h.idx)
}

// Manager owns every Worm and ClientSession for one server run, plus the
// currently-running (or just-finished) Game and the one before it.
type Manager struct {
	constants simulation.GameConstants
	seed      *rng.Generator
	logger    *log.Logger

	worms    Slab[*simulation.Worm]
	sessions Slab[*clientSession]

	clientsByAddr map[addrKey]Idx // -> session Idx
	namedWorms    map[Idx]bool
	observerWorms map[Idx]bool
	namesInUse    map[string]bool

	currentRound uint64

	currentGame  *simulation.Game
	previousGame *simulation.Game
}

// NewManager constructs an empty session manager for one server run.
func NewManager(constants simulation.GameConstants, seed *rng.Generator, logger *log.Logger) *Manager {
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}
	return &Manager{
		constants:     constants,
		seed:          seed,
		logger:        logger,
		clientsByAddr: make(map[addrKey]Idx),
		namedWorms:    make(map[Idx]bool),
		observerWorms: make(map[Idx]bool),
		namesInUse:    make(map[string]bool),
	}
}

// CurrentGame returns the running (or just-finished) game, or nil.
func (m *Manager) CurrentGame() *simulation.Game { return m.currentGame }

// PreviousGame returns the game before CurrentGame, retained for late
// heartbeat responses, or nil.
func (m *Manager) PreviousGame() *simulation.Game { return m.previousGame }

func (m *Manager) isGameRunning() bool {
	return m.currentGame != nil && !m.currentGame.Finished
}

// Tick advances the round counter, steps the current game (if any is
// running), and evicts any session that has been idle for IdleTimeout.
func (m *Manager) Tick() {
	m.currentRound++

	if m.isGameRunning() {
		m.currentGame.Step()
	}

	m.evictIdleSessions()
}

// HeartbeatResponse tells the caller which event log to answer from, and
// from what event number, after processing a heartbeat. HandleHeartbeat
// returns a nil *HeartbeatResponse if no response is due.
type HeartbeatResponse struct {
	Addr        *net.UDPAddr
	Source      *simulation.Game
	FromEventNo uint32
}

// HandleHeartbeat implements the full decision tree of spec §4.3.
func (m *Manager) HandleHeartbeat(hb protocol.Heartbeat, addr *net.UDPAddr) *HeartbeatResponse {
	if !protocol.ValidName(hb.PlayerName) {
		m.logger.Debug().Str("name", hb.PlayerName).Msg("dropping heartbeat: invalid name")
		return nil
	}
	if !protocol.ValidTurnDirection(hb.TurnDirection) {
		m.logger.Debug().Uint8("turn_direction", hb.TurnDirection).Msg("dropping heartbeat: invalid turn_direction")
		return nil
	}

	key := makeAddrKey(addr)
	sessionIdx, ok := m.clientsByAddr[key]
	if !ok {
		return m.handleNewSession(hb, addr, key)
	}

	sess, ok := m.sessions.Get(sessionIdx)
	if !ok {
		delete(m.clientsByAddr, key)
		return m.handleNewSession(hb, addr, key)
	}

	switch {
	case hb.SessionID == sess.sessionID:
		return m.handleSameSession(hb, sess, sessionIdx)
	case hb.SessionID > sess.sessionID:
		m.disconnect(sessionIdx)
		return m.handleNewSession(hb, addr, key)
	default: // hb.SessionID < sess.sessionID
		m.logger.Debug().Msg("dropping heartbeat: stale session_id")
		return nil
	}
}

func (m *Manager) handleNewSession(hb protocol.Heartbeat, addr *net.UDPAddr, key addrKey) *HeartbeatResponse {
	if hb.PlayerName != "" && m.namesInUse[hb.PlayerName] {
		m.logger.Debug().Str("name", hb.PlayerName).Msg("dropping heartbeat: name in use")
		return nil
	}

	worm := simulation.NewWorm(hb.PlayerName)
	worm.Addr = addr
	worm.TurnDirection = hb.TurnDirection
	wormIdx := m.worms.Alloc(worm)

	sess := &clientSession{
		addr:                 addr,
		sessionID:            hb.SessionID,
		lastHeartbeatRoundNo: m.currentRound,
		worm:                 wormIdx,
	}
	sessionIdx := m.sessions.Alloc(sess)
	m.clientsByAddr[key] = sessionIdx

	if hb.PlayerName != "" {
		m.namedWorms[wormIdx] = true
		m.namesInUse[hb.PlayerName] = true
	} else {
		m.observerWorms[wormIdx] = true
	}

	if m.isGameRunning() {
		m.currentGame.Observers = append(m.currentGame.Observers, WormHandle{slab: &m.worms, idx: wormIdx})
	}

	return nil
}

func (m *Manager) handleSameSession(hb protocol.Heartbeat, sess *clientSession, sessionIdx Idx) *HeartbeatResponse {
	sess.lastHeartbeatRoundNo = m.currentRound

	worm, ok := m.worms.Get(sess.worm)
	if !ok {
		return nil
	}
	worm.TurnDirection = hb.TurnDirection

	var resp *HeartbeatResponse
	if src := m.logSourceFor(); src != nil {
		resp = &HeartbeatResponse{Addr: sess.addr, Source: src, FromEventNo: hb.NextExpectedEventNo}
	}

	if !m.isGameRunning() && hb.TurnDirection != protocol.Straight {
		worm.Ready = true
		m.tryStartGame()
	}

	return resp
}

// logSourceFor picks the event log a heartbeat response should be answered
// from: the current game if one exists (running or just-finished), else the
// previous one, matching spec §4.3/§4.4.
func (m *Manager) logSourceFor() *simulation.Game {
	if m.currentGame != nil {
		return m.currentGame
	}
	return m.previousGame
}

func (m *Manager) tryStartGame() {
	if m.isGameRunning() {
		return
	}
	if len(m.namedWorms) < 2 {
		return
	}

	participants := make([]*simulation.Worm, 0, len(m.namedWorms))
	for idx := range m.namedWorms {
		w, ok := m.worms.Get(idx)
		if !ok {
			continue
		}
		if !w.Ready {
			return // not every named worm is ready yet
		}
		participants = append(participants, w)
	}

	observers := make([]simulation.ObserverHandle, 0, len(m.observerWorms))
	for idx := range m.observerWorms {
		observers = append(observers, WormHandle{slab: &m.worms, idx: idx})
	}

	m.previousGame = m.currentGame
	m.currentGame = simulation.NewGame(m.constants, m.seed, participants, observers)

	for _, w := range participants {
		w.Ready = false
	}
}

// disconnect removes the session at sessionIdx: clients_by_addr, the
// name/observer tables, and marks the worm disconnected. The worm itself
// survives if a running Game holds a strong reference to it.
func (m *Manager) disconnect(sessionIdx Idx) {
	sess, ok := m.sessions.Get(sessionIdx)
	if !ok {
		return
	}

	delete(m.clientsByAddr, makeAddrKey(sess.addr))

	if worm, ok := m.worms.Get(sess.worm); ok {
		if worm.Name != "" {
			delete(m.namedWorms, sess.worm)
			delete(m.namesInUse, worm.Name)
		} else {
			delete(m.observerWorms, sess.worm)
		}
		worm.Connected = false
		worm.Addr = nil
	}
	m.worms.Free(sess.worm)
	m.sessions.Free(sessionIdx)
}

func (m *Manager) evictIdleSessions() {
	var stale []Idx
	for key, idx := range m.clientsByAddr {
		sess, ok := m.sessions.Get(idx)
		if !ok {
			delete(m.clientsByAddr, key)
			continue
		}
		elapsedRounds := m.currentRound - sess.lastHeartbeatRoundNo
		if time.Duration(elapsedRounds)*m.roundDuration() >= IdleTimeout {
			stale = append(stale, idx)
		}
	}
	for _, idx := range stale {
		m.disconnect(idx)
	}
}

func (m *Manager) roundDuration() time.Duration {
	return time.Second / time.Duration(m.constants.RoundsPerSec)
}
