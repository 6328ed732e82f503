// Package gameserver owns the UDP socket, the round ticker, and the session
// manager: it is the server half of the wire protocol (spec §4.4, §5).
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"

	"github.com/wormsnet/wormsnet/internal/debug"
	"github.com/wormsnet/wormsnet/internal/protocol"
	"github.com/wormsnet/wormsnet/internal/rng"
	"github.com/wormsnet/wormsnet/internal/session"
	"github.com/wormsnet/wormsnet/internal/simulation"
)

type incomingHeartbeat struct {
	hb   protocol.Heartbeat
	addr *net.UDPAddr
}

// Server is the worms UDP game server: one goroutine owns all game state
// (spec §5's "single-threaded cooperative" model), fed by a reader goroutine
// over a channel so it never blocks on socket I/O mid-round.
type Server struct {
	conn *net.UDPConn

	logger *log.Logger

	manager      *session.Manager
	tickInterval time.Duration

	heartbeatCh chan incomingHeartbeat
	fatalErrCh  chan error
	readBuf     []byte
}

// New binds a UDP socket on network/address and constructs the session
// manager around constants/seed. cmd/server passes "udp" with an empty host,
// which Go binds dual-stack so both v4 and v6 peers can connect.
func New(network, address string, constants simulation.GameConstants, seed uint32, logger *log.Logger) (*Server, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not resolve udp addr: %w", err)
	}

	conn, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen udp: %w", err)
	}

	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	return &Server{
		conn:         conn,
		logger:       logger,
		manager:      session.NewManager(constants, rng.New(seed), logger),
		tickInterval: time.Second / time.Duration(constants.RoundsPerSec),
		heartbeatCh:  make(chan incomingHeartbeat, 256),
		fatalErrCh:   make(chan error, 1),
		readBuf:      make([]byte, protocol.MTU),
	}, nil
}

// Addr returns the server's bound address, useful when constructed with
// port 0 (as tests do).
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) runRecv(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
				debug.Assert(false, "set read deadline")
			}

			n, addr, err := s.conn.ReadFromUDP(s.readBuf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if errors.Is(err, net.ErrClosed) {
					// the socket was closed by Run's own shutdown path, not
					// a fault: nothing to report.
					return
				}
				// spec §7: an unexpected socket read error is IO-fatal, not
				// a recoverable per-datagram condition like a decode error.
				s.logger.Error().Msgf("could not read from udp: %v", err)
				select {
				case s.fatalErrCh <- fmt.Errorf("udp read: %w", err):
				case <-ctx.Done():
				}
				return
			}

			hb, err := protocol.DecodeHeartbeat(s.readBuf[:n])
			if err != nil {
				// protocol-invalid datagrams are silently dropped (spec §7);
				// never terminates, never evicts.
				s.logger.Debug().Msgf("dropping malformed heartbeat from %s: %v", addr, err)
				continue
			}

			select {
			case s.heartbeatCh <- incomingHeartbeat{hb: hb, addr: addr}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Run drives the server until ctx is cancelled or the reader reports a fatal
// error: the round ticker and the decoded-heartbeat channel are the only
// sources of work this goroutine waits on, so every mutation of
// session/game state happens on this one goroutine and needs no locking.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runRecv(ctx)
	}()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return s.conn.Close()
		case fatal := <-s.fatalErrCh:
			cancel()
			wg.Wait()
			_ = s.conn.Close()
			return fatal
		case <-ticker.C:
			s.manager.Tick()
			if err := s.disseminate(); err != nil {
				s.logger.Error().Msgf("disseminate: %v", err)
			}
		case in := <-s.heartbeatCh:
			s.handleHeartbeat(in)
		}
	}
}

func (s *Server) handleHeartbeat(in incomingHeartbeat) {
	resp := s.manager.HandleHeartbeat(in.hb, in.addr)
	if resp == nil {
		return
	}
	if resp.FromEventNo > uint32(len(resp.Source.Events)) {
		return
	}
	s.sendEvents(resp.Addr, resp.Source.GameID, resp.Source.Events[resp.FromEventNo:])
}

// disseminate implements spec §4.4's per-round bulk send: every connected
// player and live observer of the current game receives events from
// next_disseminated_event_no onward, then the cursor advances.
func (s *Server) disseminate() error {
	game := s.manager.CurrentGame()
	if game == nil {
		return nil
	}

	var errs error
	for _, w := range game.Players {
		if !w.Connected || w.Addr == nil {
			continue
		}
		if err := s.trySendEvents(w.Addr, game.GameID, game.Events[game.NextDisseminatedEventNo:]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	game.PruneExpiredObservers()
	for _, o := range game.Observers {
		w, ok := o.Resolve()
		if !ok || !w.Connected || w.Addr == nil {
			continue
		}
		if err := s.trySendEvents(w.Addr, game.GameID, game.Events[game.NextDisseminatedEventNo:]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	game.NextDisseminatedEventNo = uint32(len(game.Events))
	return errs
}

// sendEvents sends and logs failures without surfacing them: per spec §7 a
// send failure to one recipient is never fatal to the server.
func (s *Server) sendEvents(addr *net.UDPAddr, gameID uint32, events []protocol.Event) {
	if err := s.trySendEvents(addr, gameID, events); err != nil {
		s.logger.Error().Msgf("could not send events to %s: %v", addr, err)
	}
}

func (s *Server) trySendEvents(addr *net.UDPAddr, gameID uint32, events []protocol.Event) error {
	if len(events) == 0 {
		return nil
	}
	var errs error
	for _, datagram := range protocol.PackDatagrams(gameID, events) {
		if _, err := s.conn.WriteToUDP(datagram, addr); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
