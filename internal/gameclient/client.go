// Package gameclient wires a server UDP connection and a GUI TCP connection
// to an internal/reassembler, following the source's Client: a heartbeat
// timer, a server-datagram reader, and a GUI line reader, all feeding one
// owning goroutine so turn_direction and the reassembly state never need a
// lock.
package gameclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/wormsnet/wormsnet/internal/debug"
	"github.com/wormsnet/wormsnet/internal/guiline"
	"github.com/wormsnet/wormsnet/internal/protocol"
	"github.com/wormsnet/wormsnet/internal/reassembler"
)

// HeartbeatInterval matches Client.h's COMMUNICATION_INTERVAL (30ms).
const HeartbeatInterval = 30 * time.Millisecond

// Client is the worms UDP game client: it speaks the binary protocol to the
// game server and the line protocol to a GUI process over TCP.
type Client struct {
	serverConn *net.UDPConn
	guiConn    net.Conn

	logger *log.Logger

	sessionID  uint64
	playerName string

	readBuf []byte

	reasm  *reassembler.Reassembler
	guiOut *ringBuffer

	turnDirection uint8 // owned exclusively by Run's goroutine

	datagramCh chan []byte
	keyEventCh chan guiline.KeyEvent
	fatalErrCh chan error
}

// New resolves and connects both sockets. sessionID should be unique enough
// to distinguish reconnects from the same player name (spec §6 uses the
// client's start time in microseconds; callers decide how to derive one).
func New(serverNetwork, serverAddress, guiNetwork, guiAddress, playerName string, sessionID uint64, logger *log.Logger) (*Client, error) {
	if !protocol.ValidName(playerName) {
		return nil, fmt.Errorf("invalid player name %q", playerName)
	}

	serverAddr, err := net.ResolveUDPAddr(serverNetwork, serverAddress)
	if err != nil {
		return nil, fmt.Errorf("could not resolve server addr: %w", err)
	}
	serverConn, err := net.DialUDP(serverNetwork, nil, serverAddr)
	if err != nil {
		return nil, fmt.Errorf("could not dial server: %w", err)
	}

	guiConn, err := net.Dial(guiNetwork, guiAddress)
	if err != nil {
		serverConn.Close()
		return nil, fmt.Errorf("could not dial gui: %w", err)
	}
	if tcpConn, ok := guiConn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			serverConn.Close()
			guiConn.Close()
			return nil, fmt.Errorf("could not set tcp_nodelay: %w", err)
		}
	}

	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	return &Client{
		serverConn: serverConn,
		guiConn:    guiConn,
		logger:     logger,
		sessionID:  sessionID,
		playerName: playerName,
		readBuf:    make([]byte, protocol.MTU),
		reasm:      reassembler.New(),
		guiOut:     newRingBuffer(),
		datagramCh: make(chan []byte, 64),
		keyEventCh: make(chan guiline.KeyEvent, 64),
		fatalErrCh: make(chan error, 1),
	}, nil
}

func (c *Client) runServerRecv(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := c.serverConn.SetReadDeadline(time.Now().Add(time.Second))
			debug.Assert(err == nil)

			n, err := c.serverConn.Read(c.readBuf)
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
				c.logger.Error().Msgf("could not read from server: %v", err)
				select {
				case c.fatalErrCh <- fmt.Errorf("server read: %w", err):
				case <-ctx.Done():
				}
				return
			}

			raw := make([]byte, n)
			copy(raw, c.readBuf[:n])

			select {
			case c.datagramCh <- raw:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) runGUIRecv(ctx context.Context) {
	err := guiline.ScanKeyEvents(c.guiConn, func(ke guiline.KeyEvent) {
		select {
		case c.keyEventCh <- ke:
		case <-ctx.Done():
		}
	})
	if err != nil {
		c.logger.Error().Msgf("gui scan ended: %v", err)
	}
}

// Run drives the client until ctx is cancelled. Every mutation of
// turn_direction and the reassembler happens on this one goroutine.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.runServerRecv(ctx)
	}()
	go func() {
		defer wg.Done()
		c.runGUIRecv(ctx)
	}()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// closing the GUI conn unblocks runGUIRecv's read.
			c.guiConn.Close()
			wg.Wait()
			c.serverConn.Close()
			return nil
		case fatal := <-c.fatalErrCh:
			cancel()
			c.guiConn.Close()
			wg.Wait()
			c.serverConn.Close()
			return fatal
		case <-ticker.C:
			c.sendHeartbeat()
		case raw := <-c.datagramCh:
			c.handleDatagram(raw)
		case ke := <-c.keyEventCh:
			c.handleKeyEvent(ke)
		}

		if err := c.guiOut.Flush(c.guiConn); err != nil {
			c.logger.Error().Msgf("could not flush gui output: %v", err)
		}
	}
}

func (c *Client) sendHeartbeat() {
	hb := protocol.Heartbeat{
		SessionID:           c.sessionID,
		TurnDirection:       c.turnDirection,
		NextExpectedEventNo: c.reasm.NextExpectedEventNo(),
		PlayerName:          c.playerName,
	}
	if _, err := c.serverConn.Write(protocol.EncodeHeartbeat(hb)); err != nil {
		c.logger.Error().Msgf("could not send heartbeat: %v", err)
	}
}

// handleDatagram decodes and reassembles raw. Events that parsed and
// CRC-checked successfully before a later failure are still delivered; only
// the remainder of the datagram is lost, matching the source's per-event
// CRC framing.
func (c *Client) handleDatagram(raw []byte) {
	dg, err := protocol.DecodeDatagram(raw)
	if len(dg.Events) > 0 {
		if ferr := c.reasm.Feed(dg, c.guiOut); ferr != nil {
			c.logger.Error().Msgf("could not queue gui line: %v", ferr)
		}
	}
	if err != nil {
		c.logger.Debug().Msgf("datagram decode error: %v", err)
	}
}

// handleKeyEvent implements the GUI line protocol's effect on
// turn_direction (spec §4.6): *_KEY_DOWN sets it, *_KEY_UP resets it to
// STRAIGHT, unconditionally either way.
func (c *Client) handleKeyEvent(ke guiline.KeyEvent) {
	switch ke {
	case guiline.LeftKeyDown:
		c.turnDirection = protocol.Left
	case guiline.LeftKeyUp:
		c.turnDirection = protocol.Straight
	case guiline.RightKeyDown:
		c.turnDirection = protocol.Right
	case guiline.RightKeyUp:
		c.turnDirection = protocol.Straight
	}
}
