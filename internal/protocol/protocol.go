// Package protocol implements the datagram wire format shared by the game
// server and the game client: the CRC32-framed event stream and the
// client-to-server heartbeat.
package protocol

import (
	"bytes"
	"fmt"
	"hash/crc32"

	"github.com/wormsnet/wormsnet/internal/byteorder"
	"github.com/wormsnet/wormsnet/internal/debug"
)

// MTU is the fixed per-datagram cap used by both sides. A datagram of
// exactly MTU bytes is accepted; one byte more is not.
const MTU = 550

// TurnDirection values sent in a heartbeat and stored on a Worm.
const (
	Straight uint8 = 0
	Right    uint8 = 1
	Left     uint8 = 2
)

// Event kind tags, matching the wire's event_type byte.
const (
	NewGameNum          uint8 = 0
	PixelNum            uint8 = 1
	PlayerEliminatedNum uint8 = 2
	GameOverNum         uint8 = 3
)

// EventHeaderSize is len(4) + event_no(4) + event_type(1).
const EventHeaderSize = 4 + 4 + 1

// TrailerSize is the CRC32 trailer.
const TrailerSize = 4

// ErrKind classifies why a datagram was rejected. The zero value means "ok".
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrTruncated
	ErrBadData
	ErrCrcMismatch
)

// Error wraps a decode failure with its kind so callers can decide whether to
// drop the whole datagram or just the offending event.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func errTruncated(msg string) error { return &Error{Kind: ErrTruncated, Msg: msg} }
func errBadData(msg string) error   { return &Error{Kind: ErrBadData, Msg: msg} }
func errCrc(msg string) error       { return &Error{Kind: ErrCrcMismatch, Msg: msg} }

// EventData is implemented by each of the four event variants: NewGame,
// Pixel, PlayerEliminated, GameOver.
type EventData interface {
	Kind() uint8
	encode(buf *bytes.Buffer)
}

// Event is one entry of a Game's append-only event log.
type Event struct {
	EventNo uint32
	Data    EventData
}

// NewGame is event 0 of every game.
type NewGame struct {
	MaxX, MaxY uint32
	Names      []string
}

func (NewGame) Kind() uint8 { return NewGameNum }

func (n NewGame) encode(buf *bytes.Buffer) {
	buf.Write(byteorder.Htonl(n.MaxX))
	buf.Write(byteorder.Htonl(n.MaxY))
	for _, name := range n.Names {
		buf.WriteString(name)
		buf.WriteByte(0)
	}
}

// Pixel records a worm occupying (X, Y) at this event.
type Pixel struct {
	PlayerIndex uint8
	X, Y        uint32
}

func (Pixel) Kind() uint8 { return PixelNum }

func (p Pixel) encode(buf *bytes.Buffer) {
	buf.WriteByte(p.PlayerIndex)
	buf.Write(byteorder.Htonl(p.X))
	buf.Write(byteorder.Htonl(p.Y))
}

// PlayerEliminated marks a worm as dead.
type PlayerEliminated struct {
	PlayerIndex uint8
}

func (PlayerEliminated) Kind() uint8 { return PlayerEliminatedNum }

func (p PlayerEliminated) encode(buf *bytes.Buffer) {
	buf.WriteByte(p.PlayerIndex)
}

// GameOver is the final event of a finished game, if the game finished.
type GameOver struct{}

func (GameOver) Kind() uint8          { return GameOverNum }
func (GameOver) encode(*bytes.Buffer) {}

// crcTable is the standard IEEE 802.3 CRC32 (reflected input/output,
// polynomial 0xEDB88320), matching the source's Crc32Computer exactly.
var crcTable = crc32.IEEETable

// EncodeEvent renders one event as it appears on the wire:
// len | event_no | event_type | data | crc32, all big-endian. len covers
// event_no + event_type + data only.
func EncodeEvent(e Event) []byte {
	body := &bytes.Buffer{}
	e.Data.encode(body)

	length := uint32(4 + 1 + body.Len()) // event_no + event_type + data

	frame := &bytes.Buffer{}
	frame.Write(byteorder.Htonl(length))
	frame.Write(byteorder.Htonl(e.EventNo))
	frame.WriteByte(e.Data.Kind())
	frame.Write(body.Bytes())

	crc := crc32.Checksum(frame.Bytes(), crcTable)

	out := &bytes.Buffer{}
	out.Write(frame.Bytes())
	out.Write(byteorder.Htonl(crc))

	data := out.Bytes()
	debug.Assert(len(data) == int(length)+4+4)
	return data
}

// DecodeEvent parses one framed event from the front of data: len | event_no
// | event_type | data | crc32. On success it returns the number of bytes
// consumed (4 + len + 4).
func DecodeEvent(data []byte) (Event, int, error) {
	if len(data) < 4 {
		return Event{}, 0, errTruncated("short event length field")
	}
	length := byteorder.Ntohl(data[0:4])
	total := 4 + int(length) + TrailerSize
	if len(data) < total {
		return Event{}, 0, errTruncated("event body/crc truncated")
	}

	wantCrc := byteorder.Ntohl(data[4+length : 4+length+4])
	gotCrc := crc32.Checksum(data[0:4+length], crcTable)
	if wantCrc != gotCrc {
		return Event{}, 0, errCrc("crc32 mismatch")
	}

	if length < 5 {
		return Event{}, 0, errBadData("event shorter than event_no+event_type")
	}
	eventNo := byteorder.Ntohl(data[4:8])
	eventType := data[8]
	payload := data[9 : 4+length]

	ed, err := decodeEventData(eventType, payload)
	if err != nil {
		return Event{}, 0, err
	}

	return Event{EventNo: eventNo, Data: ed}, total, nil
}

func decodeEventData(kind uint8, payload []byte) (EventData, error) {
	switch kind {
	case NewGameNum:
		if len(payload) < 8 {
			return nil, errBadData("truncated new_game")
		}
		maxX := byteorder.Ntohl(payload[0:4])
		maxY := byteorder.Ntohl(payload[4:8])
		var names []string
		rest := payload[8:]
		for len(rest) > 0 {
			idx := bytes.IndexByte(rest, 0)
			if idx < 0 {
				return nil, errBadData("unterminated player name")
			}
			names = append(names, string(rest[:idx]))
			rest = rest[idx+1:]
		}
		return NewGame{MaxX: maxX, MaxY: maxY, Names: names}, nil
	case PixelNum:
		if len(payload) != 9 {
			return nil, errBadData("bad pixel size")
		}
		return Pixel{
			PlayerIndex: payload[0],
			X:           byteorder.Ntohl(payload[1:5]),
			Y:           byteorder.Ntohl(payload[5:9]),
		}, nil
	case PlayerEliminatedNum:
		if len(payload) != 1 {
			return nil, errBadData("bad player_eliminated size")
		}
		return PlayerEliminated{PlayerIndex: payload[0]}, nil
	case GameOverNum:
		if len(payload) != 0 {
			return nil, errBadData("bad game_over size")
		}
		return GameOver{}, nil
	default:
		// unknown event_type: DecodeDatagram skips just this event using
		// len and keeps parsing the rest of the datagram.
		return nil, &Error{Kind: ErrBadData, Msg: fmt.Sprintf("unknown event_type %d", kind)}
	}
}

// PackDatagrams packs events (already known to be in ascending event_no
// order) into one or more datagrams, each prefixed with gameID and each
// respecting MTU. It never splits a single event across two datagrams.
func PackDatagrams(gameID uint32, events []Event) [][]byte {
	var datagrams [][]byte
	var cur *bytes.Buffer

	startDatagram := func() {
		cur = &bytes.Buffer{}
		cur.Write(byteorder.Htonl(gameID))
	}

	for _, e := range events {
		encoded := EncodeEvent(e)
		if cur == nil {
			startDatagram()
		}
		if cur.Len()+len(encoded) > MTU {
			datagrams = append(datagrams, cur.Bytes())
			startDatagram()
		}
		cur.Write(encoded)
	}
	if cur != nil {
		datagrams = append(datagrams, cur.Bytes())
	}
	return datagrams
}

// Datagram is a decoded server->client datagram: the game id it belongs to
// plus every event that parsed cleanly before any fatal error was hit.
type Datagram struct {
	GameID uint32
	Events []Event
}

// DecodeDatagram parses a full server->client datagram. On CrcMismatch it
// stops and returns the events successfully parsed so far along with the
// error, matching the client's "discard remainder of datagram" behavior.
// Unknown event types are skipped (using their len) but do not abort
// parsing.
func DecodeDatagram(data []byte) (Datagram, error) {
	if len(data) > MTU {
		return Datagram{}, errTruncated("datagram exceeds MTU")
	}
	if len(data) < 4 {
		return Datagram{}, errTruncated("datagram missing game_id")
	}
	gameID := byteorder.Ntohl(data[0:4])
	rest := data[4:]

	dg := Datagram{GameID: gameID}
	for len(rest) > 0 {
		e, n, err := DecodeEvent(rest)
		if err == nil {
			dg.Events = append(dg.Events, e)
			rest = rest[n:]
			continue
		}

		perr, ok := err.(*Error)
		if !ok || perr.Kind == ErrCrcMismatch || perr.Kind == ErrTruncated {
			return dg, err
		}

		// unknown event type or malformed-but-crc-valid payload: skip using
		// len and keep parsing the rest of the datagram.
		if len(rest) < 4 {
			return dg, errTruncated("dangling bytes after last event")
		}
		length := byteorder.Ntohl(rest[0:4])
		skip := 4 + int(length) + TrailerSize
		if skip > len(rest) {
			return dg, errTruncated("event length overruns datagram")
		}
		rest = rest[skip:]
	}
	return dg, nil
}

// Heartbeat is the client->server datagram.
type Heartbeat struct {
	SessionID           uint64
	TurnDirection       uint8
	NextExpectedEventNo uint32
	PlayerName          string
}

const heartbeatFixedSize = 8 + 1 + 4 // session_id + turn_direction + next_expected

// MaxNameLen is the maximum player name length in bytes.
const MaxNameLen = 20

// EncodeHeartbeat renders a heartbeat as it appears on the wire. The name
// carries no terminator on the wire; its length is implied by the datagram
// size.
func EncodeHeartbeat(h Heartbeat) []byte {
	debug.Assert(len(h.PlayerName) <= MaxNameLen)

	buf := &bytes.Buffer{}
	sidBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		sidBytes[i] = byte(h.SessionID >> uint(56-8*i))
	}
	buf.Write(sidBytes)
	buf.WriteByte(h.TurnDirection)
	buf.Write(byteorder.Htonl(h.NextExpectedEventNo))
	buf.WriteString(h.PlayerName)
	return buf.Bytes()
}

// DecodeHeartbeat parses a client->server heartbeat. Name charset/length
// legality and turn_direction range are the session manager's job (spec
// §4.3 step 1-2) — this only enforces wire shape.
func DecodeHeartbeat(data []byte) (Heartbeat, error) {
	if len(data) < heartbeatFixedSize {
		return Heartbeat{}, errTruncated("heartbeat shorter than fixed fields")
	}
	name := data[heartbeatFixedSize:]
	if len(name) > MaxNameLen {
		return Heartbeat{}, errBadData("player name too long")
	}

	var sid uint64
	for i := 0; i < 8; i++ {
		sid = sid<<8 | uint64(data[i])
	}
	turnDirection := data[8]
	nextExpected := byteorder.Ntohl(data[9:13])

	return Heartbeat{
		SessionID:           sid,
		TurnDirection:       turnDirection,
		NextExpectedEventNo: nextExpected,
		PlayerName:          string(name),
	}, nil
}

// ValidName reports whether name is a legal player name: empty (observer) or
// 1..20 printable-ASCII (33..126) bytes.
func ValidName(name string) bool {
	if name == "" {
		return true
	}
	if len(name) > MaxNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 33 || name[i] > 126 {
			return false
		}
	}
	return true
}

// ValidTurnDirection reports whether dir is one of Straight, Right, Left.
func ValidTurnDirection(dir uint8) bool {
	return dir == Straight || dir == Right || dir == Left
}
