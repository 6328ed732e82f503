package simulation

import (
	"math"
	"net"

	"github.com/wormsnet/wormsnet/internal/protocol"
)

// Angle is integer degrees, always kept in [0, 360).
type Angle uint16

func NewAngle(deg int) Angle {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return Angle(deg)
}

func (a Angle) Add(delta uint16) Angle {
	return Angle((uint16(a) + delta) % 360)
}

func (a Angle) Sub(delta uint16) Angle {
	return Angle((uint16(a) + 360 - delta%360) % 360)
}

func (a Angle) Radians() float64 {
	return float64(a) * math.Pi / 180.0
}

// Position is a worm's location in continuous (sub-pixel) coordinates.
type Position struct {
	X, Y float64
}

// MoveWithAngle advances the position by one unit step along angle, the
// same way the source's Position::move_with_angle does.
func (p Position) MoveWithAngle(angle Angle) Position {
	return Position{
		X: p.X + math.Cos(angle.Radians()),
		Y: p.Y + math.Sin(angle.Radians()),
	}
}

// AsPixel floors both coordinates, matching Position::as_pixel. Unlike the
// source (which casts straight to an unsigned integer type), negative
// coordinates are preserved rather than wrapping, so Board.Contains can
// reject them as off-board.
func (p Position) AsPixel() Pixel {
	return Pixel{X: int64(math.Floor(p.X)), Y: int64(math.Floor(p.Y))}
}

// Worm is a controllable entity: a name (empty means observer), position,
// heading, and life/readiness state.
type Worm struct {
	Name          string
	Position      Position
	Angle         Angle
	TurnDirection uint8
	Alive         bool
	Ready         bool
	Connected     bool

	// Addr is the socket address of the owning ClientSession, set/cleared
	// by the session manager. It is what lets dissemination find where to
	// send this worm's events without simulation depending on the session
	// package.
	Addr *net.UDPAddr
}

// IsObserver reports whether this worm has no name and therefore does not
// participate in games.
func (w *Worm) IsObserver() bool {
	return w.Name == ""
}

// NewWorm constructs a freshly-joined worm for the given name.
func NewWorm(name string) *Worm {
	return &Worm{
		Name:          name,
		TurnDirection: protocol.Straight,
		Connected:     true,
	}
}

