package guiline_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/wormsnet/wormsnet/internal/guiline"
)

func TestWriteNewGame(t *testing.T) {
	is := is.New(t)

	buf := &bytes.Buffer{}
	is.NoErr(guiline.WriteNewGame(buf, 800, 600, []string{"a", "b"}))
	is.Equal(buf.String(), "NEW_GAME 800 600 a b\n")
}

func TestWritePixel(t *testing.T) {
	is := is.New(t)

	buf := &bytes.Buffer{}
	is.NoErr(guiline.WritePixel(buf, 10, 20, "a"))
	is.Equal(buf.String(), "PIXEL 10 20 a\n")
}

func TestWritePlayerEliminated(t *testing.T) {
	is := is.New(t)

	buf := &bytes.Buffer{}
	is.NoErr(guiline.WritePlayerEliminated(buf, "a"))
	is.Equal(buf.String(), "PLAYER_ELIMINATED a\n")
}

func TestParseKeyEvent(t *testing.T) {
	is := is.New(t)

	ke, ok := guiline.ParseKeyEvent("LEFT_KEY_DOWN")
	is.True(ok)
	is.Equal(ke, guiline.LeftKeyDown)

	_, ok = guiline.ParseKeyEvent("NONSENSE")
	is.True(!ok)
}

func TestScanKeyEventsSkipsInvalidLines(t *testing.T) {
	is := is.New(t)

	input := "LEFT_KEY_DOWN\nbogus line\nRIGHT_KEY_UP\n"
	var got []guiline.KeyEvent
	err := guiline.ScanKeyEvents(strings.NewReader(input), func(ke guiline.KeyEvent) {
		got = append(got, ke)
	})
	is.NoErr(err)
	is.Equal(len(got), 2)
	is.Equal(got[0], guiline.LeftKeyDown)
	is.Equal(got[1], guiline.RightKeyUp)
}
