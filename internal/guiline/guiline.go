// Package guiline implements the line-oriented text protocol spoken between
// the game client and its GUI process over TCP: whitespace-separated tokens
// terminated by "\n" in both directions.
package guiline

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// KeyEvent is one line the GUI sends the client.
type KeyEvent int

const (
	LeftKeyDown KeyEvent = iota
	LeftKeyUp
	RightKeyDown
	RightKeyUp
)

var keyEventNames = map[string]KeyEvent{
	"LEFT_KEY_DOWN":  LeftKeyDown,
	"LEFT_KEY_UP":    LeftKeyUp,
	"RIGHT_KEY_DOWN": RightKeyDown,
	"RIGHT_KEY_UP":   RightKeyUp,
}

// ParseKeyEvent decodes one GUI->client line. Invalid lines return false;
// per spec the caller should skip to the next newline and continue, which a
// bufio.Scanner already does line-by-line.
func ParseKeyEvent(line string) (KeyEvent, bool) {
	ke, ok := keyEventNames[strings.TrimSpace(line)]
	return ke, ok
}

// WriteNewGame writes "NEW_GAME <maxx> <maxy> <player_name>...\n".
func WriteNewGame(w io.Writer, maxX, maxY uint32, names []string) error {
	fields := []string{"NEW_GAME", strconv.FormatUint(uint64(maxX), 10), strconv.FormatUint(uint64(maxY), 10)}
	fields = append(fields, names...)
	_, err := fmt.Fprintf(w, "%s\n", strings.Join(fields, " "))
	return err
}

// WritePixel writes "PIXEL <x> <y> <player_name>\n".
func WritePixel(w io.Writer, x, y uint32, playerName string) error {
	_, err := fmt.Fprintf(w, "PIXEL %d %d %s\n", x, y, playerName)
	return err
}

// WritePlayerEliminated writes "PLAYER_ELIMINATED <player_name>\n".
func WritePlayerEliminated(w io.Writer, playerName string) error {
	_, err := fmt.Fprintf(w, "PLAYER_ELIMINATED %s\n", playerName)
	return err
}

// ScanKeyEvents reads newline-terminated lines from r, calling onEvent for
// every recognized one and silently skipping malformed lines, forever until
// r is exhausted or errors.
func ScanKeyEvents(r io.Reader, onEvent func(KeyEvent)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ke, ok := ParseKeyEvent(scanner.Text()); ok {
			onEvent(ke)
		}
	}
	return scanner.Err()
}
