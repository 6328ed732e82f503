package gameclient

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

func TestRingBufferWriteAndFlushPreservesOrder(t *testing.T) {
	is := is.New(t)

	r := newRingBuffer()
	_, err := r.Write([]byte("hello "))
	is.NoErr(err)
	_, err = r.Write([]byte("world"))
	is.NoErr(err)

	buf := &bytes.Buffer{}
	is.NoErr(r.Flush(buf))
	is.Equal(buf.String(), "hello world")
	is.Equal(r.Len(), 0)
}

func TestRingBufferGrowsPastInitialCapacity(t *testing.T) {
	is := is.New(t)

	r := newRingBuffer()
	big := bytes.Repeat([]byte("x"), initialRingCap*3)
	_, err := r.Write(big)
	is.NoErr(err)
	is.True(len(r.buf) > initialRingCap)

	buf := &bytes.Buffer{}
	is.NoErr(r.Flush(buf))
	is.Equal(buf.Bytes(), big)
}

func TestRingBufferShrinksAfterFullyDraining(t *testing.T) {
	is := is.New(t)

	r := newRingBuffer()
	_, err := r.Write(bytes.Repeat([]byte("x"), initialRingCap*4))
	is.NoErr(err)
	is.True(len(r.buf) > initialRingCap)

	buf := &bytes.Buffer{}
	is.NoErr(r.Flush(buf))
	is.Equal(r.Len(), 0)
	is.Equal(len(r.buf), initialRingCap) // shrunk back once fully drained

	// still usable after shrinking.
	_, err = r.Write([]byte("ok"))
	is.NoErr(err)
	buf.Reset()
	is.NoErr(r.Flush(buf))
	is.Equal(buf.String(), "ok")
}
