package rng_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/wormsnet/wormsnet/internal/rng"
)

func TestFirstDrawIsSeed(t *testing.T) {
	is := is.New(t)

	g := rng.New(777)
	is.Equal(g.Next(), uint32(777))
}

func TestSequenceIsDeterministic(t *testing.T) {
	is := is.New(t)

	a := rng.New(42)
	b := rng.New(42)
	for i := 0; i < 100; i++ {
		is.Equal(a.Next(), b.Next())
	}
}

func TestNextModIsBounded(t *testing.T) {
	is := is.New(t)

	g := rng.New(1234567)
	for i := 0; i < 1000; i++ {
		v := g.NextMod(640)
		is.True(v < 640)
	}
}
