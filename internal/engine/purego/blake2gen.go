package purego

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// blake2Generator is the deterministic byte stream that drives
// SuperscalarHash program generation. The 64-byte state is rehashed with
// Blake2b-512 whenever it runs out.
type blake2Generator struct {
	data [64]byte
	pos  int
}

// newBlake2Generator seeds the generator with up to 60 bytes of seed followed
// by a little-endian nonce.
func newBlake2Generator(seed []byte, nonce uint32) *blake2Generator {
	g := &blake2Generator{pos: 64}
	copy(g.data[:60], seed)
	binary.LittleEndian.PutUint32(g.data[60:], nonce)
	return g
}

func (g *blake2Generator) refill(need int) {
	if g.pos+need > len(g.data) {
		g.data = blake2b.Sum512(g.data[:])
		g.pos = 0
	}
}

func (g *blake2Generator) getByte() byte {
	g.refill(1)
	b := g.data[g.pos]
	g.pos++
	return b
}

func (g *blake2Generator) getUint32() uint32 {
	g.refill(4)
	v := binary.LittleEndian.Uint32(g.data[g.pos:])
	g.pos += 4
	return v
}
