package purego

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

const (
	argonVersion = 0x13
	argonTypeD   = 0

	// blockSize is the Argon2 block size in bytes.
	blockSize = 1024
	// blockWords is the number of 64-bit words in a block.
	blockWords = blockSize / 8
	// syncPoints is the number of segments per lane and pass.
	syncPoints = 4
)

type block [blockWords]uint64

// fillArgon2d runs single-lane Argon2d over mem. The filled memory is the
// cache; no tag is produced.
func fillArgon2d(mem []block, key, salt []byte, passes uint32) {
	h0 := argonH0(key, salt, uint32(len(mem)), passes)

	var seed [72]byte
	copy(seed[:64], h0[:])
	for i := uint32(0); i < 2; i++ {
		binary.LittleEndian.PutUint32(seed[64:68], i)
		binary.LittleEndian.PutUint32(seed[68:72], 0)
		loadBlock(&mem[i], blake2bLong(seed[:], blockSize))
	}

	laneLength := uint32(len(mem))
	segmentLength := laneLength / syncPoints
	for pass := uint32(0); pass < passes; pass++ {
		for slice := uint32(0); slice < syncPoints; slice++ {
			first := uint32(0)
			if pass == 0 && slice == 0 {
				first = 2
			}
			for index := first; index < segmentLength; index++ {
				cur := slice*segmentLength + index
				prev := cur - 1
				if cur == 0 {
					prev = laneLength - 1
				}
				ref := argonRefIndex(mem[prev][0], pass, slice, index, segmentLength, laneLength)
				compressBlock(&mem[cur], &mem[prev], &mem[ref], pass > 0)
			}
		}
	}
}

// argonH0 computes the Argon2 pre-hashing digest for a single lane with no
// secret, no associated data and a zero tag length.
func argonH0(key, salt []byte, memory, passes uint32) [64]byte {
	h, _ := blake2b.New512(nil)
	var word [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(word[:], v)
		h.Write(word[:])
	}
	put(1) // lanes
	put(0) // tag length
	put(memory)
	put(passes)
	put(argonVersion)
	put(argonTypeD)
	put(uint32(len(key)))
	h.Write(key)
	put(uint32(len(salt)))
	h.Write(salt)
	put(0) // secret
	put(0) // associated data

	var out [64]byte
	h.Sum(out[:0])
	return out
}

// argonRefIndex maps the pseudo-random word of the previous block to the
// reference block index within the single lane.
func argonRefIndex(rand uint64, pass, slice, index, segmentLength, laneLength uint32) uint32 {
	var area, start uint32
	if pass == 0 {
		area = slice*segmentLength + index - 1
	} else {
		area = laneLength - segmentLength + index - 1
		if slice != syncPoints-1 {
			start = (slice + 1) * segmentLength
		}
	}

	x := rand & 0xffffffff
	x = (x * x) >> 32
	rel := uint64(area) - 1 - ((uint64(area) * x) >> 32)
	return uint32((uint64(start) + rel) % uint64(laneLength))
}

// compressBlock computes dst = G(prev, ref), xoring into dst after the first pass.
func compressBlock(dst, prev, ref *block, xor bool) {
	var r, t block
	for i := range r {
		r[i] = prev[i] ^ ref[i]
	}
	t = r

	for i := 0; i < blockWords; i += 16 {
		blamkaRound(&t,
			i+0, i+1, i+2, i+3, i+4, i+5, i+6, i+7,
			i+8, i+9, i+10, i+11, i+12, i+13, i+14, i+15)
	}
	for i := 0; i < 16; i += 2 {
		blamkaRound(&t,
			i, i+1, 16+i, 16+i+1, 32+i, 32+i+1, 48+i, 48+i+1,
			64+i, 64+i+1, 80+i, 80+i+1, 96+i, 96+i+1, 112+i, 112+i+1)
	}

	if xor {
		for i := range dst {
			dst[i] ^= r[i] ^ t[i]
		}
		return
	}
	for i := range dst {
		dst[i] = r[i] ^ t[i]
	}
}

func blamkaRound(b *block, i0, i1, i2, i3, i4, i5, i6, i7, i8, i9, i10, i11, i12, i13, i14, i15 int) {
	blamkaG(b, i0, i4, i8, i12)
	blamkaG(b, i1, i5, i9, i13)
	blamkaG(b, i2, i6, i10, i14)
	blamkaG(b, i3, i7, i11, i15)

	blamkaG(b, i0, i5, i10, i15)
	blamkaG(b, i1, i6, i11, i12)
	blamkaG(b, i2, i7, i8, i13)
	blamkaG(b, i3, i4, i9, i14)
}

func blamkaG(v *block, a, b, c, d int) {
	v[a] = fBlaMka(v[a], v[b])
	v[d] = bits.RotateLeft64(v[d]^v[a], -32)
	v[c] = fBlaMka(v[c], v[d])
	v[b] = bits.RotateLeft64(v[b]^v[c], -24)
	v[a] = fBlaMka(v[a], v[b])
	v[d] = bits.RotateLeft64(v[d]^v[a], -16)
	v[c] = fBlaMka(v[c], v[d])
	v[b] = bits.RotateLeft64(v[b]^v[c], -63)
}

func fBlaMka(x, y uint64) uint64 {
	return x + y + 2*uint64(uint32(x))*uint64(uint32(y))
}

// blake2bLong is the variable-length hash H' of RFC 9106.
func blake2bLong(in []byte, outLen int) []byte {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(outLen))

	if outLen <= blake2b.Size {
		h, _ := blake2b.New(outLen, nil)
		h.Write(prefix[:])
		h.Write(in)
		return h.Sum(nil)
	}

	out := make([]byte, 0, outLen)
	h, _ := blake2b.New512(nil)
	h.Write(prefix[:])
	h.Write(in)
	v := h.Sum(nil)
	out = append(out, v[:32]...)

	for outLen-len(out) > blake2b.Size {
		sum := blake2b.Sum512(v)
		v = sum[:]
		out = append(out, v[:32]...)
	}

	h, _ = blake2b.New(outLen-len(out), nil)
	h.Write(v)
	return h.Sum(out)
}

func loadBlock(b *block, data []byte) {
	for i := range b {
		b[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
}

