package purego

import (
	"crypto/aes"
	"crypto/cipher"
)

// Round keys of the AES-based generators. Columns 0 and 2 are decrypted,
// columns 1 and 3 encrypted.
var (
	gen1RKeys = [4][16]byte{
		{0x53, 0xa5, 0xac, 0x6d, 0x09, 0x66, 0x71, 0x62, 0x2b, 0x55, 0xb5, 0xdb, 0x17, 0x49, 0xf4, 0xb4},
		{0x07, 0xaf, 0x7c, 0x6d, 0x0d, 0x71, 0x6a, 0x84, 0x78, 0xd3, 0x25, 0x17, 0x4e, 0xdc, 0xa1, 0x0d},
		{0xf1, 0x62, 0x12, 0x3f, 0xc6, 0x7e, 0x94, 0x9f, 0x4f, 0x79, 0xc0, 0xf4, 0x45, 0xe3, 0x20, 0x3e},
		{0x35, 0x81, 0xef, 0x6a, 0x7c, 0x31, 0xba, 0xb1, 0x88, 0x4c, 0x31, 0x16, 0x54, 0x91, 0x16, 0x49},
	}
	gen4RKeys = [8][16]byte{
		{0xdd, 0xaa, 0x21, 0x64, 0xdb, 0x3d, 0x83, 0xd1, 0x2b, 0x6d, 0x54, 0x2f, 0x3f, 0xd2, 0xe5, 0x99},
		{0x50, 0x34, 0x0e, 0xb2, 0x55, 0x3f, 0x91, 0xb6, 0x53, 0x9d, 0xf7, 0x06, 0xe5, 0xcd, 0xdf, 0xa5},
		{0x04, 0xd9, 0x3e, 0x5c, 0xaf, 0x7b, 0x5e, 0x51, 0x9f, 0x67, 0xa4, 0x0a, 0xbf, 0x02, 0x1c, 0x17},
		{0x63, 0x37, 0x62, 0x85, 0x08, 0x5d, 0x8f, 0xe7, 0x85, 0x37, 0x67, 0xcd, 0x91, 0xd2, 0xde, 0xd8},
		{0x73, 0x6f, 0x82, 0xb5, 0xa6, 0xa7, 0xd6, 0xe3, 0x6d, 0x8b, 0x51, 0x3d, 0xb4, 0xff, 0x9e, 0x22},
		{0xf3, 0x6b, 0x56, 0xc7, 0xd9, 0xb3, 0x10, 0x9c, 0x4e, 0x4d, 0x02, 0xe9, 0xd2, 0xb7, 0x72, 0xb2},
		{0xe7, 0xc9, 0x73, 0xf2, 0x8b, 0xa3, 0x65, 0xf7, 0x0a, 0x66, 0xa9, 0x2b, 0xa7, 0xef, 0x3b, 0xf6},
		{0x09, 0xd6, 0x7c, 0x7a, 0xde, 0x39, 0x58, 0x91, 0xfd, 0xd1, 0x06, 0x0c, 0x2d, 0x76, 0xb0, 0xc0},
	}
	hashFinalKeys = [2][16]byte{
		{0x89, 0x83, 0xfa, 0xf6, 0x9f, 0x94, 0x24, 0x8b, 0xbf, 0x56, 0xdc, 0x90, 0x01, 0x02, 0x89, 0x06},
		{0xd1, 0x63, 0xb2, 0x61, 0x3c, 0xe0, 0xf4, 0x51, 0xc6, 0x43, 0x10, 0xee, 0x9b, 0xf9, 0x18, 0xed},
	}
)

var (
	gen1R   = newColumnCipher(gen1RKeys[:])
	gen4RLo = newColumnCipher(gen4RKeys[:4])
	gen4RHi = newColumnCipher(gen4RKeys[4:])
	hashFin = newColumnCipher(hashFinalKeys[:])
)

// columnCipher holds one cipher.Block per key.
type columnCipher []cipher.Block

func newColumnCipher(keys [][16]byte) columnCipher {
	cc := make(columnCipher, len(keys))
	for i := range keys {
		b, err := aes.NewCipher(keys[i][:])
		if err != nil {
			panic("purego: " + err.Error())
		}
		cc[i] = b
	}
	return cc
}

// round1 applies one pass to the four 16-byte columns of state.
func round1(state *[64]byte, cc columnCipher) {
	cc[0].Decrypt(state[0:16], state[0:16])
	cc[1].Encrypt(state[16:32], state[16:32])
	cc[2].Decrypt(state[32:48], state[32:48])
	cc[3].Encrypt(state[48:64], state[48:64])
}

// fillAes1Rx4 fills out from the AesGenerator1R stream seeded by state and
// leaves the final generator state in state.
func fillAes1Rx4(state *[64]byte, out []byte) {
	for off := 0; off+64 <= len(out); off += 64 {
		round1(state, gen1R)
		copy(out[off:off+64], state[:])
	}
}

// fillAes4Rx4 fills out from the AesGenerator4R stream seeded by seed.
// Columns 0 and 1 use keys 0-3, columns 2 and 3 use keys 4-7.
func fillAes4Rx4(seed *[64]byte, out []byte) {
	state := *seed
	for off := 0; off+64 <= len(out); off += 64 {
		for k := 0; k < 4; k++ {
			gen4RLo[k].Decrypt(state[0:16], state[0:16])
			gen4RLo[k].Encrypt(state[16:32], state[16:32])
			gen4RHi[k].Decrypt(state[32:48], state[32:48])
			gen4RHi[k].Encrypt(state[48:64], state[48:64])
		}
		copy(out[off:off+64], state[:])
	}
}

// hashAes1Rx4 compresses the scratchpad into a 64-byte fingerprint.
func hashAes1Rx4(scratchpad []byte) [64]byte {
	var state [64]byte
	for off := 0; off+64 <= len(scratchpad); off += 64 {
		for i := 0; i < 64; i++ {
			state[i] ^= scratchpad[off+i]
		}
		round1(&state, gen1R)
	}

	for k := 0; k < 2; k++ {
		hashFin[k].Decrypt(state[0:16], state[0:16])
		hashFin[k].Encrypt(state[16:32], state[16:32])
		hashFin[k].Decrypt(state[32:48], state[32:48])
		hashFin[k].Encrypt(state[48:64], state[48:64])
	}
	return state
}
