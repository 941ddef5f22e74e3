package purego

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"
)

const (
	// scaleMask flips the sign and four exponent bits for FSCAL_R.
	scaleMask = 0x80F0000000000000
	// mantissaMask keeps the mantissa and the low four exponent bits of E operands.
	mantissaMask = (uint64(1) << 56) - 1
	// configSize is the number of configuration bytes preceding each program.
	configSize = 128
	// registerFileSize is r0-r7, f0-f3, e0-e3 and a0-a3 as little-endian words.
	registerFileSize = 256
)

// machine is one interpreted virtual machine. A machine is bound either to a
// cache (light mode, dataset items computed on demand) or to a dataset.
type machine struct {
	p *Params

	cache   *cache
	dataset *dataset

	scratchpad []byte
	freeSP     func()
	programBuf []byte

	r    [8]uint64
	f    [4][2]float64
	e    [4][2]float64
	a    [4][2]float64
	fprc uint64

	ma, mx        uint64
	readReg       [4]uint8
	datasetOffset uint64
	eMask         [2]uint64

	tempHash [64]byte
}

// hash computes the digest of input in one call.
func (m *machine) hash(input []byte, out *[32]byte) {
	m.hashFirst(input)
	m.hashLast(out)
}

// hashFirst hashes input and fills the scratchpad from it.
func (m *machine) hashFirst(input []byte) {
	m.tempHash = blake2b.Sum512(input)
	fillAes1Rx4(&m.tempHash, m.scratchpad)
}

// hashNext finishes the primed input into out and primes next.
func (m *machine) hashNext(next []byte, out *[32]byte) {
	m.hashLast(out)
	m.hashFirst(next)
}

// hashLast runs the program chain for the primed input and writes its digest.
func (m *machine) hashLast(out *[32]byte) {
	var regs [registerFileSize]byte
	for chain := 0; chain < m.p.ProgramCount-1; chain++ {
		m.run()
		m.registerFile(regs[:])
		m.tempHash = blake2b.Sum512(regs[:])
	}
	m.run()

	fp := hashAes1Rx4(m.scratchpad)
	for i := 0; i < 4; i++ {
		m.a[i][0] = math.Float64frombits(binary.LittleEndian.Uint64(fp[i*16:]))
		m.a[i][1] = math.Float64frombits(binary.LittleEndian.Uint64(fp[i*16+8:]))
	}
	m.registerFile(regs[:])
	*out = blake2b.Sum256(regs[:])
}

// run generates a program from tempHash and executes it.
func (m *machine) run() {
	fillAes4Rx4(&m.tempHash, m.programBuf)
	m.configure(m.programBuf[:configSize])
	prog := decodeProgram(m.programBuf[configSize:], m.p.ScratchpadL1, m.p.ScratchpadL2, m.p.ScratchpadL3)

	l3Mask64 := uint64(m.p.ScratchpadL3 - 64)
	lineMask := (m.p.DatasetBaseSize - 1) &^ (itemSize - 1)
	spAddr0, spAddr1 := m.mx, m.ma

	for iter := 0; iter < m.p.ProgramIterations; iter++ {
		spMix := m.r[m.readReg[0]] ^ m.r[m.readReg[1]]
		spAddr0 = (spAddr0 ^ spMix) & l3Mask64
		spAddr1 = (spAddr1 ^ (spMix >> 32)) & l3Mask64

		for i := range m.r {
			m.r[i] ^= m.load64(uint32(spAddr0) + uint32(8*i))
		}
		for i := 0; i < 4; i++ {
			m.f[i] = m.loadF(uint32(spAddr1) + uint32(8*i))
			m.e[i] = m.maskEF(m.loadF(uint32(spAddr1) + uint32(8*(i+4))))
		}

		m.execute(&prog)

		m.mx ^= m.r[m.readReg[2]] ^ m.r[m.readReg[3]]
		m.mx &= lineMask
		m.mixItem((m.datasetOffset + m.ma) / itemSize)
		m.mx, m.ma = m.ma, m.mx

		for i := range m.r {
			m.store64(uint32(spAddr1)+uint32(8*i), m.r[i])
		}
		for i := 0; i < 4; i++ {
			lo := math.Float64bits(m.f[i][0]) ^ math.Float64bits(m.e[i][0])
			hi := math.Float64bits(m.f[i][1]) ^ math.Float64bits(m.e[i][1])
			m.store64(uint32(spAddr0)+uint32(16*i), lo)
			m.store64(uint32(spAddr0)+uint32(16*i+8), hi)
		}
		spAddr0, spAddr1 = 0, 0
	}
}

// configure resets the register file and reads the per-program
// configuration from the generator output.
func (m *machine) configure(cfg []byte) {
	entropy := func(i int) uint64 { return binary.LittleEndian.Uint64(cfg[i*8:]) }

	m.r = [8]uint64{}
	for i := 0; i < 4; i++ {
		m.a[i][0] = math.Float64frombits(smallPositiveFloatBits(entropy(2 * i)))
		m.a[i][1] = math.Float64frombits(smallPositiveFloatBits(entropy(2*i + 1)))
	}
	m.ma = entropy(8) & ((m.p.DatasetBaseSize - 1) &^ (itemSize - 1))
	m.mx = entropy(10)

	addrRegs := entropy(12)
	for i := 0; i < 4; i++ {
		m.readReg[i] = uint8(2*i) + uint8((addrRegs>>uint(i))&1)
	}
	extraItems := m.p.DatasetExtraSize / itemSize
	m.datasetOffset = (entropy(13) % (extraItems + 1)) * itemSize
	m.eMask[0] = floatMask(entropy(14))
	m.eMask[1] = floatMask(entropy(15))
}

// mixItem xors dataset item n into the integer registers.
func (m *machine) mixItem(n uint64) {
	var item [8]uint64
	if m.dataset != nil {
		off := n * itemSize
		for i := range item {
			item[i] = binary.LittleEndian.Uint64(m.dataset.mem[off+uint64(8*i):])
		}
	} else {
		item = datasetItem(m.p, m.cache, n)
	}
	for i := range m.r {
		m.r[i] ^= item[i]
	}
}

func (m *machine) registerFile(dst []byte) {
	for i, v := range m.r {
		binary.LittleEndian.PutUint64(dst[8*i:], v)
	}
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(dst[64+16*i:], math.Float64bits(m.f[i][0]))
		binary.LittleEndian.PutUint64(dst[64+16*i+8:], math.Float64bits(m.f[i][1]))
		binary.LittleEndian.PutUint64(dst[128+16*i:], math.Float64bits(m.e[i][0]))
		binary.LittleEndian.PutUint64(dst[128+16*i+8:], math.Float64bits(m.e[i][1]))
		binary.LittleEndian.PutUint64(dst[192+16*i:], math.Float64bits(m.a[i][0]))
		binary.LittleEndian.PutUint64(dst[192+16*i+8:], math.Float64bits(m.a[i][1]))
	}
}

func (m *machine) load64(addr uint32) uint64 {
	return binary.LittleEndian.Uint64(m.scratchpad[addr:])
}

func (m *machine) store64(addr uint32, v uint64) {
	binary.LittleEndian.PutUint64(m.scratchpad[addr:], v)
}

// loadF converts the two signed 32-bit integers at addr to floats.
func (m *machine) loadF(addr uint32) [2]float64 {
	lo := int32(binary.LittleEndian.Uint32(m.scratchpad[addr:]))
	hi := int32(binary.LittleEndian.Uint32(m.scratchpad[addr+4:]))
	return [2]float64{float64(lo), float64(hi)}
}

// maskEF forces a value into the positive E-register range.
func (m *machine) maskEF(v [2]float64) [2]float64 {
	lo := math.Float64bits(v[0])&mantissaMask | m.eMask[0]
	hi := math.Float64bits(v[1])&mantissaMask | m.eMask[1]
	return [2]float64{math.Float64frombits(lo), math.Float64frombits(hi)}
}

func smallPositiveFloatBits(entropy uint64) uint64 {
	exponent := entropy >> 59
	mantissa := entropy & ((uint64(1) << 52) - 1)
	exponent = (exponent + 1023) & 2047
	return exponent<<52 | mantissa
}

func floatMask(entropy uint64) uint64 {
	const mask22bit = (uint64(1) << 22) - 1
	exponent := uint64(0x300)
	exponent |= (entropy >> 60) << 4
	return entropy&mask22bit | exponent<<52
}
