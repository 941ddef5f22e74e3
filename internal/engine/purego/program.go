package purego

import (
	"encoding/binary"
	"math"
	"math/bits"
)

type opcode uint8

const (
	opIADD_RS opcode = iota
	opIADD_M
	opISUB_R
	opISUB_M
	opIMUL_R
	opIMUL_M
	opIMULH_R
	opIMULH_M
	opISMULH_R
	opISMULH_M
	opIMUL_RCP
	opINEG_R
	opIXOR_R
	opIXOR_M
	opIROR_R
	opIROL_R
	opISWAP_R
	opFSWAP_R
	opFADD_R
	opFADD_M
	opFSUB_R
	opFSUB_M
	opFSCAL_R
	opFMUL_R
	opFDIV_M
	opFSQRT_R
	opCBRANCH
	opCFROUND
	opISTORE
	opNOP
)

// opFrequencies lists how many of the 256 opcode byte values decode to each
// instruction. The sum is 256.
var opFrequencies = [...]struct {
	op   opcode
	freq int
}{
	{opIADD_RS, 16}, {opIADD_M, 7}, {opISUB_R, 16}, {opISUB_M, 7},
	{opIMUL_R, 16}, {opIMUL_M, 4}, {opIMULH_R, 4}, {opIMULH_M, 1},
	{opISMULH_R, 4}, {opISMULH_M, 1}, {opIMUL_RCP, 8}, {opINEG_R, 2},
	{opIXOR_R, 15}, {opIXOR_M, 5}, {opIROR_R, 8}, {opIROL_R, 2},
	{opISWAP_R, 4},
	{opFSWAP_R, 4}, {opFADD_R, 16}, {opFADD_M, 5}, {opFSUB_R, 16},
	{opFSUB_M, 5}, {opFSCAL_R, 6}, {opFMUL_R, 32}, {opFDIV_M, 4},
	{opFSQRT_R, 6},
	{opCBRANCH, 25}, {opCFROUND, 1}, {opISTORE, 16},
}

var opcodeTable = buildOpcodeTable()

func buildOpcodeTable() (t [256]opcode) {
	for i := range t {
		t[i] = opNOP
	}
	n := 0
	for _, f := range opFrequencies {
		for j := 0; j < f.freq && n < len(t); j++ {
			t[n] = f.op
			n++
		}
	}
	return t
}

const (
	conditionOffset = 8
	conditionMask   = 0xff
	storeL3Cond     = 14
)

// instr is a decoded VM instruction.
type instr struct {
	op     opcode
	dst    uint8
	src    uint8
	mod    uint8
	imm    uint64 // sign-extended immediate; reciprocal for IMUL_RCP; cimm for CBRANCH
	mask   uint32 // scratchpad address mask of memory operands
	target int    // branch target for CBRANCH
	cmask  uint64 // condition mask for CBRANCH
}

type program struct {
	code []instr
}

// decodeProgram decodes 8-byte instruction words and resolves branch
// targets. A CBRANCH jumps back to the instruction after the last one that
// modified its register.
func decodeProgram(raw []byte, l1, l2, l3 uint32) program {
	n := len(raw) / 8
	p := program{code: make([]instr, n)}

	var lastWrite [8]int
	for i := range lastWrite {
		lastWrite[i] = -1
	}

	for i := 0; i < n; i++ {
		w := raw[i*8 : i*8+8]
		in := instr{
			op:  opcodeTable[w[0]],
			dst: w[1] & 7,
			src: w[2] & 7,
			mod: w[3],
			imm: signExtend(binary.LittleEndian.Uint32(w[4:])),
		}

		switch in.op {
		case opIADD_M, opISUB_M, opIMUL_M, opIMULH_M, opISMULH_M, opIXOR_M,
			opFADD_M, opFSUB_M, opFDIV_M:
			switch {
			case in.op.isInteger() && in.src == in.dst:
				in.mask = l3 - 8
			case in.mod%4 == 0:
				in.mask = l2 - 8
			default:
				in.mask = l1 - 8
			}
		case opISTORE:
			switch {
			case in.mod>>4 >= storeL3Cond:
				in.mask = l3 - 8
			case in.mod%4 == 0:
				in.mask = l2 - 8
			default:
				in.mask = l1 - 8
			}
		case opIMUL_RCP:
			d := uint32(in.imm)
			if d == 0 || d&(d-1) == 0 {
				in.op = opNOP
				break
			}
			in.imm = reciprocal(d)
		case opCBRANCH:
			shift := uint(in.mod>>4) + conditionOffset
			in.imm |= uint64(1) << shift
			in.imm &^= uint64(1) << (shift - 1)
			in.cmask = conditionMask << shift
			in.target = lastWrite[in.dst]
			for r := range lastWrite {
				lastWrite[r] = i
			}
		}

		if in.op.isInteger() {
			lastWrite[in.dst] = i
			if in.op == opISWAP_R && in.src != in.dst {
				lastWrite[in.src] = i
			}
		}
		p.code[i] = in
	}
	return p
}

func (op opcode) isInteger() bool { return op <= opISWAP_R }

// execute runs one pass over the program.
func (m *machine) execute(p *program) {
	for pc := 0; pc < len(p.code); pc++ {
		in := &p.code[pc]
		r := &m.r
		switch in.op {
		case opIADD_RS:
			r[in.dst] += r[in.src] << ((in.mod >> 2) & 3)
			if in.dst == 5 {
				r[in.dst] += in.imm
			}
		case opIADD_M:
			r[in.dst] += m.load64(m.memAddr(in))
		case opISUB_R:
			r[in.dst] -= m.regOrImm(in)
		case opISUB_M:
			r[in.dst] -= m.load64(m.memAddr(in))
		case opIMUL_R:
			r[in.dst] *= m.regOrImm(in)
		case opIMUL_M:
			r[in.dst] *= m.load64(m.memAddr(in))
		case opIMULH_R:
			r[in.dst] = mulh(r[in.dst], r[in.src])
		case opIMULH_M:
			r[in.dst] = mulh(r[in.dst], m.load64(m.memAddr(in)))
		case opISMULH_R:
			r[in.dst] = smulh(r[in.dst], r[in.src])
		case opISMULH_M:
			r[in.dst] = smulh(r[in.dst], m.load64(m.memAddr(in)))
		case opIMUL_RCP:
			r[in.dst] *= in.imm
		case opINEG_R:
			r[in.dst] = -r[in.dst]
		case opIXOR_R:
			r[in.dst] ^= m.regOrImm(in)
		case opIXOR_M:
			r[in.dst] ^= m.load64(m.memAddr(in))
		case opIROR_R:
			r[in.dst] = bits.RotateLeft64(r[in.dst], -int(m.regOrImm(in)&63))
		case opIROL_R:
			r[in.dst] = bits.RotateLeft64(r[in.dst], int(m.regOrImm(in)&63))
		case opISWAP_R:
			r[in.dst], r[in.src] = r[in.src], r[in.dst]

		case opFSWAP_R:
			if in.dst < 4 {
				f := &m.f[in.dst]
				f[0], f[1] = f[1], f[0]
			} else {
				e := &m.e[in.dst-4]
				e[0], e[1] = e[1], e[0]
			}
		case opFADD_R:
			f, a := &m.f[in.dst%4], &m.a[in.src%4]
			f[0], f[1] = float64(f[0]+a[0]), float64(f[1]+a[1])
		case opFADD_M:
			f, v := &m.f[in.dst%4], m.loadF(m.memAddr(in))
			f[0], f[1] = float64(f[0]+v[0]), float64(f[1]+v[1])
		case opFSUB_R:
			f, a := &m.f[in.dst%4], &m.a[in.src%4]
			f[0], f[1] = float64(f[0]-a[0]), float64(f[1]-a[1])
		case opFSUB_M:
			f, v := &m.f[in.dst%4], m.loadF(m.memAddr(in))
			f[0], f[1] = float64(f[0]-v[0]), float64(f[1]-v[1])
		case opFSCAL_R:
			f := &m.f[in.dst%4]
			f[0] = math.Float64frombits(math.Float64bits(f[0]) ^ scaleMask)
			f[1] = math.Float64frombits(math.Float64bits(f[1]) ^ scaleMask)
		case opFMUL_R:
			e, a := &m.e[in.dst%4], &m.a[in.src%4]
			e[0], e[1] = float64(e[0]*a[0]), float64(e[1]*a[1])
		case opFDIV_M:
			e := &m.e[in.dst%4]
			v := m.maskEF(m.loadF(m.memAddr(in)))
			e[0], e[1] = float64(e[0]/v[0]), float64(e[1]/v[1])
		case opFSQRT_R:
			e := &m.e[in.dst%4]
			e[0], e[1] = math.Sqrt(e[0]), math.Sqrt(e[1])

		case opCBRANCH:
			r[in.dst] += in.imm
			if r[in.dst]&in.cmask == 0 {
				pc = in.target
			}
		case opCFROUND:
			// Go has no rounding mode control; the mode is tracked but all
			// arithmetic rounds to nearest.
			m.fprc = bits.RotateLeft64(r[in.src], -int(in.imm&63)) & 3
		case opISTORE:
			m.store64((uint32(r[in.dst])+uint32(in.imm))&in.mask, r[in.src])
		}
	}
}

// regOrImm returns the source register, or the immediate when the source and
// destination registers are the same.
func (m *machine) regOrImm(in *instr) uint64 {
	if in.src == in.dst {
		return in.imm
	}
	return m.r[in.src]
}

func (m *machine) memAddr(in *instr) uint32 {
	if in.op.isInteger() && in.src == in.dst {
		return uint32(in.imm) & in.mask
	}
	return (uint32(m.r[in.src]) + uint32(in.imm)) & in.mask
}
