package purego

import "math/bits"

// SuperscalarHash instruction set.
type ssOp uint8

const (
	ssISUB_R ssOp = iota
	ssIXOR_R
	ssIADD_RS
	ssIMUL_R
	ssIROR_C
	ssIADD_C
	ssIXOR_C
	ssIMULH_R
	ssISMULH_R
	ssIMUL_RCP
)

// ssLatency is the modelled execution latency of each instruction in cycles.
var ssLatency = [...]int{
	ssISUB_R:   1,
	ssIXOR_R:   1,
	ssIADD_RS:  1,
	ssIMUL_R:   3,
	ssIROR_C:   1,
	ssIADD_C:   1,
	ssIXOR_C:   1,
	ssIMULH_R:  4,
	ssISMULH_R: 4,
	ssIMUL_RCP: 4,
}

// issueWidth is how many instructions the modelled core retires per cycle.
const issueWidth = 3

type ssInstr struct {
	op    ssOp
	dst   uint8
	src   uint8
	shift uint8
	imm   uint64 // sign-extended immediate, rotation, or reciprocal for IMUL_RCP
}

type superscalarProgram struct {
	code       []ssInstr
	addressReg uint8
}

// pickSuperscalarOp maps a generator byte onto the instruction mix. Cheap ALU
// operations dominate; the wide multiplies are rare.
func pickSuperscalarOp(b byte) ssOp {
	switch b % 28 {
	case 0, 1, 2, 3:
		return ssISUB_R
	case 4, 5, 6, 7:
		return ssIXOR_R
	case 8, 9, 10:
		return ssIADD_RS
	case 11, 12, 13:
		return ssIMUL_R
	case 14, 15:
		return ssIROR_C
	case 16, 17:
		return ssIADD_C
	case 18, 19:
		return ssIXOR_C
	case 20, 21:
		return ssIMULH_R
	case 22, 23:
		return ssISMULH_R
	default:
		return ssIMUL_RCP
	}
}

func (op ssOp) needsSrc() bool {
	switch op {
	case ssIROR_C, ssIADD_C, ssIXOR_C, ssIMUL_RCP:
		return false
	}
	return true
}

// generateSuperscalar builds one program from gen. Instructions are issued
// onto a simple in-order core model until the critical path reaches
// targetLatency cycles. The register that becomes ready last is the address
// register for the next cache access.
func generateSuperscalar(gen *blake2Generator, targetLatency int) superscalarProgram {
	maxSize := 3*targetLatency + 2
	prog := superscalarProgram{code: make([]ssInstr, 0, maxSize)}

	var (
		ready   [8]int
		lastOp  [8]int
		cycle   int
		issued  int
		stalled int
	)
	for i := range lastOp {
		lastOp[i] = -1
	}

	for cycle < targetLatency && len(prog.code) < maxSize {
		op := pickSuperscalarOp(gen.getByte())

		dst, ok := pickRegister(gen, func(r uint8) bool {
			if ready[r] > cycle || lastOp[r] == int(op) {
				return false
			}
			// r5 is the displacement base of IADD_RS on x86 and cannot be scaled.
			return !(op == ssIADD_RS && r == 5)
		})
		if !ok {
			stalled++
			if stalled >= issueWidth {
				cycle++
				issued, stalled = 0, 0
			}
			continue
		}

		in := ssInstr{op: op, dst: dst}
		if op.needsSrc() {
			src, ok := pickRegister(gen, func(r uint8) bool {
				return r != dst && ready[r] <= cycle
			})
			if !ok {
				src = (dst + 1) & 7
			}
			in.src = src
		}

		switch op {
		case ssIADD_RS:
			in.shift = (gen.getByte() >> 2) & 3
		case ssIROR_C:
			in.imm = uint64(gen.getByte()&63) | 1
		case ssIADD_C, ssIXOR_C:
			in.imm = signExtend(gen.getUint32())
		case ssIMUL_RCP:
			divisor := gen.getUint32()
			if divisor&(divisor-1) == 0 {
				divisor |= 3
			}
			in.imm = reciprocal(divisor)
		}

		prog.code = append(prog.code, in)
		lastOp[dst] = int(op)
		ready[dst] = cycle + ssLatency[op]

		issued++
		if issued == issueWidth {
			cycle++
			issued, stalled = 0, 0
		}
	}

	worst := -1
	for r, at := range ready {
		if at > worst {
			worst = at
			prog.addressReg = uint8(r)
		}
	}
	return prog
}

// pickRegister draws up to eight candidate registers from gen and returns the
// first one accepted by ok.
func pickRegister(gen *blake2Generator, ok func(uint8) bool) (uint8, bool) {
	for i := 0; i < 8; i++ {
		r := gen.getByte() & 7
		if ok(r) {
			return r, true
		}
	}
	return 0, false
}

func executeSuperscalar(r *[8]uint64, prog *superscalarProgram) {
	for i := range prog.code {
		in := &prog.code[i]
		switch in.op {
		case ssISUB_R:
			r[in.dst] -= r[in.src]
		case ssIXOR_R:
			r[in.dst] ^= r[in.src]
		case ssIADD_RS:
			r[in.dst] += r[in.src] << in.shift
		case ssIMUL_R:
			r[in.dst] *= r[in.src]
		case ssIROR_C:
			r[in.dst] = bits.RotateLeft64(r[in.dst], -int(in.imm))
		case ssIADD_C:
			r[in.dst] += in.imm
		case ssIXOR_C:
			r[in.dst] ^= in.imm
		case ssIMULH_R:
			r[in.dst] = mulh(r[in.dst], r[in.src])
		case ssISMULH_R:
			r[in.dst] = smulh(r[in.dst], r[in.src])
		case ssIMUL_RCP:
			r[in.dst] *= in.imm
		}
	}
}

// reciprocal returns 2^x / divisor for the largest x that keeps the result in
// 64 bits. divisor must not be zero or a power of two.
func reciprocal(divisor uint32) uint64 {
	const p2exp63 = uint64(1) << 63
	d := uint64(divisor)
	q, r := p2exp63/d, p2exp63%d
	shift := uint(bits.Len32(divisor))
	return (q << shift) + ((r << shift) / d)
}

func signExtend(x uint32) uint64 {
	return uint64(int64(int32(x)))
}

func mulh(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	return hi
}

func smulh(a, b uint64) uint64 {
	hi := mulh(a, b)
	if int64(a) < 0 {
		hi -= b
	}
	if int64(b) < 0 {
		hi -= a
	}
	return hi
}
