// Package purego is a portable RandomX-style engine written in Go.
//
// It follows the structure of RandomX (an Argon2d-filled cache,
// SuperscalarHash dataset items, AES generators and an interpreted VM) and
// satisfies engine.Engine, but it does not reproduce the reference digests.
// Output is deterministic for a given Params, and light and full mode always
// agree because both compute dataset items with the same function.
package purego

import (
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

const itemSize = engine.DatasetItemSize

// Engine implements engine.Engine. The zero value is not usable; use New or
// Default.
type Engine struct {
	p Params
}

var _ engine.Engine = (*Engine)(nil)

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the engine configured with DefaultParams.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = &Engine{p: DefaultParams()}
	})
	return defaultEngine
}

// New returns an engine using p.
func New(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.ArgonSalt = append([]byte(nil), p.ArgonSalt...)
	return &Engine{p: p}, nil
}

// Params returns a copy of the engine parameters.
func (e *Engine) Params() Params {
	p := e.p
	p.ArgonSalt = append([]byte(nil), p.ArgonSalt...)
	return p
}

type cache struct {
	mem      []block
	free     func()
	programs []superscalarProgram
}

type dataset struct {
	mem  []byte
	free func()
}

func (e *Engine) Flags() uint32 { return recommendedFlags() }

func (e *Engine) AllocCache(flags uint32) engine.CacheHandle {
	buf, free := alloc(e.p.cacheSize(), flags&engine.FlagLargePages != 0)
	if buf == nil {
		return nil
	}
	return &cache{mem: asBlocks(buf), free: free}
}

func (e *Engine) InitCache(h engine.CacheHandle, key []byte) {
	c, ok := h.(*cache)
	if !ok || c == nil {
		return
	}
	fillArgon2d(c.mem, key, e.p.ArgonSalt, e.p.ArgonIterations)

	gen := newBlake2Generator(key, 0)
	c.programs = make([]superscalarProgram, e.p.CacheAccesses)
	for i := range c.programs {
		c.programs[i] = generateSuperscalar(gen, e.p.SuperscalarLatency)
	}
}

func (e *Engine) ReleaseCache(h engine.CacheHandle) {
	c, ok := h.(*cache)
	if !ok || c == nil || c.mem == nil {
		return
	}
	c.free()
	c.mem, c.programs, c.free = nil, nil, nil
}

func (e *Engine) AllocDataset(flags uint32) engine.DatasetHandle {
	buf, free := alloc(e.p.datasetItems()*itemSize, flags&engine.FlagLargePages != 0)
	if buf == nil {
		return nil
	}
	return &dataset{mem: buf, free: free}
}

func (e *Engine) DatasetItemCount() uint64 { return e.p.datasetItems() }

// InitDataset computes items [start, start+count) with one worker per CPU.
func (e *Engine) InitDataset(dh engine.DatasetHandle, ch engine.CacheHandle, start, count uint64) {
	d, ok := dh.(*dataset)
	if !ok || d == nil {
		return
	}
	c, ok := ch.(*cache)
	if !ok || c == nil || c.programs == nil {
		return
	}

	workers := uint64(runtime.NumCPU())
	if workers > count {
		workers = count
	}
	if workers == 0 {
		return
	}
	per := count / workers

	var wg sync.WaitGroup
	for w := uint64(0); w < workers; w++ {
		from := start + w*per
		to := from + per
		if w == workers-1 {
			to = start + count
		}
		wg.Add(1)
		go func(from, to uint64) {
			defer wg.Done()
			for n := from; n < to; n++ {
				item := datasetItem(&e.p, c, n)
				off := n * itemSize
				for i, v := range item {
					binary.LittleEndian.PutUint64(d.mem[off+uint64(8*i):], v)
				}
			}
		}(from, to)
	}
	wg.Wait()
}

func (e *Engine) DatasetMemory(dh engine.DatasetHandle) []byte {
	d, ok := dh.(*dataset)
	if !ok || d == nil {
		return nil
	}
	return d.mem
}

func (e *Engine) ReleaseDataset(dh engine.DatasetHandle) {
	d, ok := dh.(*dataset)
	if !ok || d == nil || d.mem == nil {
		return
	}
	d.free()
	d.mem, d.free = nil, nil
}

// CreateVM returns nil when the flags ask for a binding that was not
// supplied: FlagFullMem needs a dataset, otherwise a cache is required.
func (e *Engine) CreateVM(flags uint32, ch engine.CacheHandle, dh engine.DatasetHandle) engine.VMHandle {
	m := &machine{p: &e.p}
	if flags&engine.FlagFullMem != 0 {
		d, ok := dh.(*dataset)
		if !ok || d == nil {
			return nil
		}
		m.dataset = d
	} else {
		c, ok := ch.(*cache)
		if !ok || c == nil {
			return nil
		}
		m.cache = c
	}

	sp, free := alloc(uint64(e.p.ScratchpadL3), flags&engine.FlagLargePages != 0)
	if sp == nil {
		return nil
	}
	m.scratchpad, m.freeSP = sp, free
	m.programBuf = make([]byte, configSize+8*e.p.ProgramSize)
	return m
}

func (e *Engine) SetVMCache(vh engine.VMHandle, ch engine.CacheHandle) {
	m, ok := vh.(*machine)
	c, ok2 := ch.(*cache)
	if !ok || !ok2 || m == nil || c == nil || m.dataset != nil {
		return
	}
	m.cache = c
}

func (e *Engine) SetVMDataset(vh engine.VMHandle, dh engine.DatasetHandle) {
	m, ok := vh.(*machine)
	d, ok2 := dh.(*dataset)
	if !ok || !ok2 || m == nil || d == nil || m.cache != nil {
		return
	}
	m.dataset = d
}

func (e *Engine) DestroyVM(vh engine.VMHandle) {
	m, ok := vh.(*machine)
	if !ok || m == nil || m.scratchpad == nil {
		return
	}
	m.freeSP()
	m.scratchpad, m.freeSP = nil, nil
	m.cache, m.dataset = nil, nil
}

func (e *Engine) CalculateHash(vh engine.VMHandle, input []byte, out *[engine.HashSize]byte) {
	if m, ok := vh.(*machine); ok && m != nil {
		m.hash(input, out)
	}
}

func (e *Engine) CalculateHashFirst(vh engine.VMHandle, input []byte) {
	if m, ok := vh.(*machine); ok && m != nil {
		m.hashFirst(input)
	}
}

func (e *Engine) CalculateHashNext(vh engine.VMHandle, next []byte, out *[engine.HashSize]byte) {
	if m, ok := vh.(*machine); ok && m != nil {
		m.hashNext(next, out)
	}
}

func (e *Engine) CalculateHashLast(vh engine.VMHandle, out *[engine.HashSize]byte) {
	if m, ok := vh.(*machine); ok && m != nil {
		m.hashLast(out)
	}
}

// Dataset item generation constants.
const (
	superscalarMul0 = 6364136223846793005
	superscalarAdd1 = 9298411001130361340
	superscalarAdd2 = 12065312585734608966
	superscalarAdd3 = 9306329213124626780
	superscalarAdd4 = 5281919268842080866
	superscalarAdd5 = 10536153434571861004
	superscalarAdd6 = 3398623926847679864
	superscalarAdd7 = 9549104520008361294
)

// datasetItem computes dataset item n from the cache. Each of the cache's
// SuperscalarHash programs runs once and mixes in the cache item selected by
// the previous program's address register.
func datasetItem(p *Params, c *cache, n uint64) [8]uint64 {
	var r [8]uint64
	r[0] = (n + 1) * superscalarMul0
	r[1] = r[0] ^ superscalarAdd1
	r[2] = r[0] ^ superscalarAdd2
	r[3] = r[0] ^ superscalarAdd3
	r[4] = r[0] ^ superscalarAdd4
	r[5] = r[0] ^ superscalarAdd5
	r[6] = r[0] ^ superscalarAdd6
	r[7] = r[0] ^ superscalarAdd7

	items := p.cacheItems()
	regValue := n
	for i := range c.programs {
		idx := regValue % items
		mix := c.mem[idx/16][(idx%16)*8 : (idx%16)*8+8]
		prog := &c.programs[i]
		executeSuperscalar(&r, prog)
		for q := range r {
			r[q] ^= mix[q]
		}
		regValue = r[prog.addressReg]
	}
	return r
}
