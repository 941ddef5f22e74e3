package purego

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"

	"github.com/opd-ai/go-randomx-safe/internal/engine"
)

// smallParams keeps every structure a few kilobytes large.
func smallParams() Params {
	return Params{
		ArgonMemory:        64,
		ArgonIterations:    2,
		ArgonSalt:          []byte("RandomX\x03"),
		CacheAccesses:      4,
		SuperscalarLatency: 24,
		DatasetBaseSize:    1 << 14,
		DatasetExtraSize:   3 * itemSize,
		ScratchpadL1:       1 << 10,
		ScratchpadL2:       1 << 12,
		ScratchpadL3:       1 << 14,
		ProgramSize:        48,
		ProgramIterations:  24,
		ProgramCount:       3,
	}
}

func newSmall(t testing.TB) *Engine {
	t.Helper()
	e, err := New(smallParams())
	assert.NoError(t, err)
	return e
}

func newCache(t testing.TB, e *Engine, key []byte) engine.CacheHandle {
	t.Helper()
	c := e.AllocCache(engine.FlagDefault)
	assert.NotNil(t, c)
	e.InitCache(c, key)
	t.Cleanup(func() { e.ReleaseCache(c) })
	return c
}

func newDataset(t testing.TB, e *Engine, c engine.CacheHandle) engine.DatasetHandle {
	t.Helper()
	d := e.AllocDataset(engine.FlagDefault)
	assert.NotNil(t, d)
	e.InitDataset(d, c, 0, e.DatasetItemCount())
	t.Cleanup(func() { e.ReleaseDataset(d) })
	return d
}

func randomInput() []byte {
	buf := make([]byte, 1+pcg.Uint32n(96))
	for i := range buf {
		buf[i] = byte(pcg.Uint32())
	}
	return buf
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.NoError(t, smallParams().Validate())

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"argon memory not segment aligned", func(p *Params) { p.ArgonMemory = 66 }},
		{"argon memory too small", func(p *Params) { p.ArgonMemory = 4 }},
		{"zero iterations", func(p *Params) { p.ArgonIterations = 0 }},
		{"short salt", func(p *Params) { p.ArgonSalt = []byte("RandomX") }},
		{"zero cache accesses", func(p *Params) { p.CacheAccesses = 0 }},
		{"zero latency", func(p *Params) { p.SuperscalarLatency = 0 }},
		{"dataset base not power of two", func(p *Params) { p.DatasetBaseSize = 3 * itemSize }},
		{"dataset extra not item aligned", func(p *Params) { p.DatasetExtraSize = 10 }},
		{"scratchpad not power of two", func(p *Params) { p.ScratchpadL2 = 3000 }},
		{"scratchpad levels out of order", func(p *Params) { p.ScratchpadL1 = 1 << 13 }},
		{"zero program size", func(p *Params) { p.ProgramSize = 0 }},
		{"zero program count", func(p *Params) { p.ProgramCount = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := smallParams()
			tt.modify(&p)
			assert.Error(t, p.Validate())
			_, err := New(p)
			assert.Error(t, err)
		})
	}
}

func TestDefaultSizes(t *testing.T) {
	e := Default()
	assert.Equal(t, e.DatasetItemCount(), uint64(34078719))
	assert.Equal(t, e.p.cacheSize(), uint64(256<<20))
	assert.Equal(t, Default(), e)
}

func TestCacheDeterministic(t *testing.T) {
	e := newSmall(t)
	c1 := newCache(t, e, []byte("key"))
	c2 := newCache(t, e, []byte("key"))
	c3 := newCache(t, e, []byte("other key"))

	m1, m2, m3 := c1.(*cache).mem, c2.(*cache).mem, c3.(*cache).mem
	assert.Equal(t, len(m1), int(e.p.ArgonMemory))
	for i := range m1 {
		assert.Equal(t, m1[i], m2[i])
	}
	assert.That(t, m1[len(m1)-1] != m3[len(m3)-1])
	assert.Equal(t, len(c1.(*cache).programs), e.p.CacheAccesses)
}

func TestLightMatchesFull(t *testing.T) {
	e := newSmall(t)
	c := newCache(t, e, []byte("light and full"))
	d := newDataset(t, e, c)

	light := e.CreateVM(engine.FlagDefault, c, nil)
	full := e.CreateVM(engine.FlagFullMem, nil, d)
	assert.NotNil(t, light)
	assert.NotNil(t, full)
	defer e.DestroyVM(light)
	defer e.DestroyVM(full)

	for i := 0; i < 8; i++ {
		in := randomInput()
		var lo, fo [engine.HashSize]byte
		e.CalculateHash(light, in, &lo)
		e.CalculateHash(full, in, &fo)
		assert.Equal(t, lo, fo)
		assert.That(t, lo != [engine.HashSize]byte{})
	}
}

func TestDatasetItemsMatchCache(t *testing.T) {
	e := newSmall(t)
	c := newCache(t, e, []byte("items"))
	d := newDataset(t, e, c)

	mem := e.DatasetMemory(d)
	assert.Equal(t, uint64(len(mem)), e.DatasetItemCount()*itemSize)

	for _, n := range []uint64{0, 1, 17, e.DatasetItemCount() - 1} {
		item := datasetItem(&e.p, c.(*cache), n)
		for q, v := range item {
			off := n*itemSize + uint64(8*q)
			got := uint64(0)
			for b := 7; b >= 0; b-- {
				got = got<<8 | uint64(mem[off+uint64(b)])
			}
			assert.Equal(t, got, v)
		}
	}
}

func TestPartialDatasetInit(t *testing.T) {
	e := newSmall(t)
	c := newCache(t, e, []byte("partial"))
	d := e.AllocDataset(engine.FlagDefault)
	defer e.ReleaseDataset(d)

	count := e.DatasetItemCount()
	e.InitDataset(d, c, 2, count-2)
	mem := e.DatasetMemory(d)
	assert.That(t, bytes.Equal(mem[:2*itemSize], make([]byte, 2*itemSize)))
	assert.That(t, !bytes.Equal(mem[2*itemSize:3*itemSize], make([]byte, itemSize)))
}

func TestStreamingMatchesHash(t *testing.T) {
	e := newSmall(t)
	c := newCache(t, e, []byte("stream"))
	vm := e.CreateVM(engine.FlagDefault, c, nil)
	assert.NotNil(t, vm)
	defer e.DestroyVM(vm)

	inputs := make([][]byte, 5)
	want := make([][engine.HashSize]byte, len(inputs))
	for i := range inputs {
		inputs[i] = randomInput()
		e.CalculateHash(vm, inputs[i], &want[i])
	}

	got := make([][engine.HashSize]byte, len(inputs))
	e.CalculateHashFirst(vm, inputs[0])
	for i := 1; i < len(inputs); i++ {
		e.CalculateHashNext(vm, inputs[i], &got[i-1])
	}
	e.CalculateHashLast(vm, &got[len(inputs)-1])

	for i := range want {
		assert.Equal(t, got[i], want[i])
	}
}

func TestHashDependsOnKeyAndInput(t *testing.T) {
	e := newSmall(t)
	c1 := newCache(t, e, []byte("key one"))
	c2 := newCache(t, e, []byte("key two"))
	vm := e.CreateVM(engine.FlagDefault, c1, nil)
	defer e.DestroyVM(vm)

	var a, b, c [engine.HashSize]byte
	e.CalculateHash(vm, []byte("input"), &a)
	e.CalculateHash(vm, []byte("input2"), &b)
	e.SetVMCache(vm, c2)
	e.CalculateHash(vm, []byte("input"), &c)

	assert.That(t, a != b)
	assert.That(t, a != c)

	e.SetVMCache(vm, c1)
	var again [engine.HashSize]byte
	e.CalculateHash(vm, []byte("input"), &again)
	assert.Equal(t, again, a)
}

func TestCreateVMBindings(t *testing.T) {
	e := newSmall(t)
	c := newCache(t, e, []byte("bindings"))
	d := newDataset(t, e, c)

	assert.Nil(t, e.CreateVM(engine.FlagFullMem, c, nil))
	assert.Nil(t, e.CreateVM(engine.FlagDefault, nil, d))
	assert.Nil(t, e.CreateVM(engine.FlagDefault, nil, nil))

	vm := e.CreateVM(engine.FlagFullMem, c, d)
	assert.NotNil(t, vm)
	m := vm.(*machine)
	assert.That(t, m.dataset != nil && m.cache == nil)

	// A full-memory VM ignores cache rebinding.
	e.SetVMCache(vm, c)
	assert.That(t, m.cache == nil)

	e.DestroyVM(vm)
	e.DestroyVM(vm)
	assert.That(t, m.scratchpad == nil)
}

func TestReleaseIsIdempotent(t *testing.T) {
	e := newSmall(t)
	c := e.AllocCache(engine.FlagDefault)
	e.InitCache(c, []byte("release"))
	e.ReleaseCache(c)
	e.ReleaseCache(c)
	assert.That(t, c.(*cache).mem == nil)

	d := e.AllocDataset(engine.FlagDefault)
	e.ReleaseDataset(d)
	e.ReleaseDataset(d)
	assert.Nil(t, e.DatasetMemory(d))

	e.ReleaseCache(nil)
	e.ReleaseDataset(nil)
	e.DestroyVM(nil)
}

func TestLargePagesAllocation(t *testing.T) {
	e := newSmall(t)
	c := e.AllocCache(engine.FlagLargePages)
	if c == nil {
		t.Skip("huge pages are not available")
	}
	defer e.ReleaseCache(c)
	e.InitCache(c, []byte("huge"))
	assert.Equal(t, len(c.(*cache).mem), int(e.p.ArgonMemory))
}

func TestRecommendedFlags(t *testing.T) {
	flags := Default().Flags()
	forbidden := engine.FlagLargePages | engine.FlagFullMem | engine.FlagSecure | engine.FlagJIT
	assert.Equal(t, flags&forbidden, uint32(0))
	assert.That(t, flags&engine.FlagArgon2 != engine.FlagArgon2)
}

func BenchmarkHashLight(b *testing.B) {
	for _, cfg := range []struct {
		name string
		p    Params
	}{
		{"small", smallParams()},
	} {
		b.Run(cfg.name, func(b *testing.B) {
			e, err := New(cfg.p)
			assert.NoError(b, err)
			c := newCache(b, e, []byte("bench"))
			vm := e.CreateVM(engine.FlagDefault, c, nil)
			defer e.DestroyVM(vm)

			var out [engine.HashSize]byte
			input := []byte(fmt.Sprintf("bench input %d", b.N))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				e.CalculateHash(vm, input, &out)
			}
		})
	}
}
