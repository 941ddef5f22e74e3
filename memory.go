package randomx

import "sync"

// vmPool keeps idle VMs for reuse by a Hasher. VMs are created on demand;
// a VM returned while maxIdle VMs are already waiting is closed.
type vmPool struct {
	mu      sync.Mutex
	idle    []*VM
	maxIdle int
	created int
	newVM   func() (*VM, error)
}

func newVMPool(maxIdle int, newVM func() (*VM, error)) *vmPool {
	return &vmPool{maxIdle: maxIdle, newVM: newVM}
}

// get returns an idle VM or creates a new one.
func (p *vmPool) get() (*VM, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		vm := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return vm, nil
	}
	p.mu.Unlock()

	vm, err := p.newVM()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.created++
	p.mu.Unlock()
	return vm, nil
}

// put returns vm to the pool.
func (p *vmPool) put(vm *VM) {
	if vm == nil {
		return
	}
	p.mu.Lock()
	if len(p.idle) < p.maxIdle {
		p.idle = append(p.idle, vm)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	_ = vm.Close()
}

// each calls fn for every idle VM and stops at the first error. The caller
// must make sure no VM is checked out.
func (p *vmPool) each(fn func(*VM) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, vm := range p.idle {
		if err := fn(vm); err != nil {
			return err
		}
	}
	return nil
}

// drain closes every idle VM.
func (p *vmPool) drain() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, vm := range idle {
		_ = vm.Close()
	}
}

func (p *vmPool) stats() (idle, created int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.created
}
