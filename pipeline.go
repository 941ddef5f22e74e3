package randomx

import "github.com/opd-ai/go-randomx-safe/internal/engine"

type pipelineState uint8

const (
	pipelineIdle pipelineState = iota
	pipelinePrimed
	pipelineDone
)

// hashPipeline drives the engine's first/next/last calls. For N inputs the
// sequence is one start, N-1 advances and one finish; each advance returns
// the digest of the previous input. Calls out of that order are bugs in this
// package and panic.
type hashPipeline struct {
	eng   engine.Engine
	vm    engine.VMHandle
	state pipelineState
}

func (p *hashPipeline) start(input []byte) {
	if p.state != pipelineIdle {
		panic("randomx: hash pipeline started twice")
	}
	p.eng.CalculateHashFirst(p.vm, input)
	p.state = pipelinePrimed
}

func (p *hashPipeline) advance(next []byte) [HashSize]byte {
	if p.state != pipelinePrimed {
		panic("randomx: hash pipeline advanced without a primed input")
	}
	var out [HashSize]byte
	p.eng.CalculateHashNext(p.vm, next, &out)
	return out
}

func (p *hashPipeline) finish() [HashSize]byte {
	if p.state != pipelinePrimed {
		panic("randomx: hash pipeline finished without a primed input")
	}
	var out [HashSize]byte
	p.eng.CalculateHashLast(p.vm, &out)
	p.state = pipelineDone
	return out
}

// drain completes a primed pipeline and discards the digest, leaving the VM
// ready for the next call.
func (p *hashPipeline) drain() {
	if p.state == pipelinePrimed {
		p.finish()
	}
}
