// Package workerpool bounds concurrent cross-encoder inference with a
// fixed-size ants pool.
package workerpool

import (
	"fmt"
	"log"

	"github.com/panjf2000/ants/v2"
)

const defaultSize = 4

// Pool is a fixed-size, non-queueing worker pool. Submit fails
// immediately when every worker is busy, so callers degrade instead of
// queueing latency behind the scorer.
type Pool struct {
	inner *ants.Pool
}

func New(size int) (*Pool, error) {
	if size <= 0 {
		size = defaultSize
	}
	inner, err := ants.NewPool(
		size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			log.Printf("worker pool task panic: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pool{inner: inner}, nil
}

func (p *Pool) Submit(task func()) error {
	return p.inner.Submit(task)
}

// Running reports workers currently executing a task.
func (p *Pool) Running() int {
	return p.inner.Running()
}

// Cap reports the fixed worker count.
func (p *Pool) Cap() int {
	return p.inner.Cap()
}

func (p *Pool) Release() {
	p.inner.Release()
}
