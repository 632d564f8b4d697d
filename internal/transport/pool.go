package transport

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sshvfs/sshvfs/internal/sftpio"
	"github.com/sshvfs/sshvfs/pkg/sferr"
)

// Pool is a bounded pool of SFTP sub-sessions over one SSH connection.
// Initialisation is lazy: the first Borrow call creates every member
// sequentially; a failure partway through tears down what was created and
// surfaces the error, leaving the pool uninitialised so a later Borrow can
// retry.
type Pool struct {
	factory  func() (sftpio.Client, error)
	capacity int
	logger   *zap.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	idle        []sftpio.Client
	borrowed    int
	initialized bool
	closed      bool
}

// NewPool constructs a Pool of the given capacity. factory opens one fresh
// SFTP sub-session each time it is called.
func NewPool(capacity int, factory func() (sftpio.Client, error), logger *zap.Logger) *Pool {
	p := &Pool{factory: factory, capacity: capacity, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Pool) init() error {
	for i := 0; i < p.capacity; i++ {
		c, err := p.factory()
		if err != nil {
			for _, done := range p.idle {
				_ = done.Close()
			}
			p.idle = nil
			return sferr.Wrap(sferr.KindResourceExhausted, "sftp session pool initialization failed", err)
		}
		p.idle = append(p.idle, c)
	}
	p.initialized = true
	return nil
}

// Borrow returns an idle session, blocking until one is available or ctx
// is done. Callers must call Return exactly once for every successful
// Borrow.
func (p *Pool) Borrow(ctx context.Context) (sftpio.Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, sferr.New(sferr.KindResourceExhausted, "sftp session pool is closed")
	}
	if !p.initialized {
		if err := p.init(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}

	if len(p.idle) == 0 {
		cancelWatch := make(chan struct{})
		defer close(cancelWatch)
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-cancelWatch:
			}
		}()
	}
	for len(p.idle) == 0 {
		if ctx.Err() != nil {
			p.mu.Unlock()
			return nil, sferr.Wrap(sferr.KindResourceExhausted, "timed out waiting for sftp session", ctx.Err())
		}
		p.cond.Wait()
	}

	last := len(p.idle) - 1
	c := p.idle[last]
	p.idle = p.idle[:last]
	p.borrowed++
	p.mu.Unlock()
	return c, nil
}

// Return releases a session back to the pool.
func (p *Pool) Return(c sftpio.Client) {
	p.mu.Lock()
	p.borrowed--
	p.idle = append(p.idle, c)
	p.mu.Unlock()
	p.cond.Signal()
}

// Close tears down every idle session. Sessions still borrowed at the time
// of Close are left to their holders; the caller is responsible for
// ensuring every handle has released its session before tearing down the
// Transport.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var err error
	for _, c := range p.idle {
		err = multierr.Append(err, c.Close())
	}
	p.idle = nil
	p.cond.Broadcast()
	return err
}

// InUse reports how many sessions are currently borrowed.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.borrowed
}
